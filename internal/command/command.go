// Package command parses chat messages into bot routes.
package command

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/magpiebot/magpie/internal/media"
)

// Kind classifies what a route does with its argument.
type Kind int

const (
	// KindURL routes resolve URLs found in the argument.
	KindURL Kind = iota
	// KindQuery routes search a provider and resolve the first hit.
	KindQuery
	// KindHelp prints usage.
	KindHelp
)

// Route is one command the bot understands.
type Route struct {
	Name     string
	Kind     Kind
	Modifier media.Modifier
	// Provider names the search backend for query routes.
	Provider string
}

var routes = map[string]Route{
	"get":      {Name: "get", Kind: KindURL},
	"audio":    {Name: "audio", Kind: KindURL, Modifier: media.ModifierAudio},
	"tenor":    {Name: "tenor", Kind: KindQuery, Provider: "tenor"},
	"giphy":    {Name: "giphy", Kind: KindQuery, Provider: "giphy"},
	"unsplash": {Name: "unsplash", Kind: KindQuery, Provider: "unsplash"},
	"lexica":   {Name: "lexica", Kind: KindQuery, Provider: "lexica"},
	"waifu":    {Name: "waifu", Kind: KindQuery, Provider: "waifu"},
	"danbooru": {Name: "danbooru", Kind: KindQuery, Provider: "danbooru"},
	"searx":    {Name: "searx", Kind: KindQuery, Provider: "searx"},
	"help":     {Name: "help", Kind: KindHelp},
}

var helpLines = []struct{ name, usage, desc string }{
	{"get", "<url>…", "grab media from a listed platform"},
	{"audio", "<url>…", "grab the audio track only, as mp3"},
	{"tenor", "<words>", "search Tenor for a gif"},
	{"giphy", "<words>", "search Giphy for a gif"},
	{"unsplash", "<words>", "search Unsplash for a photo"},
	{"lexica", "<words>", "search Lexica for an image"},
	{"waifu", "[category]", "random image from waifu.pics"},
	{"danbooru", "<tags>", "search Danbooru for an image"},
	{"searx", "<words>", "image search through SearX"},
	{"help", "", "this message"},
}

// Table resolves message bodies against the route set under one prefix
// plus the configured aliases.
type Table struct {
	prefix  string
	aliases map[string]string
}

// NewTable builds a parse table. Aliases map alternate names onto route
// names; aliases pointing at unknown routes are dropped.
func NewTable(prefix string, aliases map[string]string) *Table {
	t := &Table{prefix: prefix, aliases: map[string]string{}}
	if t.prefix == "" {
		t.prefix = "!"
	}
	for alias, target := range aliases {
		target = strings.ToLower(target)
		if _, ok := routes[target]; ok {
			t.aliases[strings.ToLower(alias)] = target
		}
	}
	return t
}

// Prefix returns the command prefix the table answers to.
func (t *Table) Prefix() string { return t.prefix }

// Parse splits a message body into its route and argument. ok is false
// when the body is not a command for this table.
func (t *Table) Parse(body string) (route Route, arg string, ok bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, t.prefix) {
		return Route{}, "", false
	}
	rest := strings.TrimPrefix(body, t.prefix)
	if rest == "" || unicode.IsSpace(rune(rest[0])) {
		return Route{}, "", false
	}

	name := rest
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, arg = rest[:i], strings.TrimSpace(rest[i:])
	}
	name = strings.ToLower(name)
	if target, aliased := t.aliases[name]; aliased {
		name = target
	}
	route, ok = routes[name]
	if !ok {
		return Route{}, "", false
	}
	return route, arg, true
}

// HelpText renders the usage message for the table's prefix.
func (t *Table) HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, l := range helpLines {
		entry := t.prefix + l.name
		if l.usage != "" {
			entry += " " + l.usage
		}
		fmt.Fprintf(&b, "  %-22s %s\n", entry, l.desc)
	}
	if len(t.aliases) > 0 {
		b.WriteString("Aliases:\n")
		for _, alias := range sortedKeys(t.aliases) {
			fmt.Fprintf(&b, "  %s%s -> %s%s\n", t.prefix, alias, t.prefix, t.aliases[alias])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
