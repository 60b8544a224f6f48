// Package urlx extracts and normalizes the URLs a chat message carries.
package urlx

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Domain returns the registrable domain of a URL: the last two DNS
// labels of its host, lowercased. Profile lookup keys on this.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// Extractor pulls usable URLs out of message bodies.
type Extractor struct {
	// MaxURLs caps how many URLs one message may yield (0 = no cap).
	MaxURLs int
	// Allowed filters by registrable domain; nil allows everything.
	Allowed func(domain string) bool
}

// Extract returns the message's URLs: canonicalized, tracker-censored,
// whitelisted, de-duplicated preserving order, capped at MaxURLs.
func (e *Extractor) Extract(body string) []string {
	body = strings.ReplaceAll(body, "`", " ")
	matches := urlPattern.FindAllString(body, -1)

	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		u := CensorTrackers(Canonicalize(trimTrailing(m)))
		if u == "" || seen[u] {
			continue
		}
		if e.Allowed != nil && !e.Allowed(Domain(u)) {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if e.MaxURLs > 0 && len(out) == e.MaxURLs {
			break
		}
	}
	return out
}

// trimTrailing drops punctuation that rides along when a URL ends a
// sentence or sits inside markdown.
func trimTrailing(s string) string {
	s = strings.TrimRight(s, `.,;:!?'"`)
	if strings.HasSuffix(s, ")") && !strings.Contains(s, "(") {
		s = strings.TrimSuffix(s, ")")
	}
	return s
}

// Canonicalize rewrites share-link variants onto their watch form,
// keeping a t= timestamp when present. Only YouTube needs this; other
// platforms pass through untouched.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be":
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return rawURL
		}
		q := url.Values{"v": {id}}
		if t := u.Query().Get("t"); t != "" {
			q.Set("t", t)
		}
		return "https://www.youtube.com/watch?" + q.Encode()
	case isYouTubeHost(host) && strings.HasPrefix(u.Path, "/shorts/"):
		id := strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
		if id == "" {
			return rawURL
		}
		return "https://www.youtube.com/watch?" + url.Values{"v": {id}}.Encode()
	}
	return rawURL
}

func isYouTubeHost(host string) bool {
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// CensorTrackers strips the si share-tracking parameter.
func CensorTrackers(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if _, ok := q["si"]; !ok {
		return rawURL
	}
	q.Del("si")
	u.RawQuery = q.Encode()
	return u.String()
}
