package media

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLen = 255

// fallbackName is used when sanitizing leaves nothing behind.
const fallbackName = "media"

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	underscoreRun = regexp.MustCompile(`_{2,}`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// Filename derives the artifact filename from the item's identity fields,
// extension included when known.
func Filename(info Info) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{info.Title, info.Uploader, info.Extractor, info.ID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	base := Sanitize(strings.Join(parts, "-"))
	if info.Ext == "" {
		return base
	}
	ext := Sanitize(info.Ext)
	room := maxFilenameLen - len(ext) - 1
	if room > 0 && len(base) > room {
		base = strings.Trim(base[:room], "_.")
		if base == "" {
			base = fallbackName
		}
	}
	return base + "." + ext
}

// Sanitize folds an arbitrary string onto the safe filename alphabet
// [A-Za-z0-9_.-]. The result is never empty, never longer than 255 bytes,
// and running Sanitize on its own output changes nothing.
func Sanitize(name string) string {
	name = asciiFold(name)
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = underscoreRun.ReplaceAllString(name, "_")
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	name = strings.Trim(name, "_.")
	if name == "" {
		return fallbackName
	}
	return name
}

// asciiFold decomposes accented characters to their base form and leaves
// anything without an ASCII form for the unsafe-character pass to drop.
func asciiFold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
