package urlx

import (
	"reflect"
	"testing"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.youtube.com/watch?v=x", "youtube.com"},
		{"https://youtu.be/x", "youtu.be"},
		{"https://media.cdn.example.co/v.mp4", "example.co"},
		{"https://EXAMPLE.COM/path", "example.com"},
		{"https://localhost:8080/x", "localhost"},
		{"://bad", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"short link",
			"https://youtu.be/dQw4w9WgXcQ",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			"short link with timestamp",
			"https://youtu.be/dQw4w9WgXcQ?t=42",
			"https://www.youtube.com/watch?t=42&v=dQw4w9WgXcQ",
		},
		{
			"shorts",
			"https://www.youtube.com/shorts/abc123",
			"https://www.youtube.com/watch?v=abc123",
		},
		{
			"watch link untouched",
			"https://www.youtube.com/watch?v=abc123",
			"https://www.youtube.com/watch?v=abc123",
		},
		{
			"other platform untouched",
			"https://vimeo.com/12345",
			"https://vimeo.com/12345",
		},
		{
			"bare youtu.be untouched",
			"https://youtu.be/",
			"https://youtu.be/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCensorTrackers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"si stripped",
			"https://www.youtube.com/watch?v=abc&si=TRACKME",
			"https://www.youtube.com/watch?v=abc",
		},
		{
			"si alone",
			"https://youtu.be/abc?si=TRACKME",
			"https://youtu.be/abc",
		},
		{
			"no si untouched",
			"https://www.youtube.com/watch?v=abc&t=9",
			"https://www.youtube.com/watch?v=abc&t=9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CensorTrackers(tt.in); got != tt.want {
				t.Errorf("CensorTrackers(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	allowed := func(domain string) bool {
		return domain == "youtube.com" || domain == "example.com"
	}

	tests := []struct {
		name string
		ex   Extractor
		body string
		want []string
	}{
		{
			"plain",
			Extractor{},
			"look at https://example.com/cat.gif now",
			[]string{"https://example.com/cat.gif"},
		},
		{
			"backticks stripped",
			Extractor{},
			"try `https://example.com/a` today",
			[]string{"https://example.com/a"},
		},
		{
			"trailing punctuation",
			Extractor{},
			"see https://example.com/a, or https://example.com/b.",
			[]string{"https://example.com/a", "https://example.com/b"},
		},
		{
			"markdown paren",
			Extractor{},
			"[x](https://example.com/a)",
			[]string{"https://example.com/a"},
		},
		{
			"dedupe preserves order",
			Extractor{},
			"https://example.com/a https://example.com/b https://example.com/a",
			[]string{"https://example.com/a", "https://example.com/b"},
		},
		{
			"cap",
			Extractor{MaxURLs: 2},
			"https://example.com/1 https://example.com/2 https://example.com/3",
			[]string{"https://example.com/1", "https://example.com/2"},
		},
		{
			"whitelist",
			Extractor{Allowed: allowed},
			"https://evil.example.net/x https://www.youtube.com/watch?v=ok",
			[]string{"https://www.youtube.com/watch?v=ok"},
		},
		{
			"canonicalized and censored",
			Extractor{Allowed: allowed},
			"https://youtu.be/abc?si=TRACKME",
			[]string{"https://www.youtube.com/watch?v=abc"},
		},
		{
			"no urls",
			Extractor{},
			"nothing to see here",
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ex.Extract(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}
