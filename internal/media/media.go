// Package media holds the core types a resolved item moves through the
// pipeline as, plus filename and identity helpers.
package media

import (
	"strings"

	"github.com/google/uuid"
)

// Origin records which acquisition path produced an artifact.
type Origin string

const (
	// OriginSimple marks a direct HTTP fetch.
	OriginSimple Origin = "simple"
	// OriginAdvanced marks an external-downloader acquisition.
	OriginAdvanced Origin = "advanced"
	// OriginThumbnailFallback marks a ceiling-rejected item delivered as
	// its thumbnail image, with the real figures kept in the Meta fields.
	OriginThumbnailFallback Origin = "advanced-thumbnail-fallback"
	// OriginThumbnail marks a companion thumbnail artifact.
	OriginThumbnail Origin = "thumbnail"
)

// Modifier tweaks how a URL is acquired.
type Modifier int

const (
	ModifierNone Modifier = iota
	// ModifierAudio extracts the audio track as mp3.
	ModifierAudio
)

func (m Modifier) String() string {
	if m == ModifierAudio {
		return "audio"
	}
	return "none"
}

// Kind is the coarse media class used for message rendering.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// KindForMIME maps a MIME type onto its message kind. Anything outside
// the three media classes is a plain file.
func KindForMIME(mime string) Kind {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	default:
		return KindFile
	}
}

// Info describes one resolved media item.
type Info struct {
	URL       string
	ID        string
	Title     string
	Uploader  string
	Extractor string

	// DurationSecs and Size describe the artifact body itself. Size is
	// always the exact byte length of File.Data once packaged.
	DurationSecs float64
	Size         int64

	// MetaDurationSecs and MetaSize carry the figures of the original
	// item when the artifact is a thumbnail-fallback stand-in.
	MetaDurationSecs float64
	MetaSize         int64

	ThumbnailURL   string
	SelectedFormat string
	IsLive         bool
	WebpageURL     string
	Width          int
	Height         int
	MIMEType       string
	Ext            string
	Origin         Origin
	Modifier       Modifier
}

// File holds an artifact body fully in memory.
type File struct {
	Data []byte
}

// Artifact pairs a body with its metadata.
type Artifact struct {
	Info Info
	File File
}

// Bundle is everything resolved from one URL: the content artifact and,
// when one applies, a companion thumbnail.
type Bundle struct {
	Content   Artifact
	Thumbnail *Artifact
}

// SimpleID derives the stable identifier for direct fetches of a URL.
// The same URL always maps to the same ID.
func SimpleID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}
