package ytdlp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Listing is the downloader's simulate-mode description of one URL.
type Listing struct {
	URL            string
	ID             string
	Title          string
	Uploader       string
	Extractor      string
	DurationSecs   float64
	FilesizeApprox int64
	IsLive         bool
	Thumbnail      string
	WebpageURL     string
	Width          int
	Height         int
	Ext            string

	// SelectedFormat is the format selector that produced this listing.
	// Query stamps it; it is not part of the JSON.
	SelectedFormat string
}

// listingWire mirrors the JSON contract. Numbers may arrive as integers
// or floats; absent keys keep their zero values.
type listingWire struct {
	URL            string  `json:"url"`
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Uploader       string  `json:"uploader"`
	Extractor      string  `json:"extractor"`
	Duration       float64 `json:"duration"`
	FilesizeApprox float64 `json:"filesize_approx"`
	IsLive         bool    `json:"is_live"`
	Thumbnail      string  `json:"thumbnail"`
	WebpageURL     string  `json:"webpage_url"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Ext            string  `json:"ext"`
}

// ParseListing decodes the first JSON object of simulate-mode output.
// Playlists emit one object per line; everything after the first is
// ignored.
func ParseListing(data []byte) (*Listing, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var w listingWire
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if w.URL == "" && w.WebpageURL == "" && w.ID == "" {
		return nil, errors.New("listing carries no identity")
	}
	return &Listing{
		URL:            w.URL,
		ID:             w.ID,
		Title:          w.Title,
		Uploader:       w.Uploader,
		Extractor:      w.Extractor,
		DurationSecs:   w.Duration,
		FilesizeApprox: int64(w.FilesizeApprox),
		IsLive:         w.IsLive,
		Thumbnail:      w.Thumbnail,
		WebpageURL:     w.WebpageURL,
		Width:          w.Width,
		Height:         w.Height,
		Ext:            w.Ext,
	}, nil
}

// StreamURL is the address ffmpeg should read the stream from.
func (l *Listing) StreamURL() string {
	if l.URL != "" {
		return l.URL
	}
	return l.WebpageURL
}
