// Package render turns resolved bundles into outbound messages.
package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/magpiebot/magpie/internal/media"
	"github.com/magpiebot/magpie/internal/transport"
)

var serviceNames = map[string]string{
	"youtube":    "YouTube",
	"tiktok":     "TikTok",
	"twitter":    "Twitter",
	"instagram":  "Instagram",
	"reddit":     "Reddit",
	"soundcloud": "SoundCloud",
	"twitch":     "Twitch",
}

// PrettyService maps an extractor name onto its display form. Extractor
// subnames like "youtube:tab" collapse onto the parent service.
func PrettyService(extractor string) string {
	key := strings.ToLower(extractor)
	if i := strings.IndexByte(key, ':'); i >= 0 {
		key = key[:i]
	}
	if name, ok := serviceNames[key]; ok {
		return name
	}
	if key == "" {
		return ""
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past the hour.
func FormatDuration(secs float64) string {
	total := int(math.Round(secs))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSize renders a byte count with a 1024-based unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FallbackCaption explains a thumbnail stand-in, quoting the real
// figures of the item that was rejected.
func FallbackCaption(info media.Info) string {
	title := info.Title
	if title == "" {
		title = info.URL
	}
	var figures []string
	if info.MetaDurationSecs > 0 {
		figures = append(figures, FormatDuration(info.MetaDurationSecs))
	}
	if info.MetaSize > 0 {
		figures = append(figures, FormatSize(info.MetaSize))
	}
	if len(figures) > 0 {
		return fmt.Sprintf("%s (%s) is over the configured limits, sending the thumbnail instead", title, strings.Join(figures, ", "))
	}
	return fmt.Sprintf("%s is over the configured limits, sending the thumbnail instead", title)
}

// Compose builds the outbound message for a bundle. The content URI and
// optional thumbnail URI come from the caller's uploads.
func Compose(b *media.Bundle, contentURI, thumbURI string) transport.Message {
	info := b.Content.Info
	msg := transport.Message{
		Kind:         media.KindForMIME(info.MIMEType),
		Filename:     media.Filename(info),
		URI:          contentURI,
		MIME:         info.MIMEType,
		Size:         info.Size,
		Width:        info.Width,
		Height:       info.Height,
		DurationMS:   int(math.Round(info.DurationSecs * 1000)),
		ThumbnailURI: thumbURI,
	}

	msg.Body = msg.Filename
	if info.Title != "" {
		msg.Body = info.Title
		if svc := PrettyService(info.Extractor); svc != "" {
			msg.Body = fmt.Sprintf("%s (%s)", info.Title, svc)
		}
	}
	if info.Origin == media.OriginThumbnailFallback {
		msg.Kind = media.KindImage
		msg.Body = FallbackCaption(info)
	}

	if b.Thumbnail != nil {
		msg.ThumbnailMIME = b.Thumbnail.Info.MIMEType
		msg.ThumbnailSize = b.Thumbnail.Info.Size
	}
	return msg
}
