// Package transport abstracts the chat network the bot delivers to.
package transport

import (
	"context"

	"github.com/magpiebot/magpie/internal/media"
)

// EventRef identifies one message in one room.
type EventRef struct {
	Room  string
	Event string
}

// Message is one outbound media message, network-agnostic. Body carries
// the caption; Filename the download name clients offer.
type Message struct {
	Kind          media.Kind
	Body          string
	Filename      string
	URI           string
	MIME          string
	Size          int64
	DurationMS    int
	Width         int
	Height        int
	ThumbnailURI  string
	ThumbnailMIME string
	ThumbnailSize int64
}

// Transport is what the dispatcher and bot need from the chat network.
type Transport interface {
	// React attaches an emoji to the referenced message and returns the
	// reaction's own event ID so it can be redacted later.
	React(ctx context.Context, ref EventRef, emoji string) (string, error)
	// Redact removes a previously sent event.
	Redact(ctx context.Context, room, eventID string) error
	// Upload stores a blob on the network and returns its content URI.
	Upload(ctx context.Context, data []byte, mime, filename string) (string, error)
	// SendMedia posts a media message into a room.
	SendMedia(ctx context.Context, room string, msg Message) error
	// SendText posts a plain text message into a room.
	SendText(ctx context.Context, room, body string) error
}
