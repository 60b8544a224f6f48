// Package matrix implements the transport on a Matrix homeserver
// through mautrix.
package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/magpiebot/magpie/internal/media"
	"github.com/magpiebot/magpie/internal/transport"
)

// Options configures the Matrix connection.
type Options struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms limits which rooms are listened to; empty means every
	// joined room.
	Rooms []string
}

// MessageHandler receives inbound room messages.
type MessageHandler func(ctx context.Context, ref transport.EventRef, sender, body string)

// Client wraps a mautrix client behind the transport interface.
type Client struct {
	mx      *mautrix.Client
	rooms   map[id.RoomID]bool
	startup int64
	log     zerolog.Logger
}

// New builds the client. The access token is used as-is; login flows
// are out of scope.
func New(opts Options, log zerolog.Logger) (*Client, error) {
	if opts.Homeserver == "" || opts.UserID == "" {
		return nil, fmt.Errorf("homeserver and user_id are required")
	}
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("access token is empty")
	}
	mx, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix client: %w", err)
	}
	lg := log.With().Str("component", "matrix").Logger()
	mx.Log = lg

	c := &Client{mx: mx, startup: time.Now().UnixMilli(), log: lg}
	if len(opts.Rooms) > 0 {
		c.rooms = make(map[id.RoomID]bool, len(opts.Rooms))
		for _, r := range opts.Rooms {
			c.rooms[id.RoomID(r)] = true
		}
	}
	return c, nil
}

// OnMessage registers the inbound message callback. The bot's own
// messages, rooms outside the allow-list, and events from before
// startup are filtered out here.
func (c *Client) OnMessage(handler MessageHandler) {
	syncer := c.mx.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		if evt.Sender == c.mx.UserID {
			return
		}
		if evt.Timestamp < c.startup {
			return
		}
		if c.rooms != nil && !c.rooms[evt.RoomID] {
			return
		}
		msg := evt.Content.AsMessage()
		if msg == nil || msg.MsgType != event.MsgText {
			return
		}
		ref := transport.EventRef{Room: evt.RoomID.String(), Event: evt.ID.String()}
		handler(ctx, ref, evt.Sender.String(), msg.Body)
	})
}

// Run syncs with the homeserver until the context is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.log.Info().Str("user", c.mx.UserID.String()).Msg("matrix sync starting")
	if err := c.mx.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync: %w", err)
	}
	return nil
}

func (c *Client) React(ctx context.Context, ref transport.EventRef, emoji string) (string, error) {
	resp, err := c.mx.SendReaction(ctx, id.RoomID(ref.Room), id.EventID(ref.Event), emoji)
	if err != nil {
		return "", fmt.Errorf("react: %w", err)
	}
	return resp.EventID.String(), nil
}

func (c *Client) Redact(ctx context.Context, room, eventID string) error {
	if _, err := c.mx.RedactEvent(ctx, id.RoomID(room), id.EventID(eventID)); err != nil {
		return fmt.Errorf("redact: %w", err)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, data []byte, mime, filename string) (string, error) {
	resp, err := c.mx.UploadMedia(ctx, mautrix.ReqUploadMedia{
		ContentBytes:  data,
		ContentLength: int64(len(data)),
		ContentType:   mime,
		FileName:      filename,
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return resp.ContentURI.String(), nil
}

func (c *Client) SendMedia(ctx context.Context, room string, msg transport.Message) error {
	content := event.MessageEventContent{
		MsgType:  msgType(msg.Kind),
		Body:     msg.Body,
		FileName: msg.Filename,
		URL:      id.ContentURIString(msg.URI),
		Info: &event.FileInfo{
			MimeType: msg.MIME,
			Size:     int(msg.Size),
			Width:    msg.Width,
			Height:   msg.Height,
			Duration: msg.DurationMS,
		},
	}
	if msg.ThumbnailURI != "" {
		content.Info.ThumbnailURL = id.ContentURIString(msg.ThumbnailURI)
		content.Info.ThumbnailInfo = &event.FileInfo{
			MimeType: msg.ThumbnailMIME,
			Size:     int(msg.ThumbnailSize),
		}
	}
	if _, err := c.mx.SendMessageEvent(ctx, id.RoomID(room), event.EventMessage, &content); err != nil {
		return fmt.Errorf("send media: %w", err)
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, room, body string) error {
	if _, err := c.mx.SendText(ctx, id.RoomID(room), body); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// msgType maps media kinds onto Matrix message types.
func msgType(kind media.Kind) event.MessageType {
	switch kind {
	case media.KindVideo:
		return event.MsgVideo
	case media.KindAudio:
		return event.MsgAudio
	case media.KindImage:
		return event.MsgImage
	default:
		return event.MsgFile
	}
}
