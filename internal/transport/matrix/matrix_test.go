package matrix

import (
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"

	"github.com/magpiebot/magpie/internal/media"
)

func TestMsgType(t *testing.T) {
	tests := []struct {
		kind media.Kind
		want event.MessageType
	}{
		{media.KindVideo, event.MsgVideo},
		{media.KindAudio, event.MsgAudio},
		{media.KindImage, event.MsgImage},
		{media.KindFile, event.MsgFile},
		{media.Kind("bogus"), event.MsgFile},
	}
	for _, tt := range tests {
		if got := msgType(tt.kind); got != tt.want {
			t.Errorf("msgType(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no homeserver", Options{UserID: "@bot:test", AccessToken: "tok"}},
		{"no user", Options{Homeserver: "https://matrix.test", AccessToken: "tok"}},
		{"no token", Options{Homeserver: "https://matrix.test", UserID: "@bot:test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts, zerolog.Nop()); err == nil {
				t.Error("want error for incomplete options")
			}
		})
	}
}

func TestNewRoomAllowList(t *testing.T) {
	c, err := New(Options{
		Homeserver:  "https://matrix.test",
		UserID:      "@bot:test",
		AccessToken: "tok",
		Rooms:       []string{"!a:test", "!b:test"},
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(c.rooms) != 2 || !c.rooms["!a:test"] {
		t.Errorf("rooms = %v", c.rooms)
	}

	open, err := New(Options{Homeserver: "https://matrix.test", UserID: "@bot:test", AccessToken: "tok"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if open.rooms != nil {
		t.Error("empty room list should mean no filtering")
	}
}
