package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/config"
	"github.com/magpiebot/magpie/internal/media"
	"github.com/magpiebot/magpie/internal/transport"
)

type fakePipeline struct {
	mu           sync.Mutex
	resolved     []string
	queryURLs    []string
	err          error
	lastModifier media.Modifier
}

func (f *fakePipeline) bundle(url string) *media.Bundle {
	return &media.Bundle{Content: media.Artifact{
		Info: media.Info{URL: url, ID: "x", Title: "T", MIMEType: "video/mp4", Ext: "mp4", Size: 4, Origin: media.OriginAdvanced},
		File: media.File{Data: []byte("data")},
	}}
}

func (f *fakePipeline) Resolve(ctx context.Context, url string, mod media.Modifier) (*media.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, url)
	f.lastModifier = mod
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle(url), nil
}

func (f *fakePipeline) ResolveQuery(ctx context.Context, url string, mod media.Modifier) (*media.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryURLs = append(f.queryURLs, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle(url), nil
}

func (f *fakePipeline) resolvedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resolved...)
}

type fakeQuerier struct {
	url string
	err error

	mu    sync.Mutex
	terms []string
}

func (f *fakeQuerier) Resolve(ctx context.Context, route, term string) (string, error) {
	f.mu.Lock()
	f.terms = append(f.terms, route+":"+term)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	uploads []string
	sent    []transport.Message
	texts   []string
	seq     int
}

func (f *fakeTransport) React(ctx context.Context, ref transport.EventRef, emoji string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("$r%d", f.seq), nil
}

func (f *fakeTransport) Redact(ctx context.Context, room, eventID string) error { return nil }

func (f *fakeTransport) Upload(ctx context.Context, data []byte, mime, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	return fmt.Sprintf("mxc://test/%d", len(f.uploads)), nil
}

func (f *fakeTransport) SendMedia(ctx context.Context, room string, msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) SendText(ctx context.Context, room, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, body)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) textCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Platforms = map[string]string{"video.test": "video"}
	return cfg
}

func newTestBot(cfg *config.Config, pipe *fakePipeline, q *fakeQuerier, tr *fakeTransport) *Bot {
	return New(cfg, pipe, q, tr, zerolog.Nop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ref() transport.EventRef {
	return transport.EventRef{Room: "!room:test", Event: "$msg"}
}

func TestGetCommandDelivers(t *testing.T) {
	pipe := &fakePipeline{}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "!get https://video.test/watch/1")

	waitFor(t, "media sent", func() bool { return tr.sentCount() == 1 })
	urls := pipe.resolvedURLs()
	if len(urls) != 1 || urls[0] != "https://video.test/watch/1" {
		t.Errorf("resolved = %v", urls)
	}
	if got := b.Stats().Delivered; got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
}

func TestAudioCommandPassesModifier(t *testing.T) {
	pipe := &fakePipeline{}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "!audio https://video.test/watch/1")

	waitFor(t, "media sent", func() bool { return tr.sentCount() == 1 })
	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if pipe.lastModifier != media.ModifierAudio {
		t.Errorf("modifier = %v, want audio", pipe.lastModifier)
	}
}

func TestPassiveListening(t *testing.T) {
	pipe := &fakePipeline{}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "check this out https://video.test/watch/9")

	waitFor(t, "media sent", func() bool { return tr.sentCount() == 1 })
	urls := pipe.resolvedURLs()
	if len(urls) != 1 || urls[0] != "https://video.test/watch/9" {
		t.Errorf("resolved = %v", urls)
	}
}

func TestPassiveListeningOff(t *testing.T) {
	cfg := testConfig()
	cfg.Command.PassiveURLListening = false
	pipe := &fakePipeline{}
	tr := &fakeTransport{}
	b := newTestBot(cfg, pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "check this out https://video.test/watch/9")

	time.Sleep(50 * time.Millisecond)
	if got := len(pipe.resolvedURLs()); got != 0 {
		t.Errorf("resolved %d urls with passive listening off", got)
	}
}

func TestUnlistedDomainIgnored(t *testing.T) {
	pipe := &fakePipeline{}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "https://stranger.example/thing")

	time.Sleep(50 * time.Millisecond)
	if got := len(pipe.resolvedURLs()); got != 0 {
		t.Errorf("resolved %d urls from an unlisted domain", got)
	}
}

func TestHelpCommand(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), &fakePipeline{}, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "!help")

	waitFor(t, "help text", func() bool { return tr.textCount() == 1 })
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !strings.Contains(tr.texts[0], "Commands:") {
		t.Errorf("help = %q", tr.texts[0])
	}
}

func TestQueryCommand(t *testing.T) {
	pipe := &fakePipeline{}
	q := &fakeQuerier{url: "https://media.tenor.example/cat.gif"}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, q, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "!tenor happy cat")

	waitFor(t, "media sent", func() bool { return tr.sentCount() == 1 })
	q.mu.Lock()
	if len(q.terms) != 1 || q.terms[0] != "tenor:happy cat" {
		t.Errorf("terms = %v", q.terms)
	}
	q.mu.Unlock()

	pipe.mu.Lock()
	defer pipe.mu.Unlock()
	if len(pipe.queryURLs) != 1 || pipe.queryURLs[0] != "https://media.tenor.example/cat.gif" {
		t.Errorf("query urls = %v", pipe.queryURLs)
	}
}

func TestAliasCommand(t *testing.T) {
	pipe := &fakePipeline{}
	q := &fakeQuerier{url: "https://media.tenor.example/cat.gif"}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, q, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "!gif cat")

	waitFor(t, "media sent", func() bool { return tr.sentCount() == 1 })
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.terms) != 1 || q.terms[0] != "tenor:cat" {
		t.Errorf("terms = %v, want the gif alias to hit tenor", q.terms)
	}
}

func TestResolveFailureStaysSilent(t *testing.T) {
	pipe := &fakePipeline{err: errors.New("boom")}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test", "!get https://video.test/watch/1")

	waitFor(t, "failure counted", func() bool { return b.Stats().Failed == 1 })
	if tr.sentCount() != 0 || tr.textCount() != 0 {
		t.Error("failure leaked into the room")
	}
}

func TestMultipleURLsOneMessage(t *testing.T) {
	pipe := &fakePipeline{}
	tr := &fakeTransport{}
	b := newTestBot(testConfig(), pipe, &fakeQuerier{}, tr)
	b.Start(context.Background())
	defer b.Close()

	b.HandleMessage(context.Background(), ref(), "@user:test",
		"!get https://video.test/watch/1 https://video.test/watch/2")

	waitFor(t, "both sent", func() bool { return tr.sentCount() == 2 })
	if got := len(pipe.resolvedURLs()); got != 2 {
		t.Errorf("resolved = %d urls, want 2", got)
	}
}
