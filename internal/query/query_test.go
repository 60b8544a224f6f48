package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/config"
)

type fakeFetcher struct {
	responses map[string]string
	calls     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string, limit int64) ([]byte, error) {
	f.calls = append(f.calls, u)
	for prefix, body := range f.responses {
		if strings.HasPrefix(u, prefix) {
			return []byte(body), nil
		}
	}
	return nil, fmt.Errorf("unexpected url %s", u)
}

func newTestResolver(t *testing.T, cfg config.QueryConfig, web *fakeFetcher) *Resolver {
	t.Helper()
	return New(cfg, web, zerolog.Nop())
}

func TestTenor(t *testing.T) {
	t.Setenv("TENOR_KEY", "k123")
	web := &fakeFetcher{responses: map[string]string{
		"https://tenor.googleapis.com/v2/search": `{"results":[{"media_formats":{"gif":{"url":"https://media.tenor.com/x.gif"}}}]}`,
	}}
	r := newTestResolver(t, config.QueryConfig{TenorKeyEnv: "TENOR_KEY"}, web)

	got, err := r.Resolve(context.Background(), "tenor", "happy cat")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://media.tenor.com/x.gif" {
		t.Errorf("url = %q", got)
	}
	if len(web.calls) != 1 || !strings.Contains(web.calls[0], "q=happy+cat") || !strings.Contains(web.calls[0], "key=k123") {
		t.Errorf("request = %v", web.calls)
	}
}

func TestGiphy(t *testing.T) {
	t.Setenv("GIPHY_KEY", "g456")
	web := &fakeFetcher{responses: map[string]string{
		"https://api.giphy.com/v1/gifs/search": `{"data":[{"images":{"original":{"url":"https://media.giphy.com/y.gif"}}}]}`,
	}}
	r := newTestResolver(t, config.QueryConfig{GiphyKeyEnv: "GIPHY_KEY"}, web)

	got, err := r.Resolve(context.Background(), "giphy", "dog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://media.giphy.com/y.gif" {
		t.Errorf("url = %q", got)
	}
}

func TestUnsplash(t *testing.T) {
	t.Setenv("UNSPLASH_KEY", "u789")
	web := &fakeFetcher{responses: map[string]string{
		"https://api.unsplash.com/search/photos": `{"results":[{"urls":{"regular":"https://images.unsplash.com/z.jpg"}}]}`,
	}}
	r := newTestResolver(t, config.QueryConfig{UnsplashKeyEnv: "UNSPLASH_KEY"}, web)

	got, err := r.Resolve(context.Background(), "unsplash", "mountain")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://images.unsplash.com/z.jpg" {
		t.Errorf("url = %q", got)
	}
}

func TestLexicaNeedsNoKey(t *testing.T) {
	web := &fakeFetcher{responses: map[string]string{
		"https://lexica.art/api/v1/search": `{"images":[{"src":"https://image.lexica.art/a.png"}]}`,
	}}
	r := newTestResolver(t, config.QueryConfig{}, web)

	got, err := r.Resolve(context.Background(), "lexica", "castle")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://image.lexica.art/a.png" {
		t.Errorf("url = %q", got)
	}
}

func TestWaifu(t *testing.T) {
	web := &fakeFetcher{responses: map[string]string{
		"https://api.waifu.pics/sfw/": `{"url":"https://i.waifu.pics/abc.png"}`,
	}}
	r := newTestResolver(t, config.QueryConfig{}, web)

	t.Run("default category", func(t *testing.T) {
		got, err := r.Resolve(context.Background(), "waifu", "")
		if err != nil {
			t.Fatal(err)
		}
		if got != "https://i.waifu.pics/abc.png" {
			t.Errorf("url = %q", got)
		}
		if !strings.HasSuffix(web.calls[len(web.calls)-1], "/sfw/waifu") {
			t.Errorf("request = %q, want default category", web.calls[len(web.calls)-1])
		}
	})

	t.Run("explicit category", func(t *testing.T) {
		if _, err := r.Resolve(context.Background(), "waifu", "Neko"); err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(web.calls[len(web.calls)-1], "/sfw/neko") {
			t.Errorf("request = %q, want lowered category", web.calls[len(web.calls)-1])
		}
	})
}

func TestDanbooru(t *testing.T) {
	web := &fakeFetcher{responses: map[string]string{
		"https://danbooru.donmai.us/posts.json": `[{"file_url":"https://cdn.donmai.us/b.jpg"}]`,
	}}
	r := newTestResolver(t, config.QueryConfig{}, web)

	got, err := r.Resolve(context.Background(), "danbooru", "landscape")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://cdn.donmai.us/b.jpg" {
		t.Errorf("url = %q", got)
	}
}

func TestSearx(t *testing.T) {
	web := &fakeFetcher{responses: map[string]string{
		"https://searx.test/search": `{"results":[{"img_src":""},{"img_src":"//img.host/c.png"}]}`,
	}}
	r := newTestResolver(t, config.QueryConfig{SearxInstance: "https://searx.test/"}, web)

	got, err := r.Resolve(context.Background(), "searx", "sunset")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://img.host/c.png" {
		t.Errorf("url = %q, want scheme filled in", got)
	}
}

func TestChainFallsBackPastMissingKey(t *testing.T) {
	t.Setenv("GIPHY_KEY", "g456")
	web := &fakeFetcher{responses: map[string]string{
		"https://api.giphy.com/v1/gifs/search": `{"data":[{"images":{"original":{"url":"https://media.giphy.com/y.gif"}}}]}`,
	}}
	cfg := config.QueryConfig{
		GiphyKeyEnv: "GIPHY_KEY",
		Providers:   map[string]string{"tenor": "tenor|giphy"},
	}
	r := newTestResolver(t, cfg, web)

	got, err := r.Resolve(context.Background(), "tenor", "dog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://media.giphy.com/y.gif" {
		t.Errorf("url = %q, want giphy fallback", got)
	}
	for _, call := range web.calls {
		if strings.Contains(call, "tenor.googleapis.com") {
			t.Error("tenor was queried without a key")
		}
	}
}

func TestChainEmptyFirstProvider(t *testing.T) {
	t.Setenv("TENOR_KEY", "k123")
	t.Setenv("GIPHY_KEY", "g456")
	web := &fakeFetcher{responses: map[string]string{
		"https://tenor.googleapis.com/v2/search": `{"results":[]}`,
		"https://api.giphy.com/v1/gifs/search":   `{"data":[{"images":{"original":{"url":"https://media.giphy.com/y.gif"}}}]}`,
	}}
	cfg := config.QueryConfig{
		TenorKeyEnv: "TENOR_KEY",
		GiphyKeyEnv: "GIPHY_KEY",
		Providers:   map[string]string{"gifs": "tenor | giphy"},
	}
	r := newTestResolver(t, cfg, web)

	got, err := r.Resolve(context.Background(), "gifs", "rare thing")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://media.giphy.com/y.gif" {
		t.Errorf("url = %q, want fallback after empty results", got)
	}
}

func TestUnknownProvider(t *testing.T) {
	r := newTestResolver(t, config.QueryConfig{}, &fakeFetcher{})
	_, err := r.Resolve(context.Background(), "frobnicator", "x")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestAllProvidersEmpty(t *testing.T) {
	t.Setenv("TENOR_KEY", "k123")
	web := &fakeFetcher{responses: map[string]string{
		"https://tenor.googleapis.com/v2/search": `{"results":[]}`,
	}}
	r := newTestResolver(t, config.QueryConfig{TenorKeyEnv: "TENOR_KEY"}, web)

	_, err := r.Resolve(context.Background(), "tenor", "nothing matches this")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}
