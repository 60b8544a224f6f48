// Package query resolves search terms into direct media URLs through
// the configured providers.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/config"
)

// responseLimit caps provider API response bodies.
const responseLimit = 4 << 20

var (
	// ErrNoResults means every provider in the chain came back empty.
	ErrNoResults = errors.New("no results")
	// ErrUnknownProvider rejects chain entries that name no provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// errNoKey skips providers whose API key env is unset.
	errNoKey = errors.New("api key not set")
)

// Fetcher is the HTTP surface the providers share.
type Fetcher interface {
	Fetch(ctx context.Context, url string, limit int64) ([]byte, error)
}

type provider func(ctx context.Context, term string) (string, error)

// Resolver turns search terms into media URLs.
type Resolver struct {
	cfg       config.QueryConfig
	web       Fetcher
	log       zerolog.Logger
	providers map[string]provider
}

// New wires the provider set.
func New(cfg config.QueryConfig, web Fetcher, log zerolog.Logger) *Resolver {
	r := &Resolver{cfg: cfg, web: web, log: log.With().Str("component", "query").Logger()}
	r.providers = map[string]provider{
		"tenor":    r.tenor,
		"giphy":    r.giphy,
		"unsplash": r.unsplash,
		"lexica":   r.lexica,
		"waifu":    r.waifu,
		"danbooru": r.danbooru,
		"searx":    r.searx,
	}
	return r
}

// Resolve walks the route's provider chain and returns the first hit.
// Routes without a configured chain use the route name as the provider.
// Providers missing their API key are skipped, not fatal.
func (r *Resolver) Resolve(ctx context.Context, route, term string) (string, error) {
	chain := r.cfg.Providers[route]
	if chain == "" {
		chain = route
	}

	var lastErr error
	for _, name := range strings.Split(chain, "|") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		p, ok := r.providers[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		u, err := p(ctx, term)
		if err != nil {
			if errors.Is(err, errNoKey) {
				r.log.Debug().Str("provider", name).Msg("provider has no api key, skipping")
			} else {
				r.log.Warn().Err(err).Str("provider", name).Str("term", term).Msg("provider failed")
			}
			lastErr = fmt.Errorf("%s: %w", name, err)
			continue
		}
		if u != "" {
			return u, nil
		}
		lastErr = fmt.Errorf("%s: %w", name, ErrNoResults)
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNoResults
}

func (r *Resolver) key(envVar string) (string, error) {
	if envVar == "" {
		return "", errNoKey
	}
	k := os.Getenv(envVar)
	if k == "" {
		return "", fmt.Errorf("%w: $%s is empty", errNoKey, envVar)
	}
	return k, nil
}

func (r *Resolver) getJSON(ctx context.Context, endpoint string, out any) error {
	data, err := r.web.Fetch(ctx, endpoint, responseLimit)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (r *Resolver) tenor(ctx context.Context, term string) (string, error) {
	key, err := r.key(r.cfg.TenorKeyEnv)
	if err != nil {
		return "", err
	}
	q := url.Values{"q": {term}, "key": {key}, "limit": {"1"}, "media_filter": {"gif"}}
	var res struct {
		Results []struct {
			MediaFormats map[string]struct {
				URL string `json:"url"`
			} `json:"media_formats"`
		} `json:"results"`
	}
	if err := r.getJSON(ctx, "https://tenor.googleapis.com/v2/search?"+q.Encode(), &res); err != nil {
		return "", err
	}
	if len(res.Results) == 0 {
		return "", ErrNoResults
	}
	if f, ok := res.Results[0].MediaFormats["gif"]; ok && f.URL != "" {
		return f.URL, nil
	}
	for _, f := range res.Results[0].MediaFormats {
		if f.URL != "" {
			return f.URL, nil
		}
	}
	return "", ErrNoResults
}

func (r *Resolver) giphy(ctx context.Context, term string) (string, error) {
	key, err := r.key(r.cfg.GiphyKeyEnv)
	if err != nil {
		return "", err
	}
	q := url.Values{"api_key": {key}, "q": {term}, "limit": {"1"}}
	var res struct {
		Data []struct {
			Images struct {
				Original struct {
					URL string `json:"url"`
				} `json:"original"`
			} `json:"images"`
		} `json:"data"`
	}
	if err := r.getJSON(ctx, "https://api.giphy.com/v1/gifs/search?"+q.Encode(), &res); err != nil {
		return "", err
	}
	if len(res.Data) == 0 || res.Data[0].Images.Original.URL == "" {
		return "", ErrNoResults
	}
	return res.Data[0].Images.Original.URL, nil
}

func (r *Resolver) unsplash(ctx context.Context, term string) (string, error) {
	key, err := r.key(r.cfg.UnsplashKeyEnv)
	if err != nil {
		return "", err
	}
	q := url.Values{"query": {term}, "per_page": {"1"}, "client_id": {key}}
	var res struct {
		Results []struct {
			Urls struct {
				Regular string `json:"regular"`
			} `json:"urls"`
		} `json:"results"`
	}
	if err := r.getJSON(ctx, "https://api.unsplash.com/search/photos?"+q.Encode(), &res); err != nil {
		return "", err
	}
	if len(res.Results) == 0 || res.Results[0].Urls.Regular == "" {
		return "", ErrNoResults
	}
	return res.Results[0].Urls.Regular, nil
}

func (r *Resolver) lexica(ctx context.Context, term string) (string, error) {
	q := url.Values{"q": {term}}
	var res struct {
		Images []struct {
			Src string `json:"src"`
		} `json:"images"`
	}
	if err := r.getJSON(ctx, "https://lexica.art/api/v1/search?"+q.Encode(), &res); err != nil {
		return "", err
	}
	if len(res.Images) == 0 || res.Images[0].Src == "" {
		return "", ErrNoResults
	}
	return res.Images[0].Src, nil
}

func (r *Resolver) waifu(ctx context.Context, term string) (string, error) {
	category := strings.TrimSpace(strings.ToLower(term))
	if category == "" {
		category = "waifu"
	}
	var res struct {
		URL string `json:"url"`
	}
	if err := r.getJSON(ctx, "https://api.waifu.pics/sfw/"+url.PathEscape(category), &res); err != nil {
		return "", err
	}
	if res.URL == "" {
		return "", ErrNoResults
	}
	return res.URL, nil
}

func (r *Resolver) danbooru(ctx context.Context, term string) (string, error) {
	q := url.Values{"tags": {term}, "limit": {"1"}}
	var res []struct {
		FileURL string `json:"file_url"`
	}
	if err := r.getJSON(ctx, "https://danbooru.donmai.us/posts.json?"+q.Encode(), &res); err != nil {
		return "", err
	}
	if len(res) == 0 || res[0].FileURL == "" {
		return "", ErrNoResults
	}
	return res[0].FileURL, nil
}

func (r *Resolver) searx(ctx context.Context, term string) (string, error) {
	base := strings.TrimRight(r.cfg.SearxInstance, "/")
	if base == "" {
		return "", errors.New("searx instance not configured")
	}
	q := url.Values{"q": {term}, "categories": {"images"}, "format": {"json"}}
	var res struct {
		Results []struct {
			ImgSrc string `json:"img_src"`
		} `json:"results"`
	}
	if err := r.getJSON(ctx, base+"/search?"+q.Encode(), &res); err != nil {
		return "", err
	}
	for _, hit := range res.Results {
		if hit.ImgSrc == "" {
			continue
		}
		// searx instances often return scheme-relative image links.
		if strings.HasPrefix(hit.ImgSrc, "//") {
			return "https:" + hit.ImgSrc, nil
		}
		return hit.ImgSrc, nil
	}
	return "", ErrNoResults
}
