// Package pipeline resolves one URL into a finished media bundle: profile
// lookup, acquisition through an ordered strategy chain, ceiling gates
// with thumbnail fallback, post-processing, and packaging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/config"
	"github.com/magpiebot/magpie/internal/ffmpeg"
	"github.com/magpiebot/magpie/internal/media"
	"github.com/magpiebot/magpie/internal/urlx"
	"github.com/magpiebot/magpie/internal/ytdlp"
)

var (
	// ErrLiveNotAllowed rejects live streams on profiles without capture.
	ErrLiveNotAllowed = errors.New("live stream not allowed")
	// ErrDurationLimit rejects items over the duration ceiling.
	ErrDurationLimit = errors.New("duration over limit")
	// ErrNoMedia means no strategy produced an artifact.
	ErrNoMedia = errors.New("no media produced")
	// ErrUnsupportedType rejects direct fetches that are not media.
	ErrUnsupportedType = errors.New("unsupported content type")
)

// Downloader is the external-downloader surface the pipeline needs.
type Downloader interface {
	Query(ctx context.Context, url string, formats []string, audio bool) (*ytdlp.Listing, error)
	Download(ctx context.Context, url string, formats []string, audio bool, limit int64) ([]byte, error)
}

// Processor is the ffmpeg surface the pipeline needs.
type Processor interface {
	Probe(ctx context.Context, data []byte) (*ffmpeg.ProbeResult, error)
	Thumbnail(ctx context.Context, data []byte) ([]byte, error)
	Normalize(ctx context.Context, data []byte) ([]byte, error)
	CaptureLive(ctx context.Context, url string, seconds int, limit int64) ([]byte, error)
}

// Fetcher is the plain-HTTP surface the pipeline needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string, limit int64) ([]byte, error)
}

// Resolver runs the media resolution pipeline.
type Resolver struct {
	cfg *config.Config
	dl  Downloader
	ff  Processor
	web Fetcher
	log zerolog.Logger
}

// New wires a resolver.
func New(cfg *config.Config, dl Downloader, ff Processor, web Fetcher, log zerolog.Logger) *Resolver {
	return &Resolver{
		cfg: cfg,
		dl:  dl,
		ff:  ff,
		web: web,
		log: log.With().Str("component", "pipeline").Logger(),
	}
}

// outcome is what one strategy decided.
type outcome int

const (
	// outcomeNext moves on to the following strategy.
	outcomeNext outcome = iota
	// outcomeDone stops the chain with an artifact in hand.
	outcomeDone
	// outcomeAbort stops the chain with a terminal error.
	outcomeAbort
)

type strategy struct {
	name string
	run  func(ctx context.Context, st *state) (outcome, error)
}

// state carries one URL through the strategy chain.
type state struct {
	url     string
	mod     media.Modifier
	profile config.Profile
	listing *ytdlp.Listing

	// fallbackReason is the ceiling rejection that armed the thumbnail
	// fallback; nil while no rejection happened.
	fallbackReason error

	data []byte
	info media.Info
}

func (st *state) audio() bool { return st.mod == media.ModifierAudio }

// Resolve turns one URL into a finished bundle under its platform's
// profile. An unlisted domain fails here, before any network activity.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, mod media.Modifier) (*media.Bundle, error) {
	prof, err := r.cfg.ProfileFor(urlx.Domain(rawURL))
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, rawURL, mod, prof)
}

// ResolveQuery handles provider-resolved URLs under the reserved query
// profile, whatever their domain.
func (r *Resolver) ResolveQuery(ctx context.Context, rawURL string, mod media.Modifier) (*media.Bundle, error) {
	prof, err := r.cfg.QueryProfileFor()
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, rawURL, mod, prof)
}

func (r *Resolver) resolve(ctx context.Context, rawURL string, mod media.Modifier, prof config.Profile) (*media.Bundle, error) {
	st := &state{url: rawURL, mod: mod, profile: prof}

	var chain []strategy
	if prof.Mode == config.ModeDirect {
		chain = []strategy{{"direct fetch", r.directFetch}}
	} else {
		listing, err := r.dl.Query(ctx, rawURL, prof.Formats, st.audio())
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", prof.Name, err)
		}
		st.listing = listing
		chain = []strategy{
			{"live capture", r.liveCapture},
			{"format download", r.formatDownload},
			{"thumbnail fallback", r.thumbnailFallback},
		}
	}

	done := false
	for _, s := range chain {
		out, err := s.run(ctx, st)
		if out == outcomeAbort {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		if out == outcomeDone {
			r.log.Debug().Str("url", rawURL).Str("strategy", s.name).Msg("media acquired")
			done = true
			break
		}
	}
	if !done {
		return nil, fmt.Errorf("%w for %s", ErrNoMedia, rawURL)
	}

	return r.finish(ctx, st)
}

// directFetch pulls the URL body itself and accepts it when it sniffs as
// image, video, or audio.
func (r *Resolver) directFetch(ctx context.Context, st *state) (outcome, error) {
	data, err := r.web.Fetch(ctx, st.url, st.profile.MaxBytes())
	if err != nil {
		return outcomeAbort, err
	}
	mt := mimetype.Detect(data)
	if media.KindForMIME(mt.String()) == media.KindFile {
		return outcomeAbort, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}
	st.data = data
	st.info = media.Info{
		URL:      st.url,
		ID:       media.SimpleID(st.url),
		MIMEType: mt.String(),
		Ext:      strings.TrimPrefix(mt.Extension(), "."),
		Origin:   media.OriginSimple,
		Modifier: st.mod,
	}
	return outcomeDone, nil
}

// liveCapture records a bounded slice of live streams. Live items bypass
// the duration ceiling; profiles without allow_live reject them outright.
func (r *Resolver) liveCapture(ctx context.Context, st *state) (outcome, error) {
	if !st.listing.IsLive {
		return outcomeNext, nil
	}
	if !st.profile.AllowLive {
		return outcomeAbort, ErrLiveNotAllowed
	}
	data, err := r.ff.CaptureLive(ctx, st.listing.StreamURL(), st.profile.LiveCaptureSecs, st.profile.MaxBytes())
	if err != nil {
		return outcomeAbort, err
	}
	st.data = data
	info := r.listingInfo(st, media.OriginAdvanced)
	info.DurationSecs = float64(st.profile.LiveCaptureSecs)
	st.info = info
	return outcomeDone, nil
}

// formatDownload gates on the listing's figures, then walks the ordered
// format list. Ceiling and cap rejections may arm the thumbnail
// fallback; anything else is terminal.
func (r *Resolver) formatDownload(ctx context.Context, st *state) (outcome, error) {
	prof := st.profile
	if max := float64(prof.MaxDurationSecs); max > 0 && st.listing.DurationSecs > max {
		err := fmt.Errorf("%w: %.0fs over %ds ceiling", ErrDurationLimit, st.listing.DurationSecs, prof.MaxDurationSecs)
		return r.ceilingReject(st, err)
	}
	if limit := prof.MaxBytes(); limit > 0 && st.listing.FilesizeApprox > limit {
		return r.ceilingReject(st, &media.SizeLimitError{Limit: limit})
	}

	formats := ytdlp.DownloadFormats(prof.Formats, st.listing.SelectedFormat)
	data, err := r.dl.Download(ctx, st.url, formats, st.audio(), prof.MaxBytes())
	if err != nil {
		var sizeErr *media.SizeLimitError
		if errors.As(err, &sizeErr) {
			return r.ceilingReject(st, err)
		}
		return outcomeAbort, err
	}
	st.data = data
	st.info = r.listingInfo(st, media.OriginAdvanced)
	return outcomeDone, nil
}

// ceilingReject arms the thumbnail fallback when policy and the listing
// allow it; otherwise the rejection is terminal.
func (r *Resolver) ceilingReject(st *state, reason error) (outcome, error) {
	if r.cfg.File.ThumbnailFallback && st.listing.Thumbnail != "" {
		st.fallbackReason = reason
		return outcomeNext, nil
	}
	return outcomeAbort, reason
}

// thumbnailFallback delivers the listing's thumbnail image in place of a
// ceiling-rejected item. The real figures move into the Meta fields.
func (r *Resolver) thumbnailFallback(ctx context.Context, st *state) (outcome, error) {
	if st.fallbackReason == nil {
		return outcomeNext, nil
	}
	r.log.Info().Str("url", st.url).AnErr("reason", st.fallbackReason).Msg("delivering thumbnail fallback")

	data, err := r.web.Fetch(ctx, st.listing.Thumbnail, st.profile.MaxBytes())
	if err != nil {
		return outcomeAbort, fmt.Errorf("%v, and the fallback fetch failed: %w", st.fallbackReason, err)
	}
	st.data = data
	info := r.listingInfo(st, media.OriginThumbnailFallback)
	info.MetaDurationSecs = st.listing.DurationSecs
	info.MetaSize = st.listing.FilesizeApprox
	info.ThumbnailURL = ""
	info.DurationSecs = 0
	info.Width, info.Height = 0, 0
	st.info = info
	return outcomeDone, nil
}

// listingInfo seeds an Info from the listing.
func (r *Resolver) listingInfo(st *state, origin media.Origin) media.Info {
	l := st.listing
	return media.Info{
		URL:            st.url,
		ID:             l.ID,
		Title:          l.Title,
		Uploader:       l.Uploader,
		Extractor:      l.Extractor,
		DurationSecs:   l.DurationSecs,
		ThumbnailURL:   l.Thumbnail,
		SelectedFormat: l.SelectedFormat,
		IsLive:         l.IsLive,
		WebpageURL:     l.WebpageURL,
		Width:          l.Width,
		Height:         l.Height,
		Ext:            l.Ext,
		Origin:         origin,
		Modifier:       st.mod,
	}
}

// finish post-processes the acquired bytes and packages the bundle.
func (r *Resolver) finish(ctx context.Context, st *state) (*media.Bundle, error) {
	data := st.data
	info := st.info
	if len(data) == 0 {
		return nil, ErrNoMedia
	}

	isAudio := st.audio() && info.Origin == media.OriginAdvanced

	// Normalize advanced video into a streamable mp4. A failure here is
	// swallowed and the original bytes ship.
	if info.Origin == media.OriginAdvanced && !isAudio && !info.IsLive && r.cfg.File.NormalizeVideo {
		if out, err := r.ff.Normalize(ctx, data); err != nil {
			r.log.Warn().Err(err).Str("url", st.url).Msg("normalize failed, shipping original")
		} else if limit := st.profile.MaxBytes(); limit > 0 && int64(len(out)) > limit {
			r.log.Warn().Str("url", st.url).Msg("normalized output over cap, shipping original")
		} else {
			data = out
		}
	}

	if info.MIMEType == "" || info.Origin == media.OriginAdvanced {
		mt := mimetype.Detect(data)
		info.MIMEType = mt.String()
		info.Ext = strings.TrimPrefix(mt.Extension(), ".")
	}
	if isAudio {
		info.MIMEType = "audio/mp3"
		info.Ext = "mp3"
	}
	if info.Origin == media.OriginThumbnailFallback && media.KindForMIME(info.MIMEType) != media.KindImage {
		info.MIMEType = "image/jpeg"
		info.Ext = "jpg"
	}

	// Advanced video often arrives without dimensions; probe fills the
	// gaps. Probe trouble is not worth failing a delivery over.
	if info.Origin == media.OriginAdvanced && media.KindForMIME(info.MIMEType) == media.KindVideo &&
		(info.Width == 0 || info.Height == 0 || info.DurationSecs == 0) {
		if pr, err := r.ff.Probe(ctx, data); err != nil {
			r.log.Debug().Err(err).Str("url", st.url).Msg("probe failed")
		} else {
			if info.Width == 0 {
				info.Width = pr.Width
			}
			if info.Height == 0 {
				info.Height = pr.Height
			}
			if info.DurationSecs == 0 {
				info.DurationSecs = pr.DurationSecs
			}
		}
	}

	info.Size = int64(len(data))
	bundle := &media.Bundle{Content: media.Artifact{Info: info, File: media.File{Data: data}}}
	if th := r.companionThumbnail(ctx, st, info, data); th != nil {
		bundle.Thumbnail = th
	}
	return bundle, nil
}

// companionThumbnail picks the thumbnail source per policy: a listing
// thumbnail URL wins, then local frame extraction for videos. Audio,
// images, and fallback artifacts carry none. Failures are swallowed; the
// content still ships.
func (r *Resolver) companionThumbnail(ctx context.Context, st *state, info media.Info, content []byte) *media.Artifact {
	if info.Origin == media.OriginThumbnailFallback {
		return nil
	}
	kind := media.KindForMIME(info.MIMEType)
	if kind == media.KindAudio || kind == media.KindImage {
		return nil
	}

	var (
		data []byte
		err  error
		src  string
	)
	switch {
	case info.Origin == media.OriginAdvanced && info.ThumbnailURL != "":
		src = "listing"
		data, err = r.web.Fetch(ctx, info.ThumbnailURL, st.profile.MaxBytes())
	case kind == media.KindVideo && r.cfg.File.ExtractThumbnail:
		src = "frame"
		data, err = r.ff.Thumbnail(ctx, content)
	default:
		return nil
	}
	if err != nil {
		r.log.Warn().Err(err).Str("source", src).Str("url", st.url).Msg("thumbnail failed, shipping without")
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	mime, ext := "image/jpeg", "jpg"
	if mt := mimetype.Detect(data); media.KindForMIME(mt.String()) == media.KindImage {
		mime, ext = mt.String(), strings.TrimPrefix(mt.Extension(), ".")
	}
	return &media.Artifact{
		Info: media.Info{
			URL:      info.ThumbnailURL,
			ID:       info.ID + "-thumb",
			Title:    info.Title,
			Origin:   media.OriginThumbnail,
			MIMEType: mime,
			Ext:      ext,
			Size:     int64(len(data)),
		},
		File: media.File{Data: data},
	}
}
