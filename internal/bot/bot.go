// Package bot wires inbound chat messages to the media pipeline:
// classification, dispatch, resolution, and delivery.
package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/command"
	"github.com/magpiebot/magpie/internal/config"
	"github.com/magpiebot/magpie/internal/dispatch"
	"github.com/magpiebot/magpie/internal/media"
	"github.com/magpiebot/magpie/internal/render"
	"github.com/magpiebot/magpie/internal/transport"
	"github.com/magpiebot/magpie/internal/urlx"
)

// Pipeline is the resolution surface the bot drives.
type Pipeline interface {
	Resolve(ctx context.Context, url string, mod media.Modifier) (*media.Bundle, error)
	ResolveQuery(ctx context.Context, url string, mod media.Modifier) (*media.Bundle, error)
}

// Querier resolves search terms into URLs.
type Querier interface {
	Resolve(ctx context.Context, route, term string) (string, error)
}

// Bot parses messages, shapes tasks, and delivers resolved media.
// Failures stay out of the room; they are logged and counted only.
type Bot struct {
	cfg     *config.Config
	table   *command.Table
	extract *urlx.Extractor
	pipe    Pipeline
	queries Querier
	tr      transport.Transport
	disp    *dispatch.Dispatcher
	log     zerolog.Logger
}

// New wires the bot and its dispatcher.
func New(cfg *config.Config, pipe Pipeline, q Querier, tr transport.Transport, log zerolog.Logger) *Bot {
	b := &Bot{
		cfg:     cfg,
		table:   command.NewTable(cfg.Command.Prefix, cfg.Command.Aliases),
		pipe:    pipe,
		queries: q,
		tr:      tr,
		log:     log.With().Str("component", "bot").Logger(),
	}
	b.extract = &urlx.Extractor{
		MaxURLs: cfg.Command.MaxURLs,
		Allowed: func(domain string) bool {
			_, err := cfg.ProfileFor(domain)
			return err == nil
		},
	}
	b.disp = dispatch.New(dispatch.Options{
		Capacity:       cfg.Queue.Capacity,
		Workers:        cfg.Queue.Workers,
		IndicatorLimit: cfg.Queue.IndicatorLimit,
		RouteTimeout:   cfg.Queue.RouteTimeout(),
	}, tr, b.handle, log)
	return b
}

// Start launches the dispatcher workers.
func (b *Bot) Start(ctx context.Context) { b.disp.Start(ctx) }

// Close drains in-flight tasks.
func (b *Bot) Close() { b.disp.Close() }

// Stats exposes the dispatcher counters.
func (b *Bot) Stats() dispatch.Stats { return b.disp.Stats() }

// HandleMessage classifies one inbound message and submits whatever
// work it carries. Plain messages are scanned for platform URLs when
// passive listening is on.
func (b *Bot) HandleMessage(ctx context.Context, ref transport.EventRef, sender, body string) {
	route, arg, ok := b.table.Parse(body)
	if !ok {
		if !b.cfg.Command.PassiveURLListening {
			return
		}
		urls := b.extract.Extract(body)
		if len(urls) == 0 {
			return
		}
		b.log.Debug().Str("sender", sender).Int("urls", len(urls)).Msg("passive urls picked up")
		b.disp.Submit(ctx, dispatch.Task{
			Ref:   ref,
			Route: command.Route{Name: "get", Kind: command.KindURL},
			URLs:  urls,
		})
		return
	}

	switch route.Kind {
	case command.KindHelp:
		if err := b.tr.SendText(ctx, ref.Room, b.table.HelpText()); err != nil {
			b.log.Warn().Err(err).Msg("help reply failed")
		}
	case command.KindURL:
		urls := b.extract.Extract(arg)
		if len(urls) == 0 {
			b.log.Debug().Str("sender", sender).Str("route", route.Name).Msg("command carried no usable urls")
			return
		}
		b.disp.Submit(ctx, dispatch.Task{Ref: ref, Route: route, URLs: urls})
	case command.KindQuery:
		b.disp.Submit(ctx, dispatch.Task{Ref: ref, Route: route, Query: arg})
	}
}

// handle runs one task. Query routes resolve their term to a URL first,
// then everything flows through the pipeline.
func (b *Bot) handle(ctx context.Context, t dispatch.Task) error {
	if t.Route.Kind == command.KindQuery {
		u, err := b.queries.Resolve(ctx, t.Route.Provider, t.Query)
		if err != nil {
			return fmt.Errorf("query %s: %w", t.Route.Provider, err)
		}
		bundle, err := b.pipe.ResolveQuery(ctx, u, t.Route.Modifier)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", u, err)
		}
		return b.deliver(ctx, t.Ref.Room, bundle)
	}

	var firstErr error
	delivered := 0
	for _, u := range t.URLs {
		bundle, err := b.pipe.Resolve(ctx, u, t.Route.Modifier)
		if err != nil {
			b.log.Warn().Err(err).Str("url", u).Msg("resolve failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("resolve %s: %w", u, err)
			}
			continue
		}
		if err := b.deliver(ctx, t.Ref.Room, bundle); err != nil {
			b.log.Warn().Err(err).Str("url", u).Msg("delivery failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered++
	}
	if delivered == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

// deliver uploads the bundle and posts the message. A thumbnail upload
// failure downgrades the message, never blocks it.
func (b *Bot) deliver(ctx context.Context, room string, bundle *media.Bundle) error {
	info := bundle.Content.Info
	uri, err := b.tr.Upload(ctx, bundle.Content.File.Data, info.MIMEType, media.Filename(info))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	thumbURI := ""
	if bundle.Thumbnail != nil {
		tu, err := b.tr.Upload(ctx, bundle.Thumbnail.File.Data, bundle.Thumbnail.Info.MIMEType, media.Filename(bundle.Thumbnail.Info))
		if err != nil {
			b.log.Warn().Err(err).Msg("thumbnail upload failed, sending without")
		} else {
			thumbURI = tu
		}
	}

	msg := render.Compose(bundle, uri, thumbURI)
	if err := b.tr.SendMedia(ctx, room, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	b.log.Info().
		Str("room", room).
		Str("origin", string(info.Origin)).
		Str("mime", info.MIMEType).
		Int64("size", info.Size).
		Msg("delivered")
	return nil
}
