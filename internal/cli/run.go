package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/magpiebot/magpie/internal/bot"
	"github.com/magpiebot/magpie/internal/config"
	"github.com/magpiebot/magpie/internal/fetch"
	"github.com/magpiebot/magpie/internal/ffmpeg"
	"github.com/magpiebot/magpie/internal/logging"
	"github.com/magpiebot/magpie/internal/pipeline"
	"github.com/magpiebot/magpie/internal/query"
	"github.com/magpiebot/magpie/internal/server"
	"github.com/magpiebot/magpie/internal/transport/matrix"
	"github.com/magpiebot/magpie/internal/ytdlp"
)

const syncRetryWait = 5 * time.Second

func runBot() error {
	// A .env in the working directory is handy in development.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(logging.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	token := os.Getenv(cfg.Transport.AccessTokenEnv)
	if token == "" {
		return fmt.Errorf("$%s is not set, the bot cannot log in", cfg.Transport.AccessTokenEnv)
	}

	cookies, err := ytdlp.WriteCookies("magpie", cfg.YTDLP.CookiesEnv)
	if err != nil {
		return err
	}

	web := fetch.New(cfg.YTDLP.UserAgent, log)
	dl := ytdlp.New(ytdlp.Options{
		Path:            cfg.YTDLP.Path,
		Proxy:           cfg.YTDLP.Proxy,
		UserAgent:       cfg.YTDLP.UserAgent,
		CookiesFile:     cookies,
		QueryTimeout:    cfg.YTDLP.QueryTimeout(),
		DownloadTimeout: cfg.YTDLP.DownloadTimeout(),
	}, log)
	ff := ffmpeg.New(ffmpeg.Options{Path: cfg.FFmpeg.Path, ProbePath: cfg.FFmpeg.ProbePath}, log)

	mx, err := matrix.New(matrix.Options{
		Homeserver:  cfg.Transport.Homeserver,
		UserID:      cfg.Transport.UserID,
		AccessToken: token,
		Rooms:       cfg.Transport.Rooms,
	}, log)
	if err != nil {
		return err
	}

	pipe := pipeline.New(cfg, dl, ff, web, log)
	queries := query.New(cfg.Query, web, log)
	b := bot.New(cfg, pipe, queries, mx, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b.Start(ctx)
	defer b.Close()

	if cfg.Server.Enabled {
		srv := server.New(cfg, b, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("admin server stopped")
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Stop(shutCtx)
		}()
	}

	mx.OnMessage(b.HandleMessage)

	log.Info().
		Str("user", cfg.Transport.UserID).
		Str("homeserver", cfg.Transport.Homeserver).
		Int("platforms", len(cfg.Platforms)).
		Msg("magpie is up")

	// Sync until shutdown, reconnecting after transient failures.
	for {
		err := mx.Run(ctx)
		if ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Dur("retry_in", syncRetryWait).Msg("sync dropped, reconnecting")
		select {
		case <-ctx.Done():
		case <-time.After(syncRetryWait):
		}
	}

	log.Info().Msg("shutting down")
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if !config.Exists() {
		fmt.Fprintf(os.Stderr, "\033[33mNo config file found, using defaults. Run 'magpie init'.\033[0m\n")
		return config.DefaultConfig(), nil
	}
	return config.Load()
}
