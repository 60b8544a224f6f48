// Package ytdlp shells out to the external downloader. Listings come
// from simulate runs; downloads land in a per-request temp dir that is
// read back into memory and always cleaned up.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/media"
)

// ErrUnrecoverable marks a remote refusal (HTTP 403/404) that no other
// format will get past. It stops the fallback list.
var ErrUnrecoverable = errors.New("unrecoverable downloader error")

// killGrace is how long a cancelled subprocess gets to die before its
// pipes are forced shut.
const killGrace = 5 * time.Second

const watchInterval = 250 * time.Millisecond

// Options configure the external downloader binary.
type Options struct {
	Path            string
	Proxy           string
	UserAgent       string
	CookiesFile     string
	QueryTimeout    time.Duration
	DownloadTimeout time.Duration
}

// Client runs the downloader.
type Client struct {
	opts Options
	log  zerolog.Logger
}

// New builds a client, filling in defaults for unset options.
func New(opts Options, log zerolog.Logger) *Client {
	if opts.Path == "" {
		opts.Path = "yt-dlp"
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 120 * time.Second
	}
	return &Client{
		opts: opts,
		log:  log.With().Str("component", "ytdlp").Logger(),
	}
}

// Query simulates the download, trying each format until one yields a
// listing, and stamps the listing with the format that worked. A 403
// from the remote stops the list.
func (c *Client) Query(ctx context.Context, rawURL string, formats []string, audio bool) (*Listing, error) {
	fmts := formats
	if len(fmts) == 0 {
		fmts = []string{""}
	}
	var lastErr error
	for _, f := range fmts {
		listing, err := c.queryOnce(ctx, rawURL, f, audio)
		if err == nil {
			listing.SelectedFormat = f
			return listing, nil
		}
		lastErr = err
		if errors.Is(err, ErrUnrecoverable) {
			break
		}
		c.log.Debug().Err(err).Str("format", f).Msg("listing attempt failed")
	}
	return nil, fmt.Errorf("query %s: %w", rawURL, lastErr)
}

func (c *Client) queryOnce(ctx context.Context, rawURL, format string, audio bool) (*Listing, error) {
	qctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	cmd := exec.CommandContext(qctx, c.opts.Path, c.queryArgs(rawURL, format, audio)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	if err := cmd.Run(); err != nil {
		if isQueryFatal(stderr.String()) {
			return nil, fmt.Errorf("%w: %s", ErrUnrecoverable, firstLine(stderr.String()))
		}
		return nil, fmt.Errorf("simulate run: %w: %s", err, firstLine(stderr.String()))
	}
	return ParseListing(stdout.Bytes())
}

// Download tries the ordered formats until one lands a file under limit
// bytes (0 = unlimited). A cap breach kills the subprocess and aborts the
// whole list, as does an HTTP 403/404 refusal; other failures advance to
// the next format.
func (c *Client) Download(ctx context.Context, rawURL string, formats []string, audio bool, limit int64) ([]byte, error) {
	fmts := formats
	if len(fmts) == 0 {
		fmts = []string{""}
	}
	var lastErr error
	for _, f := range fmts {
		data, err := c.downloadOnce(ctx, rawURL, f, audio, limit)
		if err == nil {
			return data, nil
		}
		lastErr = err
		var sizeErr *media.SizeLimitError
		if errors.As(err, &sizeErr) || errors.Is(err, ErrUnrecoverable) {
			break
		}
		c.log.Debug().Err(err).Str("format", f).Msg("download attempt failed")
	}
	return nil, fmt.Errorf("download %s: %w", rawURL, lastErr)
}

func (c *Client) downloadOnce(ctx context.Context, rawURL, format string, audio bool, limit int64) ([]byte, error) {
	dir := filepath.Join(os.TempDir(), "magpie-"+uuid.NewString())
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dctx, cancel := context.WithTimeout(ctx, c.opts.DownloadTimeout)
	defer cancel()

	cmd := exec.CommandContext(dctx, c.opts.Path, c.downloadArgs(rawURL, format, dir, audio)...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start downloader: %w", err)
	}

	// The watcher kills the subprocess the moment the growing output
	// crosses the cap, so an oversized stream is never fully pulled.
	var capTripped atomic.Bool
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-dctx.Done():
				return
			case <-ticker.C:
				if limit > 0 && dirSize(dir) > limit {
					capTripped.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	err := cmd.Wait()
	cancel()
	<-watchDone

	if capTripped.Load() {
		return nil, &media.SizeLimitError{Limit: limit}
	}
	if err != nil {
		if isDownloadFatal(stderr.String()) {
			return nil, fmt.Errorf("%w: %s", ErrUnrecoverable, firstLine(stderr.String()))
		}
		return nil, fmt.Errorf("download run: %w: %s", err, firstLine(stderr.String()))
	}
	return harvest(dir, limit)
}

// harvest reads the single file the downloader left behind. The realized
// size is checked once more here; the watcher ticks coarsely.
func harvest(dir string, limit int64) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read work dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("expected one output file, found %d", len(files))
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty output file")
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &media.SizeLimitError{Limit: limit}
	}
	return data, nil
}

func dirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

func isQueryFatal(stderr string) bool {
	return strings.Contains(stderr, "403")
}

func isDownloadFatal(stderr string) bool {
	return strings.Contains(stderr, "403") || strings.Contains(stderr, "404")
}

// firstLine trims subprocess noise down to its leading line.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
