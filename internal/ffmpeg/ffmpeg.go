// Package ffmpeg drives the ffmpeg and ffprobe binaries: probing,
// thumbnail frames, container normalization, and bounded live capture.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/media"
)

// killGrace is how long a cancelled subprocess gets to die before its
// pipes are forced shut.
const killGrace = 5 * time.Second

// Options name the binaries.
type Options struct {
	Path      string
	ProbePath string
}

// Client runs ffmpeg and ffprobe.
type Client struct {
	opts Options
	log  zerolog.Logger
}

// New builds a client, defaulting to the binaries on PATH.
func New(opts Options, log zerolog.Logger) *Client {
	if opts.Path == "" {
		opts.Path = "ffmpeg"
	}
	if opts.ProbePath == "" {
		opts.ProbePath = "ffprobe"
	}
	return &Client{
		opts: opts,
		log:  log.With().Str("component", "ffmpeg").Logger(),
	}
}

// thumbnailArgs grabs the first video frame as PNG on stdout.
func thumbnailArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}
}

// Thumbnail extracts the first frame of the video in data as a PNG.
func (c *Client) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := c.run(ctx, bytes.NewReader(data), &out, thumbnailArgs()); err != nil {
		return nil, fmt.Errorf("extract thumbnail: %w", err)
	}
	if out.Len() == 0 {
		return nil, errors.New("thumbnail extraction produced no data")
	}
	return out.Bytes(), nil
}

// normalizeArgs remuxes in into a faststart mp4 at out.
func normalizeArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

// Normalize remuxes video bytes into a faststart mp4. Codecs the
// container refuses make ffmpeg fail; callers treat that as a soft
// failure and ship the original bytes.
func (c *Client) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	in, err := writeTemp("magpie-norm-in-*", data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(in)
	outPath := in + ".mp4"
	defer os.Remove(outPath)

	if err := c.run(ctx, nil, io.Discard, normalizeArgs(in, outPath)); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read normalized output: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("normalize produced empty output")
	}
	return out, nil
}

// captureArgs records seconds of the stream at url as fragmented mp4 on
// stdout. Fragmenting lets the output stream to a pipe.
func captureArgs(url string, seconds int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-t", strconv.Itoa(seconds),
		"-i", url,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "+frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	}
}

// CaptureLive records a bounded slice of a live stream. The duration
// ceiling does not apply to live items; the byte cap still does and
// kills the capture mid-stream when crossed.
func (c *Client) CaptureLive(ctx context.Context, url string, seconds int, limit int64) ([]byte, error) {
	if seconds <= 0 {
		seconds = 30
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := &cappedBuffer{limit: limit, cancel: cancel}
	err := c.run(cctx, nil, sink, captureArgs(url, seconds))
	if sink.exceeded {
		return nil, &media.SizeLimitError{Limit: limit}
	}
	if err != nil {
		return nil, fmt.Errorf("capture live: %w", err)
	}
	if sink.buf.Len() == 0 {
		return nil, errors.New("live capture produced no data")
	}
	return sink.buf.Bytes(), nil
}

// run executes ffmpeg with the given stdio, collecting stderr for the
// error message.
func (c *Client) run(ctx context.Context, stdin io.Reader, stdout io.Writer, args []string) error {
	cmd := exec.CommandContext(ctx, c.opts.Path, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, firstLine(stderr.String()))
	}
	return nil
}

// cappedBuffer cancels the producing process once its cap is crossed.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	exceeded bool
	cancel   context.CancelFunc
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit > 0 && int64(b.buf.Len())+int64(len(p)) > b.limit {
		b.exceeded = true
		b.cancel()
		return 0, errors.New("output over size cap")
	}
	return b.buf.Write(p)
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
