// Package fetch downloads remote bodies fully into memory under a hard
// byte cap.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/media"
)

const readChunkSize = 32 * 1024

// Client wraps an http.Client hardened for untrusted remote hosts.
type Client struct {
	http       *http.Client
	userAgent  string
	retryPause time.Duration
	log        zerolog.Logger
}

// New builds a client. userAgent may be empty to use Go's default.
func New(userAgent string, log zerolog.Logger) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   5 * time.Minute,
		},
		userAgent:  userAgent,
		retryPause: time.Second,
		log:        log.With().Str("component", "fetch").Logger(),
	}
}

// Fetch downloads rawURL fully into memory. A limit > 0 aborts the read
// the moment the body outgrows it. Transport errors get one retry after a
// short pause; cap breaches are final and never retried.
func (c *Client) Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			c.log.Debug().Str("url", rawURL).Msg("retrying fetch")
		}

		data, err := c.fetchOnce(ctx, rawURL, limit)
		if err == nil {
			return data, nil
		}

		var sizeErr *media.SizeLimitError
		if errors.As(err, &sizeErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, &media.SizeLimitError{Limit: limit}
	}

	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	var total int64
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if limit > 0 && total > limit {
				return nil, &media.SizeLimitError{Limit: limit}
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	if buf.Len() == 0 {
		return nil, errors.New("empty body")
	}
	return buf.Bytes(), nil
}
