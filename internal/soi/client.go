// Package soi implements the Target-System Client: a single POST (or
// whatever verb the SOI descriptor names) of a bucket's reconciled
// intelligences to a destination system.
package soi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bitskyai/producer-agent/internal/constants"
	"github.com/bitskyai/producer-agent/internal/pkg/httpx"
	"github.com/bitskyai/producer-agent/internal/platform/apierr"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
	"github.com/bitskyai/producer-agent/internal/producer"
)

type Config struct {
	Timeout    time.Duration
	MaxRetries int
}

func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, MaxRetries: 3}
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func New(log *logger.Logger, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		log:        log.With("client", "SOIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

var _ producer.SOIClient = (*Client)(nil)

// Send delivers items to soi.Callback.Method/soi.Callback.Path on
// soi.BaseURL, attaching soi.APIKey as the security header when present.
func (c *Client) Send(ctx context.Context, target producer.SOI, items []producer.Intelligence) error {
	if !target.Complete() {
		return fmt.Errorf("soi: incomplete destination descriptor")
	}

	fullURL := strings.TrimRight(target.BaseURL, "/") + normalizePath(target.Callback.Path)
	method := strings.ToUpper(strings.TrimSpace(target.Callback.Method))

	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := c.doOnce(ctx, method, fullURL, target.APIKey, items)
		if err == nil {
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("soi dispatch retrying",
			"url", fullURL,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("soi: unreachable retry loop")
}

func (c *Client) doOnce(ctx context.Context, method, fullURL, apiKey string, items []producer.Intelligence) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(items); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(constants.SecurityKeyHeader, apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 500 {
			msg = msg[:500] + "..."
		}
		return resp, apierr.New(resp.StatusCode, "", fmt.Errorf("soi http %d: %s", resp.StatusCode, msg))
	}
	return resp, nil
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
