// Package controlplane implements the Producer's typed HTTP client
// against the Metadata Service: fetching producer config, fetching and
// updating intelligences. It is grounded on the retry/backoff shape the
// pack uses for every outbound third-party HTTP client (see
// internal/pkg/httpx), parameterized instead of hardcoded to one vendor
// because the base URL and security key are per-producer, resolved at
// runtime by the Config Resolver.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitskyai/producer-agent/internal/constants"
	"github.com/bitskyai/producer-agent/internal/pkg/httpx"
	"github.com/bitskyai/producer-agent/internal/platform/apierr"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
	"github.com/bitskyai/producer-agent/internal/producer"
)

// Config tunes the HTTP behavior of the client; it does not carry the
// per-producer base URL or security key, which are supplied per-call
// (the Producer may observe a new base URL mid-run when the Config
// Watcher adopts a changed snapshot).
type Config struct {
	Timeout    time.Duration
	MaxRetries int

	// IntelligencesPath/IntelligencesUpdatePath let callers point at
	// whatever routes the metadata service exposes; defaults match its
	// conventional routes.
	IntelligencesPath       string
	IntelligencesUpdatePath string
}

func DefaultConfig() Config {
	return Config{
		Timeout:                 30 * time.Second,
		MaxRetries:              4,
		IntelligencesPath:       "/apis/intelligences",
		IntelligencesUpdatePath: "/apis/intelligences",
	}
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
	if cfg.IntelligencesPath == "" {
		cfg.IntelligencesPath = "/apis/intelligences"
	}
	if cfg.IntelligencesUpdatePath == "" {
		cfg.IntelligencesUpdatePath = "/apis/intelligences"
	}
	return &Client{
		log:        log.With("client", "ControlPlaneClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

var _ producer.ControlPlaneClient = (*Client)(nil)

// GetProducerConfig performs GET /apis/producers/{globalId}?type={type}.
func (c *Client) GetProducerConfig(ctx context.Context, baseURL, globalID, producerType, securityKey string) (*producer.RemoteConfig, error) {
	path := fmt.Sprintf("/apis/producers/%s", url.PathEscape(globalID))
	if producerType != "" {
		path += "?type=" + url.QueryEscape(producerType)
	}
	_, raw, err := c.do(ctx, baseURL, http.MethodGet, path, securityKey, nil)
	if err != nil {
		return nil, err
	}
	var cfg producer.RemoteConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("controlplane: decode producer config: %w", err)
	}
	return &cfg, nil
}

// UpdateProducer performs PUT /apis/producers/{globalId} with the agent
// object as body.
func (c *Client) UpdateProducer(ctx context.Context, baseURL, globalID, securityKey string, cfg producer.RemoteConfig) error {
	path := fmt.Sprintf("/apis/producers/%s", url.PathEscape(globalID))
	_, _, err := c.do(ctx, baseURL, http.MethodPut, path, securityKey, cfg)
	return err
}

// GetIntelligences fetches the next batch of work for this producer.
func (c *Client) GetIntelligences(ctx context.Context, baseURL, globalID, securityKey string) ([]producer.Intelligence, error) {
	path := c.cfg.IntelligencesPath + "?producerId=" + url.QueryEscape(globalID)
	_, raw, err := c.do(ctx, baseURL, http.MethodGet, path, securityKey, nil)
	if err != nil {
		return nil, err
	}
	var items []producer.Intelligence
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("controlplane: decode intelligences: %w", err)
	}
	return items, nil
}

// UpdateIntelligences reports reconciled results back to the control
// plane.
func (c *Client) UpdateIntelligences(ctx context.Context, baseURL, securityKey string, items []producer.Intelligence) error {
	if len(items) == 0 {
		return nil
	}
	_, _, err := c.do(ctx, baseURL, http.MethodPut, c.cfg.IntelligencesUpdatePath, securityKey, items)
	return err
}

func (c *Client) do(ctx context.Context, baseURL, method, path, securityKey string, body any) (*http.Response, []byte, error) {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		resp, raw, err := c.doOnce(ctx, baseURL, method, path, securityKey, body)
		if err == nil {
			return resp, raw, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("control plane request retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, nil, errors.New("controlplane: unreachable retry loop")
}

func (c *Client) doOnce(ctx context.Context, baseURL, method, path, securityKey string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	fullURL := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if securityKey != "" {
		req.Header.Set(constants.SecurityKeyHeader, securityKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}

	if resp.StatusCode >= 400 {
		return resp, raw, apierr.New(resp.StatusCode, classifyVendorCode(raw), fmt.Errorf("controlplane http %d: %s", resp.StatusCode, truncate(raw)))
	}

	return resp, raw, nil
}

// classifyVendorCode pulls a vendor-specific error code out of the
// response body when present, so producer.Classify can key off it:
// SerialRequired/TypeMismatch are disambiguated by vendor code, not
// status alone.
func classifyVendorCode(raw []byte) string {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Code
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
