package keepalive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxPingBodyBytes = 64 << 10

// ErrEndpointMissing is returned when no keep-alive endpoint is configured.
var ErrEndpointMissing = errors.New("keep-alive endpoint is not configured")

// PingResult is the outcome of one keep-alive call that reached the target.
type PingResult struct {
	OK     bool
	Status int
	Body   string
}

// Pinger performs the outbound keep-alive call for a record.
type Pinger interface {
	Ping(ctx context.Context, rec ConfigRecord) (PingResult, error)
}

type PingerConfig struct {
	Endpoint     string
	UserAgent    string
	Referrer     string
	LoginMarkers []string
	Timeout      time.Duration
}

// HTTPPinger posts the target uid as a form, forwarding the stored cookie
// with browser-like headers. A 2xx answer still fails when the body carries a
// login-required marker.
type HTTPPinger struct {
	cfg    PingerConfig
	origin string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPPinger(cfg PingerConfig, logger *slog.Logger) *HTTPPinger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &HTTPPinger{
		cfg:    cfg,
		origin: originOf(cfg.Referrer, cfg.Endpoint),
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *HTTPPinger) Ping(ctx context.Context, rec ConfigRecord) (PingResult, error) {
	if p.cfg.Endpoint == "" {
		return PingResult{}, ErrEndpointMissing
	}

	form := url.Values{"uid": {rec.TargetUID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return PingResult{}, fmt.Errorf("build keep-alive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", rec.Cookie)
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	if p.cfg.Referrer != "" {
		req.Header.Set("Referer", p.cfg.Referrer)
	}
	if p.origin != "" {
		req.Header.Set("Origin", p.origin)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return PingResult{}, fmt.Errorf("keep-alive request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPingBodyBytes))
	if err != nil {
		return PingResult{}, fmt.Errorf("read keep-alive response: %w", err)
	}

	result := PingResult{Status: resp.StatusCode, Body: string(body)}
	result.OK = resp.StatusCode >= 200 && resp.StatusCode <= 299 && !p.loginRequired(result.Body)
	return result, nil
}

func (p *HTTPPinger) loginRequired(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range p.cfg.LoginMarkers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker != "" && strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// originOf returns scheme://host of the first parseable URL.
func originOf(candidates ...string) string {
	for _, raw := range candidates {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		return u.Scheme + "://" + u.Host
	}
	return ""
}
