package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrWriteEndpointMissing is returned by Write when no write endpoint is set.
var ErrWriteEndpointMissing = errors.New("analytics write endpoint is not configured")

const maxResponseBytes = 4 << 20

// RESTConfig configures the hosted engine's HTTP API.
type RESTConfig struct {
	SQLEndpoint   string
	WriteEndpoint string
	APIToken      string
	Timeout       time.Duration
}

// RESTTransport posts SQL as text/plain with a bearer token.
type RESTTransport struct {
	cfg    RESTConfig
	client *http.Client
	logger *slog.Logger
}

func NewRESTTransport(cfg RESTConfig, logger *slog.Logger) *RESTTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RESTTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (t *RESTTransport) Dialect() Dialect {
	return EngineDialect{}
}

func (t *RESTTransport) Query(ctx context.Context, sql string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.SQLEndpoint, strings.NewReader(sql))
	if err != nil {
		return nil, fmt.Errorf("build analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	t.authorize(req)

	return t.do(req)
}

type dataPoint struct {
	Indexes []string  `json:"indexes"`
	Blobs   []string  `json:"blobs"`
	Doubles []float64 `json:"doubles"`
}

func (t *RESTTransport) Write(ctx context.Context, view View) error {
	if t.cfg.WriteEndpoint == "" {
		return ErrWriteEndpointMissing
	}

	payload, err := json.Marshal(dataPoint{
		Indexes: []string{view.Site},
		Blobs:   []string{view.Path, view.Visitor},
		Doubles: []float64{view.Weight},
	})
	if err != nil {
		return fmt.Errorf("encode data point: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.WriteEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build analytics write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	_, err = t.do(req)
	return err
}

func (t *RESTTransport) authorize(req *http.Request) {
	if t.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIToken)
	}
}

func (t *RESTTransport) do(req *http.Request) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics request to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read analytics response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, failed := envelopeFailure(body)
		if !failed {
			msg = excerpt(strings.TrimSpace(string(body)), 200)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RemoteQueryError{Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}

func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
