package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/andes-analytics/lme-etl/internal/resilience"
)

// ScoringNotifier triggers the downstream propensity scoring run for a date
// range once extraction completes.
type ScoringNotifier interface {
	Notify(ctx context.Context, startDate, endDate string) error
}

// ScoringOption configures the scoring client.
type ScoringOption func(*scoringClient)

// WithScoringTimeout bounds each notification attempt.
func WithScoringTimeout(d time.Duration) ScoringOption {
	return func(c *scoringClient) {
		c.http.Timeout = d
	}
}

// WithScoringAttempts sets the total attempts per notification (including the
// first try).
func WithScoringAttempts(n int) ScoringOption {
	return func(c *scoringClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

type scoringClient struct {
	url         string
	maxAttempts int
	http        *http.Client
}

// NewScoringNotifier creates the HTTP scoring client. The endpoint URL is
// pure configuration; there is no baked-in default host.
func NewScoringNotifier(url string, opts ...ScoringOption) ScoringNotifier {
	c := &scoringClient{
		url:         url,
		maxAttempts: 3,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// Notify POSTs the run's date range to the scoring endpoint, expecting 200.
// Transient failures are retried with exponential backoff.
func (c *scoringClient) Notify(ctx context.Context, startDate, endDate string) error {
	if c.url == "" {
		return eris.New("etl: scoring url not configured")
	}

	body, err := json.Marshal(map[string]string{
		"fecha_inicio": startDate,
		"fecha_fin":    endDate,
	})
	if err != nil {
		return eris.Wrap(err, "etl: marshal scoring request")
	}

	cfg := resilience.Config{
		MaxAttempts:    c.maxAttempts,
		InitialBackoff: time.Second,
		OnRetry:        resilience.RetryLogger("scoring notify"),
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(eris.Wrap(err, "etl: build scoring request"))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "etl: scoring call")
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		statusErr := eris.Errorf("etl: scoring status %d: %s", resp.StatusCode, string(respBody))
		if !retryableStatusCode(resp.StatusCode) {
			return resilience.Permanent(statusErr)
		}
		return statusErr
	})
}
