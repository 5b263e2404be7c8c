package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/claimvoice/internal/worker"
)

// HTTPSink posts payloads as JSON, n8n webhook style
type HTTPSink struct {
	URL     string
	Token   string
	HTTP    *http.Client
	Limiter *worker.Limiter
	Logger  *slog.Logger
}

// NewHTTPSink creates a sink with a bounded client timeout
func NewHTTPSink(url, token string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		URL:   url,
		Token: token,
		HTTP:  &http.Client{Timeout: timeout},
	}
}

// Deliver posts the payload once. A status of 300 or above is an error.
func (s *HTTPSink) Deliver(ctx context.Context, payload Payload) (*Result, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("%w: missing webhook url", ErrDelivery)
	}
	if s.HTTP == nil {
		s.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx, s.URL); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrDelivery, err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	started := time.Now()
	res, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	result := &Result{StatusCode: res.StatusCode, Body: string(respBody)}

	if res.StatusCode >= 300 {
		return result, fmt.Errorf("%w: status %d: %s", ErrDelivery, res.StatusCode, string(respBody))
	}

	logger.Info("Ticket delivered",
		slog.String("policy_id", payload.PolicyID),
		slog.Int("status", res.StatusCode),
		slog.Duration("elapsed", time.Since(started)))
	return result, nil
}
