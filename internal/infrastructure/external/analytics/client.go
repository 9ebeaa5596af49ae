package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/infrastructure/config"
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second
	// MaxRetries for failed requests
	MaxRetries = 3
	// RetryDelay between attempts
	RetryDelay = 500 * time.Millisecond
)

// Client forwards entitlement lifecycle events to the analytics collector.
type Client struct {
	cfg        config.AnalyticsConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new analytics HTTP client
func NewClient(cfg config.AnalyticsConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a collector endpoint is configured
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// TrackEvent delivers one event to the collector, retrying transient
// failures. A non-2xx answer below 500 is treated as permanent.
func (c *Client) TrackEvent(ctx context.Context, ev service.Event) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(RetryDelay):
			}
		}

		lastErr = c.send(ctx, body)
		if lastErr == nil {
			return nil
		}

		c.logger.Warn("analytics delivery attempt failed",
			zap.String("event_id", ev.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	return fmt.Errorf("analytics delivery failed after %d attempts: %w", MaxRetries, lastErr)
}

func (c *Client) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn("analytics event rejected", zap.Int("status", resp.StatusCode))
	}
	return nil
}
