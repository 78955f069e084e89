package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/models"
)

// Client submits completed repetitions to the external scoring service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *ClientConfig

	healthy   atomic.Bool
	submitted atomic.Int64
	failed    atomic.Int64
}

type ClientConfig struct {
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HealthCheckInterval time.Duration
}

type ClientStats struct {
	Healthy   bool  `json:"healthy"`
	Submitted int64 `json:"submitted"`
	Failed    int64 `json:"failed"`
}

// statusError is a non-200 answer from the service. Client errors are not
// retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("scoring service error (status %d): %s", e.code, e.body)
}

func NewClient(baseURL string, config *ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		logger:  logger,
		config:  config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Submit posts one repetition and returns the service's verdict.
func (c *Client) Submit(ctx context.Context, request *models.SubmissionRequest) (*models.SubmissionResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying submission",
				zap.String("pose_key", request.PoseKey),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			select {
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				c.failed.Add(1)
				return nil, fmt.Errorf("submission cancelled: %w", ctx.Err())
			}
		}

		attempts++
		response, err := c.executeSubmission(ctx, body)
		if err == nil {
			c.submitted.Add(1)
			return response, nil
		}
		lastErr = err

		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code < http.StatusInternalServerError {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	c.failed.Add(1)
	return nil, fmt.Errorf("submission failed after %d attempt(s): %w", attempts, lastErr)
}

func (c *Client) executeSubmission(ctx context.Context, body []byte) (*models.SubmissionResponse, error) {
	url := fmt.Sprintf("%s/pose", c.baseURL)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "fitpipe/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, &statusError{code: response.StatusCode, body: string(bodyBytes)}
	}

	var result models.SubmissionResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.healthy.Store(false)
		return fmt.Errorf("scoring service unhealthy (status %d)", response.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// StartHealthChecker checks the service until ctx is cancelled.
func (c *Client) StartHealthChecker(ctx context.Context) {
	if err := c.HealthCheck(ctx); err != nil {
		c.logger.Warn("Scoring service not available at startup", zap.Error(err))
	}

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.HealthCheck(ctx); err != nil {
				c.logger.Error("Scoring service health check failed", zap.Error(err))
			} else {
				c.logger.Debug("Scoring service health check passed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) GetStats() ClientStats {
	return ClientStats{
		Healthy:   c.healthy.Load(),
		Submitted: c.submitted.Load(),
		Failed:    c.failed.Load(),
	}
}
