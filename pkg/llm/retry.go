package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"clockwork/pkg/logx"
)

// RetryConfig controls retry behavior for completion calls.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig provides reasonable defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
}

// RetryableClient wraps a Client with exponential-backoff retries on
// transient failures.
type RetryableClient struct {
	client Client
	config RetryConfig
	logger *logx.Logger
}

// NewRetryableClient wraps client with the given retry configuration.
func NewRetryableClient(client Client, config RetryConfig) *RetryableClient {
	return &RetryableClient{
		client: client,
		config: config,
		logger: logx.NewLogger("llm-retry"),
	}
}

// Complete implements Client with retry logic.
func (r *RetryableClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt)
			r.logger.Debug("retrying completion in %v (attempt %d/%d): %v",
				delay, attempt, r.config.MaxRetries, lastErr)
			select {
			case <-ctx.Done():
				return CompletionResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := r.client.Complete(ctx, in)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isTransient(err) {
			break
		}
	}

	return CompletionResponse{}, fmt.Errorf("completion failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

func (r *RetryableClient) delayFor(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

// isTransient classifies errors by the common provider failure patterns:
// network problems, rate limits, and server-side 5xx.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())

	if strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection") ||
		strings.Contains(s, "temporar") ||
		strings.Contains(s, "overloaded") {
		return true
	}
	if strings.Contains(s, "rate") || strings.Contains(s, "429") {
		return true
	}
	if strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "529") {
		return true
	}
	return false
}
