package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	topic      string
	enabled    bool
	priority   string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	// Circuit breaker state
	failures    int
	lastFailure time.Time
	circuitOpen bool
	mutex       sync.Mutex
	// Metrics
	totalSent    int64
	totalFailed  int64
	totalRetries int64
}

type Options struct {
	BaseURL    string
	Topic      string
	Enabled    bool
	Priority   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type NotificationError struct {
	Type       string
	StatusCode int
	Attempt    int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s] attempt %d: %v", e.Type, e.Attempt, e.Underlying)
}

func (e *NotificationError) Unwrap() error {
	return e.Underlying
}

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "timeout", "rate_limit":
		return true
	case "auth", "client":
		return false
	default:
		return e.StatusCode >= 500
	}
}

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
)

func NewClient(opts Options) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		topic:      opts.Topic,
		enabled:    opts.Enabled,
		priority:   opts.Priority,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
	}
}

// NotifyNewUser tells admins that someone signed in for the first time and
// is waiting for a role.
func (c *Client) NotifyNewUser(ctx context.Context, externalID, displayName string) error {
	message := fmt.Sprintf("New user %s (%s) is waiting for approval", displayLabel(displayName), externalID)
	return c.SendNotification(ctx, "New user", message)
}

// NotifyRoleChanged reports a role update.
func (c *Client) NotifyRoleChanged(ctx context.Context, externalID, displayName, role string) error {
	message := fmt.Sprintf("%s (%s) is now %s", displayLabel(displayName), externalID, role)
	return c.SendNotification(ctx, "Role changed", message)
}

func displayLabel(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unnamed user"
	}
	return name
}

func (c *Client) SendNotification(ctx context.Context, title, message string) error {
	if !c.enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{
			Type:       "circuit_open",
			Underlying: errors.New("circuit breaker is open"),
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying notification after delay")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.incrementRetries()
		}

		err := c.sendSingleNotification(ctx, title, message, attempt+1)
		if err == nil {
			c.recordSuccess()
			return nil
		}

		lastErr = err

		var notifErr *NotificationError
		if errors.As(err, &notifErr) && !notifErr.IsRetryable() {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Msg("Non-retryable error, giving up")
			c.recordFailure()
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Msg("Notification attempt failed")
	}

	c.recordFailure()
	return &NotificationError{
		Type:       "max_retries_exceeded",
		Attempt:    c.maxRetries + 1,
		Underlying: lastErr,
	}
}

func (c *Client) sendSingleNotification(ctx context.Context, title, message string, attempt int) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)

	log.Debug().
		Str("url", url).
		Str("title", title).
		Int("attempt", attempt).
		Msg("Sending notification")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return &NotificationError{
			Type:       "client",
			Attempt:    attempt,
			Underlying: err,
		}
	}

	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if c.priority != "" {
		req.Header.Set("Priority", c.priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NotificationError{
			Type:       "network",
			Attempt:    attempt,
			Underlying: err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Attempt:    attempt,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().
		Int("status_code", resp.StatusCode).
		Int("attempt", attempt).
		Msg("Notification sent successfully")

	return nil
}

// Circuit breaker and retry helper methods

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}

	// half-open: let the next attempt through after the cooldown
	if time.Since(c.lastFailure) > circuitCooldown {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}

	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()

	if c.failures >= circuitThreshold && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func (c *Client) incrementRetries() {
	c.mutex.Lock()
	c.totalRetries++
	c.mutex.Unlock()
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	base := float64(c.baseDelay)
	backoff := base * math.Pow(2, float64(attempt-1))

	// Jitter of +/-25%
	jitter := rand.Float64()*0.5 - 0.25
	backoff = backoff * (1 + jitter)

	maxBackoff := float64(c.maxDelay)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	return time.Duration(backoff)
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return "auth"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// GetMetrics returns current notification metrics
func (c *Client) GetMetrics() (sent, failed, retries int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSent, c.totalFailed, c.totalRetries
}
