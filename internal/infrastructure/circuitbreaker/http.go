package circuitbreaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPClient wraps an HTTP client with circuit breaker protection.
// Server errors (5xx) count as failures; 4xx responses do not trip the
// breaker since they indicate a caller problem, not an unhealthy peer.
type HTTPClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// Settings configures the wrapped breaker.
type Settings struct {
	Name             string
	Timeout          time.Duration
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
	}
}

func NewHTTPClient(settings Settings, log *zap.Logger) *HTTPClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPClient{
		client:  &http.Client{Timeout: settings.Timeout},
		breaker: breaker,
		log:     log,
	}
}

// Do executes the request through the breaker.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if IsCircuitOpen(err) {
			c.log.Warn("Circuit breaker open, request blocked",
				zap.String("url", req.URL.String()),
				zap.String("breaker", c.breaker.Name()),
			)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// Post sends a JSON body through the breaker.
func (c *HTTPClient) Post(ctx context.Context, url, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// IsCircuitOpen reports whether the error came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
