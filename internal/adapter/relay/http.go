package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/infrastructure/circuitbreaker"
)

// HTTPRelay delivers raw OCPP frames to a downstream consumer over
// HTTP POST. One breaker guards all targets; a single unhealthy
// downstream should not hold protocol goroutine resources hostage.
type HTTPRelay struct {
	client *circuitbreaker.HTTPClient
	log    *zap.Logger
}

func NewHTTPRelay(log *zap.Logger) *HTTPRelay {
	return &HTTPRelay{
		client: circuitbreaker.NewHTTPClient(circuitbreaker.DefaultSettings("frame-relay"), log),
		log:    log,
	}
}

func (r *HTTPRelay) Forward(ctx context.Context, url string, body []byte) error {
	resp, err := r.client.Post(ctx, url, "application/json", body)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay: downstream returned %d", resp.StatusCode)
	}
	return nil
}
