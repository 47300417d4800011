package ocpp

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/adapter/queue"
	"github.com/gridfleet/gateway/internal/infrastructure/workpool"
	"github.com/gridfleet/gateway/internal/observability/telemetry"
	"github.com/gridfleet/gateway/internal/ports"
)

// Config carries the protocol-engine tunables. Zero values fall back to
// conservative defaults.
type Config struct {
	// HeartbeatInterval is the interval handed to devices in the
	// BootNotification reply, in seconds.
	HeartbeatInterval int

	// DefaultCallTimeout bounds outbound calls with no per-action
	// override.
	DefaultCallTimeout time.Duration

	// ActionTimeouts overrides the call timeout per action name.
	ActionTimeouts map[string]time.Duration

	// FollowupTTL bounds how long a TriggerMessage expectation stays
	// consumable.
	FollowupTTL time.Duration

	// Rate limiting for new connections.
	RateLimitWindow  time.Duration
	RateLimitMax     int
	TrustedNetworks  []string
	PerChargerLimits map[string]int

	// Worker pool sizing for durable-store mutations.
	Workers    int
	QueueDepth int
}

// FrameRelay forwards a raw frame to a downstream gateway node.
// Failures are best effort; the engine logs and moves on.
type FrameRelay interface {
	Forward(ctx context.Context, url string, body []byte) error
}

// Deps bundles the collaborators the engine consumes. Everything is an
// interface so tests swap in function-field mocks.
type Deps struct {
	Devices      ports.DeviceService
	Transactions ports.TransactionService
	Chargers     ports.ChargerRepository
	Workflows    ports.WorkflowRepository
	Cache        ports.Cache
	Notifier     ports.Notifier
	Signer       ports.CertificateSigner
	Queue        queue.MessageQueue
	Relay        FrameRelay
}

// Gateway is the OCPP central-system engine: it owns the connection and
// pending-call registries, the per-connector session tracker, and the
// static dispatch tables, and serves every charge-point websocket.
type Gateway struct {
	cfg Config

	devices      ports.DeviceService
	transactions ports.TransactionService
	chargers     ports.ChargerRepository
	workflows    ports.WorkflowRepository
	cache        ports.Cache
	notifier     ports.Notifier
	signer       ports.CertificateSigner
	queue        queue.MessageQueue
	relay        FrameRelay

	pool      *workpool.Pool
	limiter   *RateLimiter
	registry  *Registry
	pending   *PendingRegistry
	followups *FollowupRegistry
	sessions  *SessionTracker

	inbound map[Action]inboundHandler
	results map[Action]resultHandler
	errors  map[Action]errorHandler

	log *zap.Logger
}

func New(cfg Config, deps Deps, log *zap.Logger) *Gateway {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 300
	}
	if cfg.DefaultCallTimeout <= 0 {
		cfg.DefaultCallTimeout = 5 * time.Second
	}

	limiter := NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax, cfg.TrustedNetworks, perChargerRules(cfg.PerChargerLimits), log)

	g := &Gateway{
		cfg:          cfg,
		devices:      deps.Devices,
		transactions: deps.Transactions,
		chargers:     deps.Chargers,
		workflows:    deps.Workflows,
		cache:        deps.Cache,
		notifier:     deps.Notifier,
		signer:       deps.Signer,
		queue:        deps.Queue,
		relay:        deps.Relay,
		pool:         workpool.New(cfg.Workers, cfg.QueueDepth, log),
		limiter:      limiter,
		registry:     NewRegistry(limiter, log),
		pending:      NewPendingRegistry(log),
		followups:    NewFollowupRegistry(cfg.FollowupTTL),
		sessions:     NewSessionTracker(log),
		log:          log,
	}

	g.inbound = g.inboundHandlers()
	g.results = g.resultHandlers()
	g.errors = g.errorHandlers()

	return g
}

func perChargerRules(limits map[string]int) map[string]int {
	if limits == nil {
		return map[string]int{}
	}
	return limits
}

// Registry exposes the connection registry for the admin layer.
func (g *Gateway) Registry() *Registry { return g.registry }

// Sessions exposes the per-connector session tracker.
func (g *Gateway) Sessions() *SessionTracker { return g.sessions }

// Close drains the worker pool. Live connections are torn down by the
// HTTP server shutdown closing their sockets.
func (g *Gateway) Close() {
	g.pool.Close()
}

// audit writes the single per-direction frame log line and bumps the
// message counter.
func (g *Gateway) audit(lc *LiveConnection, direction string, action string, raw []byte) {
	if action == "" {
		action = "unknown"
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, direction).Inc()
	g.log.Info("OCPP frame",
		zap.String("direction", direction),
		zap.String("charge_point_id", lc.Serial),
		zap.String("action", action),
		zap.ByteString("frame", raw),
	)
}

// sendCallResult encodes and transmits a CallResult on lc, writing the
// outbound audit line.
func (g *Gateway) sendCallResult(lc *LiveConnection, messageID string, action Action, payload interface{}) {
	data, err := EncodeCallResult(messageID, payload)
	if err != nil {
		g.log.Error("Encoding CallResult failed",
			zap.String("charge_point_id", lc.Serial),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}
	if err := lc.Send(data); err != nil {
		g.log.Warn("Sending CallResult failed",
			zap.String("charge_point_id", lc.Serial),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}
	g.audit(lc, "out", string(action), data)
}

// sendCallError encodes and transmits a CallError on lc.
func (g *Gateway) sendCallError(lc *LiveConnection, messageID, code, description string) {
	data, err := EncodeCallError(messageID, code, description, nil)
	if err != nil {
		g.log.Error("Encoding CallError failed", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	if err := lc.Send(data); err != nil {
		g.log.Warn("Sending CallError failed",
			zap.String("charge_point_id", lc.Serial),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}
	g.audit(lc, "out", code, data)
}

// publishEvent pushes a telemetry event onto the message queue.
// Delivery is best effort.
func (g *Gateway) publishEvent(subject string, event interface{}) {
	if g.queue == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		g.log.Error("Encoding queue event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := g.queue.Publish(subject, data); err != nil {
		g.log.Warn("Publishing queue event failed", zap.String("subject", subject), zap.Error(err))
	}
}

// notify broadcasts an operator alert. The sink is fire-and-forget.
func (g *Gateway) notify(ctx context.Context, subject, body string) {
	if g.notifier == nil {
		return
	}
	g.notifier.Broadcast(ctx, subject, body)
}

// relayFrame forwards the raw inbound frame to the charger's downstream
// node, wrapped in the forwarding envelope. Failures are logged, never
// surfaced to the device.
func (g *Gateway) relayFrame(ctx context.Context, lc *LiveConnection, forwardURL string, frame *Frame) {
	if g.relay == nil || forwardURL == "" {
		return
	}

	meta := map[string]interface{}{
		"chargePointId": lc.Serial,
		"sourceIp":      lc.SourceIP,
		"receivedAt":    time.Now().UTC().Format(time.RFC3339),
	}
	if frame.Meta != nil {
		meta["upstream"] = json.RawMessage(frame.Meta)
	}

	body, err := WrapForward(frame.Raw, meta)
	if err != nil {
		g.log.Error("Wrapping relay frame failed", zap.String("charge_point_id", lc.Serial), zap.Error(err))
		return
	}

	g.pool.Submit(ctx, func(ctx context.Context) error {
		if err := g.relay.Forward(ctx, forwardURL, body); err != nil {
			g.log.Warn("Relaying frame downstream failed",
				zap.String("charge_point_id", lc.Serial),
				zap.String("target", forwardURL),
				zap.Error(err),
			)
		}
		return nil
	})
}

// callTimeout resolves the timeout for an outbound call from the
// per-action table, falling back to the default.
func (g *Gateway) callTimeout(action Action) time.Duration {
	if d, ok := g.cfg.ActionTimeouts[string(action)]; ok && d > 0 {
		return d
	}
	if d, ok := defaultActionTimeouts[action]; ok {
		return d
	}
	return g.cfg.DefaultCallTimeout
}
