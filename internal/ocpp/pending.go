package ocpp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendingMeta is the metadata attached to an outbound Call: charger id,
// connector, workflow-record primary key, whatever the result handler
// will need to find its way back.
type PendingMeta map[string]interface{}

func (m PendingMeta) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (m PendingMeta) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// CallOutcome is the terminal result of a pending call, delivered to
// synchronous waiters.
type CallOutcome struct {
	Success    bool            `json:"success"`
	Detail     string          `json:"detail,omitempty"`
	StatusCode string          `json:"status_code,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// PendingCall tracks one Call the gateway issued and is awaiting a
// reply for.
type PendingCall struct {
	MessageID   string
	Action      Action
	Serial      string
	Meta        PendingMeta
	RequestedAt time.Time

	timer *time.Timer
}

// PendingRegistry is the correlation backbone: every outbound Call that
// expects a reply registers here before the frame is transmitted, and
// every terminal resolution goes through Pop exactly once.
type PendingRegistry struct {
	mu      sync.Mutex
	calls   map[string]*PendingCall
	waiters map[string]chan CallOutcome
	log     *zap.Logger
}

func NewPendingRegistry(log *zap.Logger) *PendingRegistry {
	return &PendingRegistry{
		calls:   make(map[string]*PendingCall),
		waiters: make(map[string]chan CallOutcome),
		log:     log,
	}
}

// NewMessageID returns a fresh unguessable message id.
func NewMessageID() string {
	return uuid.NewString()
}

// Register records a pending call for messageID. Call before sending
// the frame so a fast reply cannot race the registration.
func (p *PendingRegistry) Register(messageID string, action Action, serial string, meta PendingMeta) {
	if meta == nil {
		meta = PendingMeta{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[messageID] = &PendingCall{
		MessageID:   messageID,
		Action:      action,
		Serial:      serial,
		Meta:        meta,
		RequestedAt: time.Now(),
	}
}

// Pop removes and returns the pending call for messageID. The second
// Pop for the same id returns false: resolution is at-most-once, which
// is what makes late replies and timeout races safe.
func (p *PendingRegistry) Pop(messageID string) (*PendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.calls[messageID]
	if !ok {
		return nil, false
	}
	delete(p.calls, messageID)

	if pc.timer != nil {
		pc.timer.Stop()
	}
	return pc, true
}

// ScheduleTimeout arms a timeout for messageID. The callback only fires
// if the entry is still pending when the timer expires; scheduling
// against an already-resolved id is a silent no-op.
func (p *PendingRegistry) ScheduleTimeout(messageID string, d time.Duration, onTimeout func(pc *PendingCall)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.calls[messageID]
	if !ok {
		return
	}

	pc.timer = time.AfterFunc(d, func() {
		if expired, ok := p.Pop(messageID); ok {
			onTimeout(expired)
		}
	})
}

// Wait registers a synchronous waiter for messageID. The returned
// channel receives exactly one CallOutcome from RecordResult.
func (p *PendingRegistry) Wait(messageID string) <-chan CallOutcome {
	ch := make(chan CallOutcome, 1)

	p.mu.Lock()
	p.waiters[messageID] = ch
	p.mu.Unlock()

	return ch
}

// Abandon discards the waiter for messageID, for call sites whose send
// failed or whose context expired.
func (p *PendingRegistry) Abandon(messageID string) {
	p.mu.Lock()
	delete(p.waiters, messageID)
	p.mu.Unlock()
}

// RecordResult releases the synchronous waiter for messageID with the
// given outcome. Only the first call per id delivers; a result arriving
// after a timeout already resolved the call (or vice versa) is dropped
// here without complaint.
func (p *PendingRegistry) RecordResult(messageID string, meta PendingMeta, outcome CallOutcome) {
	p.mu.Lock()
	ch, ok := p.waiters[messageID]
	if ok {
		delete(p.waiters, messageID)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	ch <- outcome

	p.log.Debug("Pending call resolved",
		zap.String("message_id", messageID),
		zap.Bool("success", outcome.Success),
		zap.String("status_code", outcome.StatusCode),
	)
}

// Len returns the number of unresolved pending calls.
func (p *PendingRegistry) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
