package ocpp

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
)

// Session is the in-memory charging state for one (charger, connector)
// pair. Energy accumulates here while a transaction is open and is
// flushed to the durable transaction row when it closes.
type Session struct {
	Serial        string
	Connector     int
	State         domain.ChargerStatus
	TransactionID string
	EnergyWh      int
	MeterStart    int
	LastMeterWh   int
	StartedAt     time.Time
}

// SessionTracker drives the per-connector lifecycle
// Idle -> Preparing -> Charging -> Finishing -> Idle, with Faulted and
// Unavailable reachable from any state and Reserved only from Idle.
// The device remains the source of truth: an out-of-order status is
// logged and applied rather than rejected, since a gateway that argues
// with the hardware just drifts further from reality.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zap.Logger
}

var sessionTransitions = map[domain.ChargerStatus][]domain.ChargerStatus{
	domain.ChargerStatusAvailable:   {domain.ChargerStatusPreparing, domain.ChargerStatusReserved, domain.ChargerStatusAvailable},
	domain.ChargerStatusPreparing:   {domain.ChargerStatusCharging, domain.ChargerStatusAvailable},
	domain.ChargerStatusCharging:    {domain.ChargerStatusFinishing, domain.ChargerStatusAvailable},
	domain.ChargerStatusFinishing:   {domain.ChargerStatusAvailable},
	domain.ChargerStatusReserved:    {domain.ChargerStatusPreparing, domain.ChargerStatusAvailable},
	domain.ChargerStatusFaulted:     {domain.ChargerStatusAvailable, domain.ChargerStatusUnavailable},
	domain.ChargerStatusUnavailable: {domain.ChargerStatusAvailable, domain.ChargerStatusFaulted},
}

func NewSessionTracker(log *zap.Logger) *SessionTracker {
	return &SessionTracker{
		sessions: make(map[string]*Session),
		log:      log,
	}
}

func (t *SessionTracker) session(serial string, connector int) *Session {
	key := IdentityKey(serial, connector)
	s, ok := t.sessions[key]
	if !ok {
		s = &Session{Serial: serial, Connector: connector, State: domain.ChargerStatusAvailable}
		t.sessions[key] = s
	}
	return s
}

// ApplyStatus records a device-reported connector status and returns
// the resulting state. Faulted and Unavailable are always legal;
// anything else off the expected path is logged as unexpected.
func (t *SessionTracker) ApplyStatus(serial string, connector int, status domain.ChargerStatus) domain.ChargerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session(serial, connector)
	if s.State == status {
		return s.State
	}

	if status != domain.ChargerStatusFaulted && status != domain.ChargerStatusUnavailable && !transitionAllowed(s.State, status) {
		t.log.Warn("Unexpected connector status transition",
			zap.String("charge_point_id", serial),
			zap.Int("connector", connector),
			zap.String("from", string(s.State)),
			zap.String("to", string(status)),
		)
	}

	s.State = status
	return s.State
}

func transitionAllowed(from, to domain.ChargerStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State returns the tracked state for a connector, defaulting to
// Available for connectors never seen before.
func (t *SessionTracker) State(serial string, connector int) domain.ChargerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session(serial, connector).State
}

// TransactionStarted opens a session transaction and moves the
// connector to Charging.
func (t *SessionTracker) TransactionStarted(serial string, connector int, txID string, meterStart int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session(serial, connector)
	if s.TransactionID != "" && s.TransactionID != txID {
		t.log.Warn("New transaction opened over an unclosed one",
			zap.String("charge_point_id", serial),
			zap.Int("connector", connector),
			zap.String("open_transaction_id", s.TransactionID),
			zap.String("transaction_id", txID),
		)
	}

	s.TransactionID = txID
	s.MeterStart = meterStart
	s.LastMeterWh = meterStart
	s.EnergyWh = 0
	s.StartedAt = time.Now()
	s.State = domain.ChargerStatusCharging
}

// MeterSample folds an energy register reading (Wh) into the open
// session. Samples without an open transaction are dropped.
func (t *SessionTracker) MeterSample(serial string, connector int, meterWh int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session(serial, connector)
	if s.TransactionID == "" {
		return
	}
	if meterWh >= s.LastMeterWh {
		s.EnergyWh += meterWh - s.LastMeterWh
	}
	s.LastMeterWh = meterWh
}

// TransactionEnded closes the open session transaction and returns its
// final snapshot. Closing without an open record is tolerated; devices
// with clock drift or a missed StartTransaction still send the stop.
func (t *SessionTracker) TransactionEnded(serial string, connector int, txID string, meterStop int) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session(serial, connector)
	if s.TransactionID == "" || (txID != "" && s.TransactionID != txID) {
		t.log.Info("Transaction stop without matching open session",
			zap.String("charge_point_id", serial),
			zap.Int("connector", connector),
			zap.String("transaction_id", txID),
		)
		s.State = domain.ChargerStatusFinishing
		return Session{}, false
	}

	if meterStop >= s.LastMeterWh {
		s.EnergyWh += meterStop - s.LastMeterWh
	}
	s.LastMeterWh = meterStop

	closed := *s
	s.TransactionID = ""
	s.EnergyWh = 0
	s.State = domain.ChargerStatusFinishing
	return closed, true
}

// OpenTransaction returns the transaction id currently open on a
// connector, empty when idle.
func (t *SessionTracker) OpenTransaction(serial string, connector int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session(serial, connector).TransactionID
}

// Drop discards tracked sessions for a charger, used when its record is
// deleted. Live disconnects keep their sessions so a reconnect resumes
// an in-flight transaction.
func (t *SessionTracker) Drop(serial string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, s := range t.sessions {
		if s.Serial == serial {
			delete(t.sessions, key)
		}
	}
}
