package ocpp

import (
	"sync"
	"time"
)

const defaultFollowupTTL = 2 * time.Minute

type followKey struct {
	Serial    string
	Action    Action
	Connector int
}

// Followup is an expectation that a specific unsolicited message will
// arrive from a charger shortly, registered when the device accepts a
// TriggerMessage. The dispatcher consumes it to correlate the eventual
// message back to the trigger.
type Followup struct {
	LogKey    string
	Target    string
	ExpiresAt time.Time
}

type FollowupRegistry struct {
	mu  sync.Mutex
	m   map[followKey]Followup
	ttl time.Duration
	now func() time.Time
}

func NewFollowupRegistry(ttl time.Duration) *FollowupRegistry {
	if ttl <= 0 {
		ttl = defaultFollowupTTL
	}
	return &FollowupRegistry{
		m:   make(map[followKey]Followup),
		ttl: ttl,
		now: time.Now,
	}
}

// Register stores an expectation keyed by (charger, action, connector),
// replacing any previous one for the same key.
func (f *FollowupRegistry) Register(serial string, action Action, connector int, logKey, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.m[followKey{serial, action, connector}] = Followup{
		LogKey:    logKey,
		Target:    target,
		ExpiresAt: f.now().Add(f.ttl),
	}
}

// Consume removes and returns a live expectation matching the inbound
// message. A connector-specific expectation wins over a station-wide
// one.
func (f *FollowupRegistry) Consume(serial string, action Action, connector int) (Followup, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for _, key := range []followKey{
		{serial, action, connector},
		{serial, action, 0},
	} {
		fu, ok := f.m[key]
		if !ok {
			continue
		}
		delete(f.m, key)
		if now.After(fu.ExpiresAt) {
			continue
		}
		return fu, true
	}
	return Followup{}, false
}
