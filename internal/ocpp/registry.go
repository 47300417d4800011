package ocpp

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps identity keys to the single live connection allowed per
// key. Registration is last-writer-wins: a new connection for a key
// evicts and closes the previous holder.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*LiveConnection
	limiter *RateLimiter
	log     *zap.Logger
}

func NewRegistry(limiter *RateLimiter, log *zap.Logger) *Registry {
	return &Registry{
		conns:   make(map[string]*LiveConnection),
		limiter: limiter,
		log:     log,
	}
}

// Register installs conn under key, evicting any previous holder. It
// returns false when the source IP is over the admission limit; the
// caller then closes the incoming connection with CloseCodeRateLimited.
//
// A reconnect from the same source IP as the evicted holder skips
// admission control when no per-charger rule is configured for the key;
// devices that drop and redial in a tight loop would otherwise exhaust
// their own window.
func (r *Registry) Register(key string, conn *LiveConnection) bool {
	r.mu.Lock()
	evicted := r.conns[key]
	if evicted != nil {
		delete(r.conns, key)
	}

	sameSource := evicted != nil && evicted.SourceIP == conn.SourceIP
	bypass := sameSource && !r.limiter.HasRule(key)

	if evicted != nil {
		r.limiter.Release(evicted.SourceIP)
	}

	if !bypass && !r.limiter.Allow(conn.SourceIP) {
		r.mu.Unlock()
		if evicted != nil {
			evicted.CloseWithCode(CloseCodeReplaced, "superseded by new connection")
		}
		return false
	}

	r.conns[key] = conn
	r.mu.Unlock()

	if evicted != nil {
		r.log.Info("Evicting stale connection",
			zap.String("key", key),
			zap.String("old_source_ip", evicted.SourceIP),
			zap.String("new_source_ip", conn.SourceIP),
		)
		evicted.CloseWithCode(CloseCodeReplaced, "superseded by new connection")
	}

	return true
}

// Release removes the mapping for key, but only if conn is still the
// registered holder; an evicted connection's deferred cleanup must not
// tear down its replacement. Safe to call for unknown keys.
func (r *Registry) Release(key string, conn *LiveConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[key]; ok && (conn == nil || current == conn) {
		delete(r.conns, key)
	}
}

// Get returns the live connection for key, or nil.
func (r *Registry) Get(key string) *LiveConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[key]
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
