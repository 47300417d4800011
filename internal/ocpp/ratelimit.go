package ocpp

import (
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter bounds new connections per source IP inside a fixed
// window. Loopback, private and link-local addresses bypass the limit,
// as do any extra networks configured as trusted.
type RateLimiter struct {
	window  time.Duration
	max     int
	trusted []netip.Prefix

	// rules holds per-charger admission overrides; its only consumer is
	// HasRule, which the registry uses to decide whether a same-IP
	// reconnect may skip admission control.
	rules map[string]int

	mu      sync.Mutex
	buckets map[string]*ipBucket

	log *zap.Logger
	now func() time.Time
}

type ipBucket struct {
	windowStart time.Time
	count       int
}

func NewRateLimiter(window time.Duration, max int, trustedCIDRs []string, rules map[string]int, log *zap.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}

	l := &RateLimiter{
		window:  window,
		max:     max,
		rules:   rules,
		buckets: make(map[string]*ipBucket),
		log:     log,
		now:     time.Now,
	}

	for _, cidr := range trustedCIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			log.Warn("Ignoring invalid trusted network", zap.String("cidr", cidr), zap.Error(err))
			continue
		}
		l.trusted = append(l.trusted, prefix)
	}

	return l
}

// Allow reports whether a new connection from ip is admitted, counting
// it against the current window when it is.
func (l *RateLimiter) Allow(ip string) bool {
	if l.max <= 0 || l.isTrusted(ip) {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[ip] = &ipBucket{windowStart: now, count: 1}
		return true
	}

	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}

// Release returns an admission slot, used when a registered connection
// is evicted so the replacement from the same device is not double
// counted. Safe to call for untracked IPs.
func (l *RateLimiter) Release(ip string) {
	if l.max <= 0 || l.isTrusted(ip) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[ip]; ok && b.count > 0 {
		b.count--
	}
}

// HasRule reports whether a per-charger admission override exists for
// the given identity key.
func (l *RateLimiter) HasRule(key string) bool {
	_, ok := l.rules[key]
	return ok
}

// Limited reports whether any global limit is configured at all.
func (l *RateLimiter) Limited() bool {
	return l.max > 0
}

func (l *RateLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		return true
	}

	for _, prefix := range l.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
