package ssu

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an IP's bucket survives without use.
const limiterIdle = time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiter is a per-IP token bucket gating new inbound sessions.
type sessionLimiter struct {
	mu    sync.Mutex
	table map[netip.Addr]*limiterEntry
	every rate.Limit
	burst int
}

func newSessionLimiter(perSecond float64, burst int) *sessionLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &sessionLimiter{
		table: make(map[netip.Addr]*limiterEntry),
		every: limit,
		burst: burst,
	}
}

// Allow spends one token for ip.
func (l *sessionLimiter) Allow(ip netip.Addr, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.table[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.table[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// cleanup forgets IPs idle for limiterIdle.
func (l *sessionLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.table {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.table, ip)
		}
	}
}
