package server

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry holds a client's rate limiter and its last-seen timestamp.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// perClientLimiter applies a token-bucket rate limit per client IP. Entries
// for idle clients are pruned periodically.
type perClientLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	ttl     time.Duration
}

func newPerClientLimiter(rps float64, burst int) *perClientLimiter {
	return &perClientLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
	}
}

// allow reports whether a request from remoteAddr may proceed.
func (l *perClientLimiter) allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[host]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[host] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// run prunes idle client entries until the context is cancelled.
func (l *perClientLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for host, entry := range l.entries {
				if now.Sub(entry.lastSeen) > l.ttl {
					delete(l.entries, host)
				}
			}
			l.mu.Unlock()
		}
	}
}
