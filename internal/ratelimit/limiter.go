// Package ratelimit implements fixed-window request counting per client
// identifier.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often Run purges expired windows.
const DefaultSweepInterval = time.Minute

// Decision is the result of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return ((wait + time.Second - 1) / time.Second) * time.Second
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per identifier in fixed windows. A window is live
// while now is not after its reset time. It is safe for concurrent use.
type Limiter struct {
	Now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func New() *Limiter {
	return &Limiter{Now: time.Now, windows: make(map[string]*window)}
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Check counts one request for id against limit per window. Denied requests
// are not counted.
func (l *Limiter) Check(id string, limit int, win time.Duration) Decision {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windows == nil {
		l.windows = make(map[string]*window)
	}

	w, ok := l.windows[id]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(win)}
		l.windows[id] = w
		return Decision{Allowed: limit > 0, Limit: limit, Remaining: max(limit-1, 0), ResetAt: w.resetAt}
	}
	if w.count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// Sweep deletes expired windows and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, id)
			n++
		}
	}
	return n
}

// Len reports the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Int("tracked", l.Len()).Msg("rate limit sweep")
			}
		}
	}
}
