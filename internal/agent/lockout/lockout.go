// Package lockout throttles repeated login failures. Failures are counted
// per email and source address pair; a burst of bad guesses inside the
// window hard-locks the pair for a fixed duration, which caps an online
// brute force at a handful of attempts per window without ever locking an
// account for everyone at once.
package lockout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "permis/pkg/domain-errors"
	"permis/pkg/requestcontext"
)

const (
	// DefaultMaxFailures is how many failures inside the window engage a lock.
	DefaultMaxFailures = 5

	// DefaultWindow is how far back failures still count.
	DefaultWindow = 15 * time.Minute

	// DefaultLockDuration is how long an engaged lock rejects attempts.
	DefaultLockDuration = 15 * time.Minute

	// sweepAt caps how many records accumulate before stale ones are swept.
	sweepAt = 1024
)

// Guard tracks login failures in memory. State does not survive a restart;
// an attacker who can force restarts has bigger levers than a lockout.
type Guard struct {
	maxFailures  int
	window       time.Duration
	lockDuration time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	records map[string]*record
}

type record struct {
	failures    []time.Time
	lockedUntil time.Time
}

type Option func(g *Guard)

func WithMaxFailures(n int) Option {
	return func(g *Guard) {
		g.maxFailures = n
	}
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		g.window = d
	}
}

func WithLockDuration(d time.Duration) Option {
	return func(g *Guard) {
		g.lockDuration = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New constructs a Guard with the default thresholds.
func New(opts ...Option) *Guard {
	g := &Guard{
		maxFailures:  DefaultMaxFailures,
		window:       DefaultWindow,
		lockDuration: DefaultLockDuration,
		records:      make(map[string]*record),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow reports whether a login attempt for the pair may proceed. A locked
// pair gets a rate_limited error until the lock expires.
func (g *Guard) Allow(ctx context.Context, email, clientIP string) error {
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[key(email, clientIP)]
	if !ok {
		return nil
	}
	if now.Before(rec.lockedUntil) {
		return dErrors.New(dErrors.CodeRateLimited, "too many failed login attempts, try again later")
	}
	return nil
}

// RecordFailure counts one failed attempt. Reaching the failure threshold
// inside the window engages the lock and resets the counter, so the next
// burst after the lock expires starts from zero.
func (g *Guard) RecordFailure(ctx context.Context, email, clientIP string) {
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.records) >= sweepAt {
		g.sweep(now)
	}

	k := key(email, clientIP)
	rec := g.records[k]
	if rec == nil {
		rec = &record{}
		g.records[k] = rec
	}

	kept := rec.failures[:0]
	for _, t := range rec.failures {
		if now.Sub(t) < g.window {
			kept = append(kept, t)
		}
	}
	rec.failures = append(kept, now)

	if len(rec.failures) >= g.maxFailures {
		rec.lockedUntil = now.Add(g.lockDuration)
		rec.failures = rec.failures[:0]
		if g.logger != nil {
			g.logger.WarnContext(ctx, "login lockout engaged",
				"email", email,
				"client_ip", clientIP,
				"locked_until", rec.lockedUntil,
			)
		}
	}
}

// Clear forgets the pair after a successful login.
func (g *Guard) Clear(ctx context.Context, email, clientIP string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, key(email, clientIP))
}

// sweep drops records with no live lock and no failure inside the window.
// Callers hold g.mu.
func (g *Guard) sweep(now time.Time) {
	for k, rec := range g.records {
		if now.Before(rec.lockedUntil) {
			continue
		}
		live := false
		for _, t := range rec.failures {
			if now.Sub(t) < g.window {
				live = true
				break
			}
		}
		if !live {
			delete(g.records, k)
		}
	}
}

func key(email, clientIP string) string {
	return email + "|" + clientIP
}
