package ratelimit

import (
	"context"
	"time"

	"github.com/router-for-me/APIGateway/internal/clock"
	log "github.com/sirupsen/logrus"
)

// Limiter enforces sliding-window-log policies over a shared Store.
type Limiter struct {
	store     *Store
	clock     clock.Clock
	policies  Policies
	retention time.Duration
	stats     StatsSink
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = clock.OrSystem(c) }
}

// WithPolicies overrides the per-class policies. Invalid policies keep the default.
func WithPolicies(p Policies) Option {
	return func(l *Limiter) {
		if p.Authenticated.Valid() {
			l.policies.Authenticated = p.Authenticated
		}
		if p.Anonymous.Valid() {
			l.policies.Anonymous = p.Anonymous
		}
	}
}

// WithRetention overrides how long timestamps are kept for diagnostics.
func WithRetention(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.retention = d
		}
	}
}

// WithStats reports every decision to sink.
func WithStats(sink StatsSink) Option {
	return func(l *Limiter) { l.stats = sink }
}

// NewLimiter constructs a Limiter over store, creating one when nil.
func NewLimiter(store *Store, opts ...Option) *Limiter {
	if store == nil {
		store = NewStore()
	}
	l := &Limiter{
		store:     store,
		clock:     clock.SystemClock{},
		policies:  DefaultPolicies(),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the backing store.
func (l *Limiter) Store() *Store { return l.store }

// Policies returns the active per-class policies.
func (l *Limiter) Policies() Policies { return l.policies }

// Allow decides whether identity may make one more request now and records it when admitted.
// override, when positive, replaces the authenticated limit for this identity.
func (l *Limiter) Allow(ctx context.Context, identity Identity, override int) Result {
	if l == nil || identity == "" {
		return Result{Allowed: true}
	}
	now := l.clock.Now()
	class := identity.Class()
	policy := l.policies.For(class, override)

	// Prune, count, decide and record happen under one lock so concurrent
	// requests for the same identity cannot all observe count == limit-1.
	st := l.store
	st.mu.Lock()
	st.pruneLocked(now, l.horizon(policy))
	entries := st.entries[identity]
	lo, hi := windowBounds(entries, now, policy.Window)
	count := hi - lo

	var result Result
	if count >= policy.Limit {
		retryAfter := entries[lo].Add(policy.Window).Sub(now)
		result = Result{
			Allowed:    false,
			Limit:      policy.Limit,
			Remaining:  0,
			Reset:      now.Add(retryAfter),
			RetryAfter: retryAfter,
		}
	} else {
		st.recordLocked(identity, now)
		remaining := policy.Limit - count - 1
		if remaining < 0 {
			remaining = 0
		}
		result = Result{
			Allowed:   true,
			Limit:     policy.Limit,
			Remaining: remaining,
			Reset:     now.Add(policy.Window),
		}
	}
	st.mu.Unlock()

	l.report(ctx, StatsEvent{Identity: identity, Class: class, Allowed: result.Allowed, At: now})
	return result
}

// Usage reports the identity's current window without recording a request.
func (l *Limiter) Usage(identity Identity, override int) Usage {
	class := identity.Class()
	policy := l.policies.For(class, override)
	used := l.store.WindowCount(identity, l.clock.Now(), policy.Window)
	remaining := policy.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Identity:  identity,
		Class:     class,
		Limit:     policy.Limit,
		Window:    policy.Window,
		Used:      used,
		Remaining: remaining,
	}
}

// horizon is the lookback kept by pruning: never shorter than the active window.
func (l *Limiter) horizon(policy Policy) time.Duration {
	if policy.Window > l.retention {
		return policy.Window
	}
	return l.retention
}

func (l *Limiter) report(ctx context.Context, ev StatsEvent) {
	if l.stats == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if errRecord := l.stats.Record(ctx, ev); errRecord != nil {
		log.WithError(errRecord).Debug("rate limit: record stats failed")
	}
}
