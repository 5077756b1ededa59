package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/router-for-me/APIGateway/internal/clock"
)

// manualClock is a settable test clock.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var testBase = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return testBase.Add(time.Duration(seconds * float64(time.Second)))
}

func newTestLimiter(c clock.Clock, anonLimit int) *Limiter {
	return NewLimiter(NewStore(),
		WithClock(c),
		WithPolicies(Policies{
			Authenticated: Policy{Limit: 100, Window: time.Minute},
			Anonymous:     Policy{Limit: anonLimit, Window: time.Minute},
		}),
	)
}

func TestLimiterSlidingWindow(t *testing.T) {
	clk := &manualClock{}
	l := newTestLimiter(clk, 3)
	id := IPIdentity("203.0.113.9")
	ctx := context.Background()

	for _, s := range []float64{0, 10, 20} {
		clk.Set(at(s))
		if res := l.Allow(ctx, id, 0); !res.Allowed {
			t.Fatalf("expected admit at t=%v", s)
		}
	}

	clk.Set(at(59))
	res := l.Allow(ctx, id, 0)
	if res.Allowed {
		t.Fatalf("expected reject at t=59")
	}
	if res.RetryAfterSeconds() != 1 {
		t.Fatalf("expected retry after 1s, got %d", res.RetryAfterSeconds())
	}

	clk.Set(at(61))
	res = l.Allow(ctx, id, 0)
	if !res.Allowed {
		t.Fatalf("expected admit at t=61 once t=0 expired")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", res.Remaining)
	}

	clk.Set(at(62))
	if res := l.Allow(ctx, id, 0); res.Allowed {
		t.Fatalf("expected reject at t=62: only one slot freed")
	}
}

func TestLimiterAnonymousScenario(t *testing.T) {
	clk := &manualClock{}
	l := NewLimiter(nil, WithClock(clk))
	id := IPIdentity("198.51.100.4")
	ctx := context.Background()

	var last Result
	for i := 0; i < 20; i++ {
		clk.Set(at(float64(i)))
		last = l.Allow(ctx, id, 0)
		if !last.Allowed {
			t.Fatalf("expected request %d admitted", i+1)
		}
		if want := 20 - (i + 1); last.Remaining != want {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, want, last.Remaining)
		}
	}
	if last.Remaining != 0 {
		t.Fatalf("expected last remaining 0, got %d", last.Remaining)
	}
	if !last.Reset.Equal(at(19).Add(time.Minute)) {
		t.Fatalf("expected reset now+window, got %s", last.Reset)
	}

	clk.Set(at(19.5))
	rejected := l.Allow(ctx, id, 0)
	if rejected.Allowed {
		t.Fatalf("expected 21st request rejected")
	}
	if rejected.Limit != 20 || rejected.Remaining != 0 {
		t.Fatalf("unexpected rejection result: %+v", rejected)
	}
	if rejected.RetryAfter != 40500*time.Millisecond {
		t.Fatalf("expected retry after 40.5s, got %s", rejected.RetryAfter)
	}
	if rejected.RetryAfterSeconds() != 41 {
		t.Fatalf("expected ceil retry 41, got %d", rejected.RetryAfterSeconds())
	}
}

func TestLimiterRejectionsAreIdempotent(t *testing.T) {
	clk := &manualClock{}
	l := newTestLimiter(clk, 1)
	id := IPIdentity("192.0.2.50")
	ctx := context.Background()

	clk.Set(at(0))
	l.Allow(ctx, id, 0)

	clk.Set(at(5))
	first := l.Allow(ctx, id, 0)
	second := l.Allow(ctx, id, 0)
	if first.Allowed || second.Allowed {
		t.Fatalf("expected both rejected")
	}
	if second.RetryAfterSeconds() > first.RetryAfterSeconds() {
		t.Fatalf("expected non-increasing reset, got %d then %d", first.RetryAfterSeconds(), second.RetryAfterSeconds())
	}
	if got := l.Store().WindowCount(id, at(5), time.Minute); got != 1 {
		t.Fatalf("expected rejections not recorded, got count %d", got)
	}
}

func TestLimiterClassesAreIndependent(t *testing.T) {
	clk := &manualClock{now: at(0)}
	l := newTestLimiter(clk, 2)
	ctx := context.Background()
	anon := IPIdentity("10.1.1.1")
	user := UserIdentity(42)

	l.Allow(ctx, anon, 0)
	l.Allow(ctx, anon, 0)
	if res := l.Allow(ctx, anon, 0); res.Allowed {
		t.Fatalf("expected anonymous quota exhausted")
	}

	res := l.Allow(ctx, user, 0)
	if !res.Allowed {
		t.Fatalf("expected authenticated caller unaffected")
	}
	if res.Limit != 100 || res.Remaining != 99 {
		t.Fatalf("unexpected authenticated result: %+v", res)
	}
}

func TestLimiterUserOverride(t *testing.T) {
	clk := &manualClock{now: at(0)}
	l := newTestLimiter(clk, 2)
	ctx := context.Background()
	user := UserIdentity(9)

	if res := l.Allow(ctx, user, 1); !res.Allowed || res.Limit != 1 {
		t.Fatalf("expected admit with limit 1, got %+v", res)
	}
	if res := l.Allow(ctx, user, 1); res.Allowed {
		t.Fatalf("expected override limit enforced")
	}
	// Overrides never apply to anonymous callers.
	if res := l.Allow(ctx, IPIdentity("10.9.9.9"), 1); res.Limit != 2 {
		t.Fatalf("expected anonymous limit 2, got %d", res.Limit)
	}
}

func TestLimiterPrunesOnEveryCheck(t *testing.T) {
	clk := &manualClock{now: at(0)}
	l := newTestLimiter(clk, 5)
	ctx := context.Background()

	l.Allow(ctx, IPIdentity("10.0.0.1"), 0)
	l.Allow(ctx, IPIdentity("10.0.0.2"), 0)
	if l.Store().Len() != 2 {
		t.Fatalf("expected 2 identities, got %d", l.Store().Len())
	}

	clk.Set(at(7201))
	l.Allow(ctx, IPIdentity("10.0.0.3"), 0)
	if l.Store().Len() != 1 {
		t.Fatalf("expected stale identities pruned, got %d", l.Store().Len())
	}
	if got := l.Store().WindowCount(IPIdentity("10.0.0.1"), at(7201), DefaultRetention); got != 0 {
		t.Fatalf("expected pruned identity empty, got %d", got)
	}
}

func TestLimiterConcurrentAdmitsNeverExceedLimit(t *testing.T) {
	clk := &manualClock{now: at(0)}
	l := newTestLimiter(clk, 10)
	id := IPIdentity("10.2.2.2")

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), id, 0).Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 10 {
		t.Fatalf("expected exactly 10 admitted, got %d", admitted.Load())
	}
}

func TestLimiterUsage(t *testing.T) {
	clk := &manualClock{now: at(0)}
	l := newTestLimiter(clk, 4)
	id := IPIdentity("10.3.3.3")
	l.Allow(context.Background(), id, 0)

	usage := l.Usage(id, 0)
	if usage.Used != 1 || usage.Remaining != 3 || usage.Limit != 4 || usage.Class != ClassAnonymous {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if l.Store().WindowCount(id, at(0), time.Minute) != 1 {
		t.Fatalf("expected usage to be read-only")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []StatsEvent
}

func (s *recordingSink) Record(_ context.Context, ev StatsEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func TestLimiterReportsDecisions(t *testing.T) {
	clk := &manualClock{now: at(0)}
	sink := &recordingSink{}
	l := NewLimiter(nil, WithClock(clk), WithStats(MultiSink{nil, sink}), WithPolicies(Policies{
		Anonymous: Policy{Limit: 1, Window: time.Minute},
	}))
	id := IPIdentity("10.4.4.4")
	l.Allow(context.Background(), id, 0)
	l.Allow(context.Background(), id, 0)

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	if !sink.events[0].Allowed || sink.events[1].Allowed {
		t.Fatalf("unexpected decisions: %+v", sink.events)
	}
	if sink.events[1].Class != ClassAnonymous || sink.events[1].Identity != id {
		t.Fatalf("unexpected event: %+v", sink.events[1])
	}
	// Invalid authenticated policy keeps the default.
	if l.Policies().Authenticated.Limit != DefaultAuthenticatedLimit {
		t.Fatalf("expected default authenticated limit, got %d", l.Policies().Authenticated.Limit)
	}
}

func TestIdentityClass(t *testing.T) {
	if UserIdentity(3) != "user:3" || UserIdentity(3).Class() != ClassAuthenticated {
		t.Fatalf("unexpected user identity")
	}
	if IPIdentity(" 1.2.3.4 ") != "ip:1.2.3.4" || IPIdentity("1.2.3.4").Class() != ClassAnonymous {
		t.Fatalf("unexpected ip identity")
	}
	if IPIdentity("") != "ip:unknown" {
		t.Fatalf("expected unknown ip fallback")
	}
}
