package ratelimit

import (
	"math"
	"time"
)

// Default policies and retention applied when config leaves them unset.
const (
	DefaultAuthenticatedLimit = 100
	DefaultAnonymousLimit     = 20
	DefaultWindow             = 60 * time.Second
	DefaultRetention          = 2 * time.Hour
)

// Class separates callers that resolved to a user from anonymous ones.
type Class int

const (
	ClassAnonymous Class = iota
	ClassAuthenticated
)

// String returns the label used in stats and metrics.
func (c Class) String() string {
	if c == ClassAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Policy is the maximum number of admitted requests within a trailing window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Valid reports whether both bounds are positive.
func (p Policy) Valid() bool {
	return p.Limit > 0 && p.Window > 0
}

// Policies holds one policy per caller class.
type Policies struct {
	Authenticated Policy
	Anonymous     Policy
}

// DefaultPolicies returns 100/60s for users and 20/60s for anonymous callers.
func DefaultPolicies() Policies {
	return Policies{
		Authenticated: Policy{Limit: DefaultAuthenticatedLimit, Window: DefaultWindow},
		Anonymous:     Policy{Limit: DefaultAnonymousLimit, Window: DefaultWindow},
	}
}

// For selects the class policy. A positive override replaces the authenticated limit.
func (p Policies) For(class Class, override int) Policy {
	if class != ClassAuthenticated {
		return p.Anonymous
	}
	policy := p.Authenticated
	if override > 0 {
		policy.Limit = override
	}
	return policy
}

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the caller's window fully rolls over (admitted requests).
	Reset time.Time
	// RetryAfter is the wait until the oldest request in the window expires (rejected requests).
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (r Result) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int64(math.Ceil(r.RetryAfter.Seconds()))
}

// Usage is a read-only view of an identity's current window.
type Usage struct {
	Identity  Identity
	Class     Class
	Limit     int
	Window    time.Duration
	Used      int
	Remaining int
}
