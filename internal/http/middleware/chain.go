// Package middleware holds the gin handlers every gateway route is wrapped in.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
	"github.com/router-for-me/APIGateway/internal/requestlog"
)

// Chain carries the shared dependencies of the middleware stacks.
type Chain struct {
	Recorder requestlog.Recorder
	Observer LatencyObserver
	Resolver Resolver
	Limiter  *ratelimit.Limiter
	Clock    clock.Clock
}

// Protected is RequestLog, Authenticate, RateLimit and RequireCaller in that order.
// Unauthenticated requests are charged to their IP before the 401.
func (ch Chain) Protected() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		RequestLog(ch.Recorder, ch.Observer, ch.Clock),
		Authenticate(ch.Resolver),
		RateLimit(ch.Limiter),
		RequireCaller(),
	}
}

// Limited resolves and limits the caller without requiring credentials.
func (ch Chain) Limited() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		RequestLog(ch.Recorder, ch.Observer, ch.Clock),
		Authenticate(ch.Resolver),
		RateLimit(ch.Limiter),
	}
}

// Logged only records the request.
func (ch Chain) Logged() []gin.HandlerFunc {
	return []gin.HandlerFunc{RequestLog(ch.Recorder, ch.Observer, ch.Clock)}
}
