package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/access"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
	log "github.com/sirupsen/logrus"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// RateLimit admits or rejects the resolved caller. Admitted requests get their
// headers before the handler runs so they survive whatever the handler writes.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		caller, ok := access.CallerFromContext(c.Request.Context())
		if !ok {
			caller = access.Caller{IP: c.ClientIP()}
		}
		identity := caller.Identity()
		result := limiter.Allow(c.Request.Context(), identity, caller.RateLimit)

		header := c.Writer.Header()
		header.Set(HeaderLimit, strconv.Itoa(result.Limit))
		if !result.Allowed {
			retry := strconv.FormatInt(result.RetryAfterSeconds(), 10)
			header.Set(HeaderRemaining, "0")
			header.Set(HeaderReset, retry)
			header.Set(HeaderRetryAfter, retry)
			log.WithFields(log.Fields{
				"identity":    identity.String(),
				"retry_after": result.RetryAfterSeconds(),
			}).Warn("rate limit exceeded")
			abortError(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", CodeRateLimitExceeded)
			return
		}
		header.Set(HeaderRemaining, strconv.Itoa(result.Remaining))
		header.Set(HeaderReset, strconv.FormatInt(result.Reset.Unix(), 10))
		c.Next()
	}
}
