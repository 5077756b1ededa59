package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/http/middleware"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
)

// RateLimitHandler reports the caller's current window.
type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitHandler constructs a RateLimitHandler.
func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status returns usage for the caller, including the current request.
func (h *RateLimitHandler) Status(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok || h.limiter == nil {
		respondError(c, http.StatusInternalServerError, "rate limiter unavailable")
		return
	}
	usage := h.limiter.Usage(caller.Identity(), caller.RateLimit)
	respondSuccess(c, http.StatusOK, "", gin.H{
		"identity":       usage.Identity.String(),
		"class":          usage.Class.String(),
		"limit":          usage.Limit,
		"window_seconds": int64(usage.Window.Seconds()),
		"used":           usage.Used,
		"remaining":      usage.Remaining,
	})
}
