package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/access"
	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/requestlog"
	log "github.com/sirupsen/logrus"
)

// LatencyObserver receives per-request latency, typically a metrics collector.
type LatencyObserver interface {
	ObserveRequest(method, route string, status int, latency time.Duration)
}

// RequestLog records one entry per request after the rest of the chain ran.
// Recorder failures are logged and never change the response.
func RequestLog(recorder requestlog.Recorder, observer LatencyObserver, clk clock.Clock) gin.HandlerFunc {
	clk = clock.OrSystem(clk)
	return func(c *gin.Context) {
		start := clk.Now()
		c.Next()
		end := clk.Now()

		req := c.Request
		entry := requestlog.Entry{
			Method:     req.Method,
			Endpoint:   req.URL.Path,
			IPAddress:  c.ClientIP(),
			UserAgent:  req.UserAgent(),
			StatusCode: c.Writer.Status(),
			Latency:    end.Sub(start),
			Timestamp:  end,
		}
		if caller, ok := access.CallerFromContext(req.Context()); ok && caller.Authenticated() {
			id := caller.UserID
			entry.UserID = &id
		}

		fields := log.Fields{
			"method":  entry.Method,
			"path":    entry.Endpoint,
			"status":  entry.StatusCode,
			"ip":      entry.IPAddress,
			"latency": entry.Latency.String(),
		}
		if entry.UserID != nil {
			fields["user_id"] = *entry.UserID
		}
		log.WithFields(fields).Info("request")

		if observer != nil {
			observer.ObserveRequest(entry.Method, c.FullPath(), entry.StatusCode, entry.Latency)
		}
		if recorder == nil {
			return
		}
		if errRecord := recorder.Record(req.Context(), entry); errRecord != nil {
			log.WithError(errRecord).Warn("request log: persist failed")
		}
	}
}
