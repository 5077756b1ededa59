package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Error codes carried in the error envelope.
const (
	CodeBadRequest          = "bad_request"
	CodeNotFound            = "not_found"
	CodeMethodNotAllowed    = "method_not_allowed"
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeInternalServerError = "internal_server_error"
)

// abortError writes the error envelope and stops the chain.
func abortError(c *gin.Context, status int, message, code string) {
	body := gin.H{"status": "error", "message": message}
	if code != "" {
		body["error_code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

// Recovery converts panics into a 500 envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"panic":  recovered,
		}).Error("500 internal server error")
		abortError(c, http.StatusInternalServerError, "An internal server error occurred.", CodeInternalServerError)
	})
}

// NoRoute answers unknown paths with a 404 envelope.
func NoRoute(c *gin.Context) {
	log.WithField("path", c.Request.URL.Path).Warn("404 not found")
	abortError(c, http.StatusNotFound, "Resource not found: "+c.Request.URL.Path, CodeNotFound)
}

// NoMethod answers known paths hit with the wrong method with a 405 envelope.
func NoMethod(c *gin.Context) {
	log.WithFields(log.Fields{"method": c.Request.Method, "path": c.Request.URL.Path}).Warn("405 method not allowed")
	abortError(c, http.StatusMethodNotAllowed, "Method "+c.Request.Method+" not allowed for "+c.Request.URL.Path, CodeMethodNotAllowed)
}
