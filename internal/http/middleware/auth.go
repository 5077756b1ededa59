package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/access"
)

// Resolver maps a presented token to a caller.
type Resolver interface {
	Resolve(ctx context.Context, token string) (access.Caller, bool)
}

// Authenticate resolves the caller and stores it on the request context. It never rejects.
func Authenticate(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := access.Caller{IP: c.ClientIP()}
		if token := access.ExtractToken(c.Request); token != "" && resolver != nil {
			if resolved, ok := resolver.Resolve(c.Request.Context(), token); ok {
				resolved.IP = caller.IP
				caller = resolved
			}
		}
		c.Request = c.Request.WithContext(access.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// RequireCaller rejects requests that did not resolve to a user.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := access.CallerFromContext(c.Request.Context())
		if !ok || !caller.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller resolved for the request, if any.
func CallerFrom(c *gin.Context) (access.Caller, bool) {
	if c == nil || c.Request == nil {
		return access.Caller{}, false
	}
	return access.CallerFromContext(c.Request.Context())
}
