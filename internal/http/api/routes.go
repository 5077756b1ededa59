// Package api wires gateway handlers onto a gin engine.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/email"
	"github.com/router-for-me/APIGateway/internal/http/api/handlers"
	"github.com/router-for-me/APIGateway/internal/http/middleware"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
	"github.com/router-for-me/APIGateway/internal/webhook"
	"gorm.io/gorm"
)

// Deps are the collaborators the routes need.
type Deps struct {
	DB         *gorm.DB
	Chain      middleware.Chain
	Limiter    *ratelimit.Limiter
	Mailer     email.Sender
	Dispatcher *webhook.Dispatcher
	Bot        handlers.BotClient
	Metrics    http.Handler
	Clock      clock.Clock
}

// RegisterRoutes registers every gateway route and the JSON fallbacks.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}
	r.HandleMethodNotAllowed = true
	r.NoRoute(middleware.NoRoute)
	r.NoMethod(middleware.NoMethod)

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Clock)
	r.GET("/api/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Healthz)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	protected := r.Group("/api", deps.Chain.Protected()...)

	apiKeyHandler := handlers.NewAPIKeyHandler(deps.DB, deps.Clock)
	protected.GET("/keys", apiKeyHandler.List)
	protected.POST("/keys", apiKeyHandler.Create)
	protected.GET("/keys/:id", apiKeyHandler.Get)
	protected.PUT("/keys/:id", apiKeyHandler.Update)
	protected.DELETE("/keys/:id", apiKeyHandler.Delete)
	protected.POST("/keys/:id/revoke", apiKeyHandler.Revoke)

	logHandler := handlers.NewLogHandler(deps.DB)
	protected.GET("/logs", logHandler.List)

	rateLimitHandler := handlers.NewRateLimitHandler(deps.Limiter)
	protected.GET("/ratelimit/status", rateLimitHandler.Status)

	webhookHandler := handlers.NewWebhookHandler(deps.DB, deps.Dispatcher)
	protected.GET("/webhooks", webhookHandler.List)
	protected.POST("/webhooks", webhookHandler.Create)
	protected.GET("/webhooks/:id", webhookHandler.Get)
	protected.PUT("/webhooks/:id", webhookHandler.Update)
	protected.DELETE("/webhooks/:id", webhookHandler.Delete)

	emailHandler := handlers.NewEmailHandler(deps.DB, deps.Mailer)
	protected.POST("/email/send", emailHandler.Send)
	protected.GET("/email/templates", emailHandler.ListTemplates)
	protected.POST("/email/templates", emailHandler.CreateTemplate)
	protected.GET("/email/templates/:id", emailHandler.GetTemplate)
	protected.PUT("/email/templates/:id", emailHandler.UpdateTemplate)
	protected.DELETE("/email/templates/:id", emailHandler.DeleteTemplate)
	protected.POST("/email/send-template/:id", emailHandler.SendTemplate)

	botHandler := handlers.NewBotHandler(deps.Bot)
	protected.POST("/bot/send-message", botHandler.SendMessage)
	protected.GET("/bot/channels", botHandler.Channels)

	// Receiving endpoints are called by third parties without gateway keys.
	limited := r.Group("/api", deps.Chain.Limited()...)
	limited.POST("/webhooks/receive/:event", webhookHandler.Receive)

	logged := r.Group("/api", deps.Chain.Logged()...)
	logged.POST("/bot/webhook", botHandler.Events)
}
