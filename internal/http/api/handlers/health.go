package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/clock"
	"gorm.io/gorm"
)

// HealthHandler serves liveness endpoints.
type HealthHandler struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB, c clock.Clock) *HealthHandler {
	return &HealthHandler{db: db, clock: clock.OrSystem(c)}
}

// Health reports that the API is running.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "API is running",
		"timestamp": h.clock.Now().Format(time.RFC3339),
	})
}

// Healthz additionally pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "database unavailable"})
		return
	}
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "database unavailable"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(ctx); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
