package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/requestlog"
	"gorm.io/gorm"
)

// LogHandler lists the caller's request logs.
type LogHandler struct {
	db *gorm.DB
}

// NewLogHandler constructs a LogHandler.
func NewLogHandler(db *gorm.DB) *LogHandler {
	return &LogHandler{db: db}
}

// List returns the newest request logs, bounded by ?limit.
func (h *LogHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	limit := requestlog.DefaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, errAtoi := strconv.Atoi(raw)
		if errAtoi != nil || parsed <= 0 {
			respondBadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	rows, errList := requestlog.Recent(c.Request.Context(), h.db, userID, limit)
	if errList != nil {
		respondError(c, http.StatusInternalServerError, "list request logs failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":            row.ID,
			"method":        row.Method,
			"endpoint":      row.Endpoint,
			"ip_address":    row.IPAddress,
			"user_agent":    row.UserAgent,
			"status_code":   row.StatusCode,
			"response_time": row.ResponseTime,
			"timestamp":     row.Timestamp,
		})
	}
	respondSuccess(c, http.StatusOK, "", out)
}
