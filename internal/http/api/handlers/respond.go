package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/http/middleware"
	"gorm.io/gorm"
)

const invalidJSONMessage = "Invalid JSON payload"

func respondSuccess(c *gin.Context, status int, message string, data any) {
	body := gin.H{"status": "success"}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"status": "error", "message": message})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status":     "error",
		"message":    message,
		"error_code": middleware.CodeBadRequest,
	})
}

func missingField(c *gin.Context, field string) {
	respondBadRequest(c, "Missing required field: "+field)
}

// bindJSON decodes the body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if errBind := c.ShouldBindJSON(dst); errBind != nil {
		respondBadRequest(c, invalidJSONMessage)
		return false
	}
	return true
}

// callerID returns the authenticated user ID. Protected routes always have one.
func callerID(c *gin.Context) (uint64, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok || !caller.Authenticated() {
		respondError(c, http.StatusUnauthorized, "Invalid or missing API key")
		return 0, false
	}
	return caller.UserID, true
}

func parseID(c *gin.Context, notFound string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		respondError(c, http.StatusNotFound, notFound)
		return 0, false
	}
	return id, true
}

// findOwned loads the row with id owned by userID, answering 404 or 500 on failure.
func findOwned(c *gin.Context, db *gorm.DB, dst any, id, userID uint64, notFound string) bool {
	errFind := db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Take(dst).Error
	if errFind == nil {
		return true
	}
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound, notFound)
	} else {
		respondError(c, http.StatusInternalServerError, "query failed")
	}
	return false
}
