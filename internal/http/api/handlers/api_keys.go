package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/models"
	"github.com/router-for-me/APIGateway/internal/security"
	"gorm.io/gorm"
)

const apiKeyNotFound = "API key not found"

// APIKeyHandler manages the caller's own API keys.
type APIKeyHandler struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(db *gorm.DB, c clock.Clock) *APIKeyHandler {
	return &APIKeyHandler{db: db, clock: clock.OrSystem(c)}
}

func apiKeyView(row models.APIKey) gin.H {
	return gin.H{
		"id":           row.ID,
		"name":         row.Name,
		"key":          row.Key,
		"key_prefix":   security.MaskAPIKey(row.Key),
		"is_active":    row.Active,
		"last_used_at": row.LastUsedAt,
		"revoked_at":   row.RevokedAt,
		"created_at":   row.CreatedAt,
	}
}

// List returns the caller's API keys.
func (h *APIKeyHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var rows []models.APIKey
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error; errFind != nil {
		respondError(c, http.StatusInternalServerError, "list api keys failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, apiKeyView(row))
	}
	respondSuccess(c, http.StatusOK, "", out)
}

// Create issues a new API key for the caller.
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var body struct {
		Name *string `json:"name"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		respondBadRequest(c, "API key name is required")
		return
	}
	token, errGenerate := security.GenerateAPIKey()
	if errGenerate != nil {
		respondError(c, http.StatusInternalServerError, "generate api key failed")
		return
	}
	now := h.clock.Now().UTC()
	row := models.APIKey{
		UserID:    userID,
		Name:      strings.TrimSpace(*body.Name),
		Key:       token,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		respondError(c, http.StatusInternalServerError, "create api key failed")
		return
	}
	respondSuccess(c, http.StatusCreated, "API key created successfully", gin.H{
		"id":         row.ID,
		"name":       row.Name,
		"key":        row.Key,
		"created_at": row.CreatedAt,
	})
}

// Get returns one of the caller's API keys.
func (h *APIKeyHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, apiKeyNotFound)
	if !ok {
		return
	}
	var row models.APIKey
	if !findOwned(c, h.db, &row, id, userID, apiKeyNotFound) {
		return
	}
	respondSuccess(c, http.StatusOK, "", apiKeyView(row))
}

// Update replaces the key's name and active flag. Both are required.
func (h *APIKeyHandler) Update(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, apiKeyNotFound)
	if !ok {
		return
	}
	var row models.APIKey
	if !findOwned(c, h.db, &row, id, userID, apiKeyNotFound) {
		return
	}
	var body struct {
		Name     *string `json:"name"`
		IsActive *bool   `json:"is_active"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		respondBadRequest(c, "API key name is required")
		return
	}
	if body.IsActive == nil {
		respondBadRequest(c, "Active status is required")
		return
	}
	row.Name = strings.TrimSpace(*body.Name)
	row.Active = *body.IsActive
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&row).Updates(map[string]any{
		"name":       row.Name,
		"active":     row.Active,
		"updated_at": h.clock.Now().UTC(),
	}).Error; errUpdate != nil {
		respondError(c, http.StatusInternalServerError, "update api key failed")
		return
	}
	respondSuccess(c, http.StatusOK, "API key updated successfully", gin.H{
		"id":        row.ID,
		"name":      row.Name,
		"key":       row.Key,
		"is_active": row.Active,
	})
}

// Revoke permanently disables a key while keeping its row.
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, apiKeyNotFound)
	if !ok {
		return
	}
	now := h.clock.Now().UTC()
	res := h.db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		Updates(map[string]any{
			"active":     false,
			"revoked_at": &now,
			"updated_at": now,
		})
	if res.Error != nil {
		respondError(c, http.StatusInternalServerError, "revoke api key failed")
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, apiKeyNotFound)
		return
	}
	respondSuccess(c, http.StatusOK, "API key revoked successfully", nil)
}

// Delete removes one of the caller's API keys.
func (h *APIKeyHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, apiKeyNotFound)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.APIKey{})
	if res.Error != nil {
		respondError(c, http.StatusInternalServerError, "delete api key failed")
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, apiKeyNotFound)
		return
	}
	respondSuccess(c, http.StatusOK, "API key deleted successfully", nil)
}
