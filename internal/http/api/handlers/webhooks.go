package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/models"
	"github.com/router-for-me/APIGateway/internal/webhook"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	webhookNotFound = "Webhook endpoint not found"

	// TimestampHeader is forwarded into the dispatched payload.
	TimestampHeader = "X-Request-Timestamp"
)

// WebhookHandler manages webhook endpoints and dispatches received events.
type WebhookHandler struct {
	db         *gorm.DB
	dispatcher *webhook.Dispatcher
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(db *gorm.DB, dispatcher *webhook.Dispatcher) *WebhookHandler {
	if dispatcher == nil {
		dispatcher = webhook.NewDispatcher(nil, webhook.DefaultTimeout)
	}
	return &WebhookHandler{db: db, dispatcher: dispatcher}
}

func webhookView(row models.WebhookEndpoint) gin.H {
	events := []string(row.Events)
	if events == nil {
		events = []string{}
	}
	return gin.H{
		"id":         row.ID,
		"name":       row.Name,
		"url":        row.URL,
		"events":     events,
		"has_secret": row.Secret != nil && *row.Secret != "",
		"is_active":  row.Active,
		"created_at": row.CreatedAt,
	}
}

func validWebhookURL(raw string) bool {
	u, errParse := url.ParseRequestURI(strings.TrimSpace(raw))
	if errParse != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func cleanEvents(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// List returns the caller's webhook endpoints.
func (h *WebhookHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var rows []models.WebhookEndpoint
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		respondError(c, http.StatusInternalServerError, "list webhooks failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, webhookView(row))
	}
	respondSuccess(c, http.StatusOK, "", out)
}

// Create registers a webhook endpoint. name, url and events are required.
func (h *WebhookHandler) Create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var body struct {
		Name   *string   `json:"name"`
		URL    *string   `json:"url"`
		Events *[]string `json:"events"`
		Secret *string   `json:"secret"`
	}
	if !bindJSON(c, &body) {
		return
	}
	switch {
	case body.Name == nil:
		missingField(c, "name")
		return
	case body.URL == nil:
		missingField(c, "url")
		return
	case body.Events == nil:
		missingField(c, "events")
		return
	}
	if !validWebhookURL(*body.URL) {
		respondBadRequest(c, "url must be an absolute http(s) URL")
		return
	}
	events := cleanEvents(*body.Events)
	if len(events) == 0 {
		respondBadRequest(c, "events must contain at least one event name")
		return
	}

	row := models.WebhookEndpoint{
		UserID: userID,
		Name:   strings.TrimSpace(*body.Name),
		URL:    strings.TrimSpace(*body.URL),
		Events: datatypes.JSONSlice[string](events),
		Active: true,
	}
	if body.Secret != nil && *body.Secret != "" {
		secret := *body.Secret
		row.Secret = &secret
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		respondError(c, http.StatusInternalServerError, "create webhook failed")
		return
	}
	respondSuccess(c, http.StatusCreated, "Webhook endpoint created successfully", webhookView(row))
}

// Get returns one of the caller's webhook endpoints.
func (h *WebhookHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, webhookNotFound)
	if !ok {
		return
	}
	var row models.WebhookEndpoint
	if !findOwned(c, h.db, &row, id, userID, webhookNotFound) {
		return
	}
	respondSuccess(c, http.StatusOK, "", webhookView(row))
}

// Update applies the fields present in the body.
func (h *WebhookHandler) Update(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, webhookNotFound)
	if !ok {
		return
	}
	var row models.WebhookEndpoint
	if !findOwned(c, h.db, &row, id, userID, webhookNotFound) {
		return
	}
	var body struct {
		Name     *string   `json:"name"`
		URL      *string   `json:"url"`
		Events   *[]string `json:"events"`
		Secret   *string   `json:"secret"`
		IsActive *bool     `json:"is_active"`
	}
	if !bindJSON(c, &body) {
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		row.Name = strings.TrimSpace(*body.Name)
		updates["name"] = row.Name
	}
	if body.URL != nil {
		if !validWebhookURL(*body.URL) {
			respondBadRequest(c, "url must be an absolute http(s) URL")
			return
		}
		row.URL = strings.TrimSpace(*body.URL)
		updates["url"] = row.URL
	}
	if body.Events != nil {
		events := cleanEvents(*body.Events)
		if len(events) == 0 {
			respondBadRequest(c, "events must contain at least one event name")
			return
		}
		row.Events = datatypes.JSONSlice[string](events)
		updates["events"] = row.Events
	}
	if body.Secret != nil {
		if *body.Secret == "" {
			row.Secret = nil
		} else {
			secret := *body.Secret
			row.Secret = &secret
		}
		updates["secret"] = row.Secret
	}
	if body.IsActive != nil {
		row.Active = *body.IsActive
		updates["active"] = row.Active
	}
	if len(updates) > 0 {
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(&row).Updates(updates).Error; errUpdate != nil {
			respondError(c, http.StatusInternalServerError, "update webhook failed")
			return
		}
	}
	respondSuccess(c, http.StatusOK, "Webhook endpoint updated successfully", webhookView(row))
}

// Delete removes one of the caller's webhook endpoints.
func (h *WebhookHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, webhookNotFound)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.WebhookEndpoint{})
	if res.Error != nil {
		respondError(c, http.StatusInternalServerError, "delete webhook failed")
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, webhookNotFound)
		return
	}
	respondSuccess(c, http.StatusOK, "Webhook endpoint deleted successfully", nil)
}

// Receive accepts an event and dispatches it to every active exact-match subscriber.
func (h *WebhookHandler) Receive(c *gin.Context) {
	event := strings.TrimSpace(c.Param("event"))
	var data json.RawMessage
	if errBind := c.ShouldBindJSON(&data); errBind != nil || emptyJSON(data) {
		respondBadRequest(c, invalidJSONMessage)
		return
	}

	endpoints, errFind := webhook.Subscribers(c.Request.Context(), h.db, event)
	if errFind != nil {
		log.WithError(errFind).Error("webhook: load subscribers failed")
		respondError(c, http.StatusInternalServerError, "load webhook endpoints failed")
		return
	}
	if len(endpoints) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "No webhook endpoints registered for this event",
			"event":   event,
		})
		return
	}

	results, errDispatch := h.dispatcher.Dispatch(c.Request.Context(), endpoints, webhook.Payload{
		Event:     event,
		Data:      data,
		Timestamp: c.GetHeader(TimestampHeader),
	})
	if errDispatch != nil {
		log.WithError(errDispatch).Error("webhook: dispatch failed")
		respondError(c, http.StatusInternalServerError, "dispatch failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Webhook received and dispatched",
		"event":   event,
		"results": results,
	})
}

// emptyJSON reports null, {} and [] bodies, which carry no event data.
func emptyJSON(raw json.RawMessage) bool {
	switch strings.Join(strings.Fields(string(raw)), "") {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}
