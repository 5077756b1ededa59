package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/email"
	"github.com/router-for-me/APIGateway/internal/models"
	"gorm.io/gorm"
)

const templateNotFound = "Email template not found"

// EmailHandler sends mail and manages the caller's templates.
type EmailHandler struct {
	db     *gorm.DB
	sender email.Sender
}

// NewEmailHandler constructs an EmailHandler.
func NewEmailHandler(db *gorm.DB, sender email.Sender) *EmailHandler {
	return &EmailHandler{db: db, sender: sender}
}

type recipientFields struct {
	To      *email.Recipients `json:"to"`
	Cc      email.Recipients  `json:"cc"`
	Bcc     email.Recipients  `json:"bcc"`
	ReplyTo string            `json:"reply_to"`
}

func (h *EmailHandler) deliver(c *gin.Context, msg email.Message) {
	if h.sender == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to send email", "error": email.NotConfiguredMessage})
		return
	}
	if errSend := h.sender.Send(c.Request.Context(), msg); errSend != nil {
		detail := errSend.Error()
		if errors.Is(errSend, email.ErrNotConfigured) {
			detail = email.NotConfiguredMessage
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to send email", "error": detail})
		return
	}
	respondSuccess(c, http.StatusOK, "Email sent successfully", nil)
}

// Send delivers a message composed by the caller. to, subject and body are required.
func (h *EmailHandler) Send(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}
	var body struct {
		recipientFields
		Subject *string `json:"subject"`
		Body    *string `json:"body"`
		HTML    string  `json:"html"`
	}
	if !bindJSON(c, &body) {
		return
	}
	switch {
	case body.To == nil || len(*body.To) == 0:
		missingField(c, "to")
		return
	case body.Subject == nil:
		missingField(c, "subject")
		return
	case body.Body == nil:
		missingField(c, "body")
		return
	}
	h.deliver(c, email.Message{
		To:      *body.To,
		Cc:      body.Cc,
		Bcc:     body.Bcc,
		ReplyTo: body.ReplyTo,
		Subject: *body.Subject,
		Body:    *body.Body,
		HTML:    body.HTML,
	})
}

func templateView(row models.EmailTemplate, withBody bool) gin.H {
	out := gin.H{
		"id":         row.ID,
		"name":       row.Name,
		"subject":    row.Subject,
		"created_at": row.CreatedAt,
	}
	if withBody {
		out["body"] = row.Body
	}
	return out
}

// ListTemplates returns the caller's templates without bodies.
func (h *EmailHandler) ListTemplates(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var rows []models.EmailTemplate
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		respondError(c, http.StatusInternalServerError, "list templates failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, templateView(row, false))
	}
	respondSuccess(c, http.StatusOK, "", out)
}

// CreateTemplate stores a template. name, subject and body are required.
func (h *EmailHandler) CreateTemplate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var body struct {
		Name    *string `json:"name"`
		Subject *string `json:"subject"`
		Body    *string `json:"body"`
	}
	if !bindJSON(c, &body) {
		return
	}
	switch {
	case body.Name == nil:
		missingField(c, "name")
		return
	case body.Subject == nil:
		missingField(c, "subject")
		return
	case body.Body == nil:
		missingField(c, "body")
		return
	}
	row := models.EmailTemplate{
		UserID:  userID,
		Name:    strings.TrimSpace(*body.Name),
		Subject: *body.Subject,
		Body:    *body.Body,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		respondError(c, http.StatusInternalServerError, "create template failed")
		return
	}
	respondSuccess(c, http.StatusCreated, "Email template created successfully", templateView(row, false))
}

// GetTemplate returns one template including its body.
func (h *EmailHandler) GetTemplate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, templateNotFound)
	if !ok {
		return
	}
	var row models.EmailTemplate
	if !findOwned(c, h.db, &row, id, userID, templateNotFound) {
		return
	}
	respondSuccess(c, http.StatusOK, "", templateView(row, true))
}

// UpdateTemplate applies the fields present in the body.
func (h *EmailHandler) UpdateTemplate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, templateNotFound)
	if !ok {
		return
	}
	var row models.EmailTemplate
	if !findOwned(c, h.db, &row, id, userID, templateNotFound) {
		return
	}
	var body struct {
		Name    *string `json:"name"`
		Subject *string `json:"subject"`
		Body    *string `json:"body"`
	}
	if !bindJSON(c, &body) {
		return
	}
	updates := map[string]any{}
	if body.Name != nil {
		row.Name = strings.TrimSpace(*body.Name)
		updates["name"] = row.Name
	}
	if body.Subject != nil {
		row.Subject = *body.Subject
		updates["subject"] = row.Subject
	}
	if body.Body != nil {
		row.Body = *body.Body
		updates["body"] = row.Body
	}
	if len(updates) > 0 {
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(&row).Updates(updates).Error; errUpdate != nil {
			respondError(c, http.StatusInternalServerError, "update template failed")
			return
		}
	}
	respondSuccess(c, http.StatusOK, "Email template updated successfully", gin.H{
		"id":      row.ID,
		"name":    row.Name,
		"subject": row.Subject,
	})
}

// DeleteTemplate removes one template.
func (h *EmailHandler) DeleteTemplate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, templateNotFound)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.EmailTemplate{})
	if res.Error != nil {
		respondError(c, http.StatusInternalServerError, "delete template failed")
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, templateNotFound)
		return
	}
	respondSuccess(c, http.StatusOK, "Email template deleted successfully", nil)
}

// SendTemplate renders {{key}} variables into a stored template and sends it.
// The rendered body is sent as both the plain and the HTML part.
func (h *EmailHandler) SendTemplate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, templateNotFound)
	if !ok {
		return
	}
	var row models.EmailTemplate
	if !findOwned(c, h.db, &row, id, userID, templateNotFound) {
		return
	}
	var body struct {
		recipientFields
		Variables map[string]any `json:"variables"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if body.To == nil || len(*body.To) == 0 {
		missingField(c, "to")
		return
	}
	subject, rendered := email.RenderTemplate(row.Subject, row.Body, body.Variables)
	h.deliver(c, email.Message{
		To:      *body.To,
		Cc:      body.Cc,
		Bcc:     body.Bcc,
		ReplyTo: body.ReplyTo,
		Subject: subject,
		Body:    rendered,
		HTML:    rendered,
	})
}
