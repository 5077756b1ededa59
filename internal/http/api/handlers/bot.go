package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/bot"
	log "github.com/sirupsen/logrus"
)

const maxEventBody = 1 << 20

// BotClient is the subset of the bot platform API the handlers use.
type BotClient interface {
	PostMessage(ctx context.Context, channel, text string, attachments json.RawMessage) (bot.PostedMessage, error)
	ListChannels(ctx context.Context) ([]bot.Channel, error)
}

// BotHandler proxies the chat platform and receives its events.
type BotHandler struct {
	client BotClient
}

// NewBotHandler constructs a BotHandler.
func NewBotHandler(client BotClient) *BotHandler {
	return &BotHandler{client: client}
}

func (h *BotHandler) failure(c *gin.Context, prefix string, err error) {
	if h.client == nil || errors.Is(err, bot.ErrNotConfigured) {
		respondError(c, http.StatusInternalServerError, bot.NotConfiguredMessage)
		return
	}
	var apiErr *bot.APIError
	if errors.As(err, &apiErr) {
		log.WithField("error", apiErr.Message).Error("bot: api error")
		respondError(c, http.StatusInternalServerError, prefix+apiErr.Message)
		return
	}
	log.WithError(err).Error("bot: request failed")
	respondError(c, http.StatusInternalServerError, prefix+err.Error())
}

// SendMessage posts a message. channel and message are required.
func (h *BotHandler) SendMessage(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}
	var body struct {
		Channel     *string         `json:"channel"`
		Message     *string         `json:"message"`
		Attachments json.RawMessage `json:"attachments"`
	}
	if !bindJSON(c, &body) {
		return
	}
	switch {
	case body.Channel == nil:
		missingField(c, "channel")
		return
	case body.Message == nil:
		missingField(c, "message")
		return
	}
	if h.client == nil {
		h.failure(c, "", bot.ErrNotConfigured)
		return
	}
	posted, errPost := h.client.PostMessage(c.Request.Context(), *body.Channel, *body.Message, body.Attachments)
	if errPost != nil {
		h.failure(c, "Failed to send message: ", errPost)
		return
	}
	respondSuccess(c, http.StatusOK, "Message sent successfully", posted)
}

// Channels lists channels visible to the bot.
func (h *BotHandler) Channels(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}
	if h.client == nil {
		h.failure(c, "", bot.ErrNotConfigured)
		return
	}
	channels, errList := h.client.ListChannels(c.Request.Context())
	if errList != nil {
		h.failure(c, "Failed to get channels: ", errList)
		return
	}
	respondSuccess(c, http.StatusOK, "", channels)
}

// Events receives platform callbacks. url_verification echoes the challenge.
func (h *BotHandler) Events(c *gin.Context) {
	raw, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if errRead != nil || emptyJSON(raw) {
		respondBadRequest(c, invalidJSONMessage)
		return
	}
	reply, ok := bot.HandleEvent(raw)
	if !ok {
		respondBadRequest(c, invalidJSONMessage)
		return
	}
	if reply.Challenge != nil {
		c.JSON(http.StatusOK, gin.H{"challenge": *reply.Challenge})
		return
	}
	respondSuccess(c, http.StatusOK, reply.Message, nil)
}
