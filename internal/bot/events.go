package bot

import (
	"github.com/tidwall/gjson"
	log "github.com/sirupsen/logrus"
)

// Event types sent by the platform.
const (
	EventURLVerification = "url_verification"
	EventCallback        = "event_callback"
)

// EventReply is what the platform should receive in response to an event.
type EventReply struct {
	Challenge *string // Set for url_verification only.
	Message   string
}

// HandleEvent interprets a platform event body. It reports false for invalid JSON.
func HandleEvent(body []byte) (EventReply, bool) {
	if !gjson.ValidBytes(body) {
		return EventReply{}, false
	}
	event := gjson.ParseBytes(body)
	if !event.IsObject() {
		return EventReply{}, false
	}

	switch event.Get("type").String() {
	case EventURLVerification:
		challenge := event.Get("challenge").String()
		return EventReply{Challenge: &challenge}, true
	case EventCallback:
		inner := event.Get("event")
		innerType := inner.Get("type").String()
		log.WithField("type", innerType).Info("bot: event received")
		if innerType == "message" {
			log.WithFields(log.Fields{
				"channel": inner.Get("channel").String(),
				"user":    inner.Get("user").String(),
			}).Info("bot: message received")
		}
		return EventReply{Message: "Event received"}, true
	default:
		return EventReply{Message: "Webhook received"}, true
	}
}
