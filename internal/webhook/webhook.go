// Package webhook fans received events out to subscribed endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/router-for-me/APIGateway/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the body when the endpoint has a secret.
	SignatureHeader = "X-Webhook-Signature"

	DefaultTimeout     = 5 * time.Second
	defaultConcurrency = 8
)

// Payload is the JSON body delivered to each endpoint.
type Payload struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Result is the delivery outcome for one endpoint.
type Result struct {
	WebhookID  uint64 `json:"webhook_id"`
	Status     string `json:"status"` // success | error
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher delivers payloads over HTTP.
type Dispatcher struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
}

// NewDispatcher constructs a Dispatcher. timeout bounds each delivery.
func NewDispatcher(client *http.Client, timeout time.Duration) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{client: client, timeout: timeout, concurrency: defaultConcurrency}
}

// Sign returns hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Subscribers returns active endpoints whose event list contains event exactly.
func Subscribers(ctx context.Context, db *gorm.DB, event string) ([]models.WebhookEndpoint, error) {
	if db == nil {
		return nil, fmt.Errorf("webhook: nil db")
	}
	var rows []models.WebhookEndpoint
	if errFind := db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("webhook: list endpoints: %w", errFind)
	}
	out := rows[:0]
	for _, row := range rows {
		if row.Subscribes(event) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Dispatch delivers payload to every endpoint concurrently. Results keep endpoint order.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoints []models.WebhookEndpoint, payload Payload) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(payload.Data) == 0 {
		payload.Data = json.RawMessage("null")
	}
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, fmt.Errorf("webhook: encode payload: %w", errMarshal)
	}

	results := make([]Result, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range endpoints {
		g.Go(func() error {
			results[i] = d.deliver(gctx, endpoints[i], body)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (d *Dispatcher) deliver(ctx context.Context, endpoint models.WebhookEndpoint, body []byte) Result {
	result := Result{WebhookID: endpoint.ID}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if errReq != nil {
		result.Status = "error"
		result.Error = errReq.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	if endpoint.Secret != nil && *endpoint.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(*endpoint.Secret, body))
	}

	resp, errDo := d.client.Do(req)
	if errDo != nil {
		log.WithError(errDo).WithField("url", endpoint.URL).Error("webhook: dispatch failed")
		result.Status = "error"
		result.Error = errDo.Error()
		return result
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("webhook: close response body")
		}
	}()

	result.StatusCode = resp.StatusCode
	result.Status = "success"
	if resp.StatusCode >= http.StatusBadRequest {
		result.Status = "error"
	}
	return result
}
