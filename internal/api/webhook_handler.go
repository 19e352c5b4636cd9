/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from the
 * payment processor. It is the entry point for the billing pipeline.
 *
 * Key features:
 * - Security: Validates the HMAC signature of incoming webhooks before any
 *   payload field is trusted.
 * - Acknowledgement: Unhandled event types are acknowledged with 200 so the
 *   processor stops redelivering them; only infrastructure failures return 5xx.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For webhook signature validation.
 * - encoding/json, net/http: For payload handling and HTTP plumbing.
 */

package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/volapay/remit-service/internal/domain"
)

// signatureTolerance bounds how old a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// EventHandler consumes one verified webhook event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event domain.StripeEvent) error
}

// WebhookHandler processes incoming payment-processor webhooks.
type WebhookHandler struct {
	pipeline EventHandler
	secret   string
	now      func() time.Time
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(pipeline EventHandler, secret string) *WebhookHandler {
	return &WebhookHandler{
		pipeline: pipeline,
		secret:   secret,
		now:      time.Now,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"body read failed\" err=%v", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get("Stripe-Signature"), body) {
		log.Printf("level=warn component=webhook msg=\"signature verification failed\" remote=%s", r.RemoteAddr)
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	var event domain.StripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=webhook msg=\"unparsable webhook payload\" err=%v", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if event.ID == "" || event.Type == "" {
		http.Error(w, "Missing event id or type", http.StatusBadRequest)
		return
	}

	if err := h.pipeline.HandleEvent(r.Context(), event); err != nil {
		// A 5xx tells the processor to redeliver. Business-level no-ops
		// (duplicates, unknown subscriptions) never reach here.
		log.Printf("level=error component=webhook msg=\"event processing failed\" event_id=%s type=%s err=%v", event.ID, event.Type, err)
		http.Error(w, "Event processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}

// isValidSignature checks the processor's signature header: a signed timestamp
// plus an HMAC-SHA256 of "<timestamp>.<payload>" under the endpoint secret.
func (h *WebhookHandler) isValidSignature(header string, body []byte) bool {
	if h.secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(h.now().Sub(time.Unix(ts, 0)).Seconds()) > signatureTolerance.Seconds() {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}
