/**
 * @description
 * This file contains the HTTP handlers for the transfer, subscription and
 * notification endpoints. Handlers parse incoming requests, call the
 * application services and map domain errors onto HTTP statuses. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/app"
	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
)

// Per-user cap on transfer creation.
const (
	transferRateLimitScope  = "transfer_create"
	transferRateLimit       = 10
	transferRateLimitWindow = time.Hour
)

// Handlers holds the application services that handlers will use.
type Handlers struct {
	transfers     *app.TransferService
	subscriptions *app.SubscriptionService
	repo          store.Repository
	limiter       *app.RedisTransferRateLimiter
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(transfers *app.TransferService, subscriptions *app.SubscriptionService, repo store.Repository, limiter *app.RedisTransferRateLimiter) *Handlers {
	return &Handlers{
		transfers:     transfers,
		subscriptions: subscriptions,
		repo:          repo,
		limiter:       limiter,
	}
}

// CreateTransferHandler handles POST /transfers.
func (h *Handlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), transferRateLimitScope, userID.String(), transferRateLimit, transferRateLimitWindow)
	if err != nil {
		// A broken limiter must not block money movement.
		log.Printf("level=warn component=api msg=\"rate limiter unavailable\" user_id=%s err=%v", userID, err)
	} else if count > transferRateLimit {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many transfers created. Please try again later.")
		return
	}

	var req domain.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.transfers.CreateOneTimeTransfer(r.Context(), userID, req)
	if err != nil {
		h.writeTransferError(w, userID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transfer)
}

// GetTransferHandler handles GET /transfers/{id}.
func (h *Handlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID")
		return
	}

	transfer, err := h.repo.FindTransferByID(r.Context(), transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Could not load transfer")
		return
	}

	// Clients only see their own transfers. Other roles are operational and
	// see everything.
	role, _ := GetRole(r.Context())
	if role == domain.RoleClient && transfer.UserID != userID {
		h.writeError(w, http.StatusNotFound, "Transfer not found")
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// ConfirmTransferHandler handles POST /transfers/{id}/confirm, the manual
// confirmation path used by the operations console.
func (h *Handlers) ConfirmTransferHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID")
		return
	}

	transfer, err := h.transfers.ConfirmTransfer(r.Context(), transferID, operatorID)
	if err != nil {
		h.writeTransferError(w, operatorID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// AutomateTransferHandler handles POST /transfers/{id}/automate.
func (h *Handlers) AutomateTransferHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID")
		return
	}

	result, err := h.transfers.AutomateTransfer(r.Context(), transferID, operatorID)
	if err != nil {
		if errors.Is(err, app.ErrAutomationUnsupported) {
			h.writeError(w, http.StatusBadRequest, "Beneficiary's operator does not support automated payout")
			return
		}
		h.writeTransferError(w, operatorID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// CancelTransferHandler handles POST /transfers/{id}/cancel. Clients may only
// cancel their own transfers; admins may cancel any.
func (h *Handlers) CancelTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID")
		return
	}

	role, _ := GetRole(r.Context())
	if role == domain.RoleClient {
		transfer, err := h.repo.FindTransferByID(r.Context(), transferID)
		if err != nil || transfer.UserID != userID {
			h.writeError(w, http.StatusNotFound, "Transfer not found")
			return
		}
	}

	transfer, err := h.transfers.CancelTransfer(r.Context(), transferID, userID)
	if err != nil {
		h.writeTransferError(w, userID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// CreateSubscriptionHandler handles POST /subscriptions.
func (h *Handlers) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.subscriptions.CreateSubscription(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrAmountOutOfRange):
			h.writeError(w, http.StatusBadRequest, "Amount is outside the permitted range")
		case errors.Is(err, app.ErrInvalidFrequency):
			h.writeError(w, http.StatusBadRequest, "Unsupported frequency")
		case errors.Is(err, store.ErrBeneficiaryNotFound):
			h.writeError(w, http.StatusNotFound, "Beneficiary not found")
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			log.Printf("level=error component=api msg=\"subscription creation failed\" user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusBadGateway, "Could not set up recurring billing")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, sub)
}

// PauseSubscriptionHandler handles POST /subscriptions/{id}/pause.
func (h *Handlers) PauseSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	h.subscriptionAction(w, r, h.subscriptions.PauseSubscription)
}

// ResumeSubscriptionHandler handles POST /subscriptions/{id}/resume.
func (h *Handlers) ResumeSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	h.subscriptionAction(w, r, h.subscriptions.ResumeSubscription)
}

// CancelSubscriptionHandler handles POST /subscriptions/{id}/cancel.
func (h *Handlers) CancelSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	h.subscriptionAction(w, r, h.subscriptions.CancelSubscription)
}

func (h *Handlers) subscriptionAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, subscriptionID, userID uuid.UUID) (*domain.Subscription, error)) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	subscriptionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid subscription ID")
		return
	}

	sub, err := action(r.Context(), subscriptionID, userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSubscriptionNotFound):
			h.writeError(w, http.StatusNotFound, "Subscription not found")
		case errors.Is(err, app.ErrSubscriptionNotCancellable):
			h.writeError(w, http.StatusConflict, "Subscription is already cancelled")
		case errors.Is(err, app.ErrSubscriptionNotPaused):
			h.writeError(w, http.StatusConflict, "Subscription is not paused")
		default:
			log.Printf("level=error component=api msg=\"subscription action failed\" subscription_id=%s err=%v", subscriptionID, err)
			h.writeError(w, http.StatusInternalServerError, "Could not update subscription")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, sub)
}

// ListNotificationsHandler handles GET /notifications.
func (h *Handlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	notifications, err := h.repo.ListNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Could not load notifications")
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}

// MarkNotificationReadHandler handles POST /notifications/{id}/read.
func (h *Handlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	notificationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.repo.MarkNotificationRead(r.Context(), notificationID, userID); err != nil {
		if errors.Is(err, store.ErrNotificationNotFound) {
			h.writeError(w, http.StatusNotFound, "Notification not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Could not update notification")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

// writeTransferError maps transfer domain errors onto HTTP statuses.
func (h *Handlers) writeTransferError(w http.ResponseWriter, userID uuid.UUID, err error) {
	switch {
	case errors.Is(err, app.ErrAmountOutOfRange):
		h.writeError(w, http.StatusBadRequest, "Amount is outside the permitted range")
	case errors.Is(err, store.ErrBeneficiaryNotFound):
		h.writeError(w, http.StatusNotFound, "Beneficiary not found")
	case errors.Is(err, store.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, store.ErrTransferConflict):
		h.writeError(w, http.StatusConflict, "Transfer is no longer pending")
	case errors.Is(err, store.ErrNoExchangeRate):
		log.Printf("level=error component=api msg=\"no exchange rate available\" user_id=%s", userID)
		h.writeError(w, http.StatusInternalServerError, "Exchange rate unavailable. Please try again later.")
	default:
		log.Printf("level=error component=api msg=\"transfer operation failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not process transfer")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
