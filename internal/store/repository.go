/**
 * @description
 * This file defines the persistence gateway contract consumed by the
 * application services, along with the sentinel errors the API layer maps to
 * HTTP status codes. The concrete implementation lives in the Postgres
 * repository files in this package.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrBeneficiaryNotFound  = errors.New("beneficiary not found")
	ErrTransferNotFound     = errors.New("transfer not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNoExchangeRate       = errors.New("no exchange rate available")
	// ErrTransferConflict is returned when a conditional status update matched
	// zero rows: the transfer was already moved out of the expected state by a
	// concurrent actor.
	ErrTransferConflict = errors.New("transfer not in expected state")
)

// Repository is the persistence gateway for the transfer lifecycle, the
// subscription billing pipeline and the compliance subsystem.
type Repository interface {
	// Users and beneficiaries.
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindBeneficiaryByID(ctx context.Context, id, userID uuid.UUID) (*domain.Beneficiary, error)

	// Exchange rates. GetLatestExchangeRate returns ErrNoExchangeRate when no
	// rate row exists at all; this is a hard dependency of transfer creation.
	GetLatestExchangeRate(ctx context.Context) (*domain.ExchangeRate, error)

	// Transfers. The status-moving methods are conditional updates: they only
	// match rows still in the expected source state and return
	// ErrTransferConflict otherwise, so concurrent confirmations cannot both
	// succeed.
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	CompleteTransferIfPending(ctx context.Context, id, confirmedBy uuid.UUID, confirmedAt time.Time) error
	CancelTransferIfPending(ctx context.Context, id uuid.UUID) error
	MarkTransferAutomated(ctx context.Context, id uuid.UUID, outcome AutomationOutcome) error

	// Subscriptions.
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus) error
	AdvanceSubscriptionNextTransferDate(ctx context.Context, id uuid.UUID, next time.Time) error
	ListSubscriptionsDueWithin(ctx context.Context, within time.Duration) ([]domain.Subscription, error)

	// Notifications.
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error

	// Webhook event dedup. ClaimWebhookEvent inserts the processor event id if
	// absent and reports whether this call took the claim; a false return means
	// the event was already processed (or is being processed) and must be
	// treated as a no-op replay.
	ClaimWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error)
	ReleaseWebhookEvent(ctx context.Context, eventID string) error

	// Audit log.
	InsertAuditLog(ctx context.Context, entry *domain.AuditEntry) error
	QueryAuditLogs(ctx context.Context, filter domain.AuditFilter, limit int) ([]domain.AuditEntry, error)
	ComplianceCounts(ctx context.Context, start, end time.Time) (*domain.ComplianceReport, error)

	// Reliability log.
	InsertReliabilityLog(ctx context.Context, entry *domain.ReliabilityLog) error
	ListReliabilityLogsSince(ctx context.Context, since time.Time) ([]domain.ReliabilityLog, error)
}

// AutomationOutcome carries the result of a mobile-money payout attempt to be
// persisted onto the transfer in a single conditional update.
type AutomationOutcome struct {
	Success       bool
	TransactionID *string
	Error         *string
	ConfirmedBy   *uuid.UUID
	ConfirmedAt   *time.Time
}
