/**
 * @description
 * Domain model for recurring-transfer subscriptions. Exactly one Stripe
 * subscription object backs one Subscription row; billing cycles arrive as
 * processor webhooks, not from an internal scheduler.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the closed set of lifecycle states for a Subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// Frequency is the billing cadence of a subscription.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether the frequency is one of the supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// NextAfter returns the next transfer date following t for this frequency.
// Unknown cadences fall back to +30 days.
func (f Frequency) NextAfter(t time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyBiWeekly:
		return t.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 30)
	}
}

// Subscription represents a recurring-transfer agreement. CANCELLED is a
// soft delete: the row remains, only the status changes.
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	BeneficiaryID        uuid.UUID          `json:"beneficiary_id"`
	AmountCADCents       int64              `json:"amount_cad_cents"`
	Frequency            Frequency          `json:"frequency"`
	NextTransferDate     time.Time          `json:"next_transfer_date"`
	Status               SubscriptionStatus `json:"status"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	CreatedAt            time.Time          `json:"created_at"`
}

// CreateSubscriptionRequest is the DTO for incoming subscription creation requests.
type CreateSubscriptionRequest struct {
	BeneficiaryID    uuid.UUID `json:"beneficiary_id"`
	AmountCADCents   int64     `json:"amount_cad_cents"`
	Frequency        Frequency `json:"frequency"`
	NextTransferDate time.Time `json:"next_transfer_date"`
	PaymentMethodID  string    `json:"payment_method_id"`
}

// MapStripeSubscriptionStatus maps a processor subscription status string to the
// local status. This is a coarse one-way sync: any processor status outside the
// known set collapses to ACTIVE, mirroring the processor's own semantics for
// statuses we do not track (trialing, incomplete, past_due).
func MapStripeSubscriptionStatus(processorStatus string) SubscriptionStatus {
	switch processorStatus {
	case "paused":
		return SubscriptionStatusPaused
	case "canceled":
		return SubscriptionStatusCancelled
	default:
		return SubscriptionStatusActive
	}
}
