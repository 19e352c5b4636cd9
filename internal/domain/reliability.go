/**
 * @description
 * Domain models for the payment reliability tracker. Every payment-processor
 * operation attempt is appended as a ReliabilityLog row; the tracker computes a
 * sliding-window failure rate from these rows and compares it against the
 * compliance threshold.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationType classifies the payment-processor operation being measured.
type OperationType string

const (
	OperationPaymentIntent OperationType = "PAYMENT_INTENT"
	OperationSubscription  OperationType = "SUBSCRIPTION"
	OperationInvoice       OperationType = "INVOICE"
)

// ReliabilityLog is one processor operation attempt. Rows are append-only and
// never mutated.
type ReliabilityLog struct {
	ID           uuid.UUID     `json:"id"`
	Type         OperationType `json:"type"`
	Success      bool          `json:"success"`
	ExternalID   string        `json:"external_id,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	AmountCents  int64         `json:"amount_cents,omitempty"`
	Currency     string        `json:"currency,omitempty"`
	UserID       *uuid.UUID    `json:"user_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ReliabilityContext carries optional attempt metadata supplied by the caller
// of a wrapped processor operation.
type ReliabilityContext struct {
	AmountCents int64
	Currency    string
	UserID      *uuid.UUID
}

// FailureRateStats is the aggregated view of processor reliability over a
// trailing window.
type FailureRateStats struct {
	WindowHours       int                     `json:"window_hours"`
	Total             int64                   `json:"total"`
	Successes         int64                   `json:"successes"`
	Failures          int64                   `json:"failures"`
	FailureRate       float64                 `json:"failure_rate"`
	IsWithinThreshold bool                    `json:"is_within_threshold"`
	ByErrorCode       map[string]int64        `json:"by_error_code"`
	ByOperationType   map[OperationType]int64 `json:"by_operation_type"`
	RecentFailures    []ReliabilityLog        `json:"recent_failures"`
}
