/**
 * @description
 * This file defines the core domain models for money transfers. A Transfer is the
 * central ledger record for one CAD→MGA money movement, whether initiated directly
 * by a client or generated by the subscription billing pipeline.
 *
 * @notes
 * - CAD amounts are stored as `int64` cents to avoid floating-point inaccuracies
 *   with financial data. MGA amounts are whole ariary (the currency has no minor
 *   unit in circulation).
 * - The exchange rate is snapshotted onto the transfer at creation time and never
 *   recomputed; later rate changes must not alter existing transfers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferType distinguishes direct transfers from subscription-generated ones.
type TransferType string

const (
	TransferTypeOneTime      TransferType = "ONE_TIME"
	TransferTypeSubscription TransferType = "SUBSCRIPTION"
)

// TransferStatus is the closed set of lifecycle states for a Transfer.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "PENDING"
	TransferStatusProcessing TransferStatus = "PROCESSING"
	TransferStatusCompleted  TransferStatus = "COMPLETED"
	TransferStatusFailed     TransferStatus = "FAILED"
	TransferStatusCancelled  TransferStatus = "CANCELLED"
)

// transferTransitions is the explicit transition table for the transfer state
// machine. COMPLETED, FAILED and CANCELLED are terminal.
var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferStatusPending:    {TransferStatusProcessing, TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled},
	TransferStatusProcessing: {TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled},
	TransferStatusCompleted:  {},
	TransferStatusFailed:     {},
	TransferStatusCancelled:  {},
}

// CanTransition reports whether a transfer may move from one status to another.
func CanTransition(from, to TransferStatus) bool {
	for _, next := range transferTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func (s TransferStatus) IsTerminal() bool {
	return len(transferTransitions[s]) == 0
}

// Transfer represents one money movement. This struct maps directly to the
// `transfers` table in the database.
type Transfer struct {
	ID                       uuid.UUID       `json:"id"`
	UserID                   uuid.UUID       `json:"user_id"`
	BeneficiaryID            uuid.UUID       `json:"beneficiary_id"`
	SubscriptionID           *uuid.UUID      `json:"subscription_id,omitempty"`
	AmountCADCents           int64           `json:"amount_cad_cents"`
	AmountMGA                int64           `json:"amount_mga"`
	ExchangeRate             decimal.Decimal `json:"exchange_rate"`
	FeeCADCents              int64           `json:"fee_cad_cents"`
	TotalCADCents            int64           `json:"total_cad_cents"`
	Type                     TransferType    `json:"type"`
	Status                   TransferStatus  `json:"status"`
	AutoProcessed            bool            `json:"auto_processed"`
	MobileMoneyTransactionID *string         `json:"mobile_money_transaction_id,omitempty"`
	MobileMoneyError         *string         `json:"mobile_money_error,omitempty"`
	ConfirmedAt              *time.Time      `json:"confirmed_at,omitempty"`
	ConfirmedBy              *uuid.UUID      `json:"confirmed_by,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// ExchangeRate is one CAD→MGA rate observation. The most recently created row
// is the rate applied to new transfers.
type ExchangeRate struct {
	ID        uuid.UUID       `json:"id"`
	Rate      decimal.Decimal `json:"rate"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateTransferRequest is the DTO for incoming transfer creation API requests.
type CreateTransferRequest struct {
	BeneficiaryID  uuid.UUID `json:"beneficiary_id"`
	AmountCADCents int64     `json:"amount_cad_cents"`
}

// AutomationResult captures the outcome of an automated mobile-money payout
// attempt driven from the operations console.
type AutomationResult struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	Success       bool      `json:"success"`
	Operator      string    `json:"operator,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Error         string    `json:"error,omitempty"`
}
