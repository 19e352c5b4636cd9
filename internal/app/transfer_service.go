/**
 * @description
 * The transfer lifecycle engine. This is the state machine governing a
 * transfer's status: transfers are created PENDING (by a client action or the
 * billing pipeline), completed by manual confirmation from the Madagascar team
 * or by mobile-money automation, and cancelled only by explicit action.
 * COMPLETED, FAILED and CANCELLED are terminal.
 *
 * Status moves go through conditional updates in the store, so two concurrent
 * confirmations of the same transfer resolve to exactly one winner; the loser
 * observes store.ErrTransferConflict.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
	"github.com/volapay/remit-service/pkg/mobilemoney"
)

var (
	// ErrAmountOutOfRange rejects transfer amounts outside the permitted
	// bounds before anything touches the database.
	ErrAmountOutOfRange = errors.New("amount outside permitted range")
	// ErrAutomationUnsupported means the beneficiary's phone prefix has no
	// mobile-money operator we can pay out to.
	ErrAutomationUnsupported = errors.New("mobile money automation not supported for this beneficiary")
)

// MobileMoneyGateway is the payout capability used by transfer automation.
type MobileMoneyGateway interface {
	Supports(phoneNumber string) bool
	Payout(ctx context.Context, phoneNumber string, amountMGA int64, reference string) (*mobilemoney.PayoutResult, error)
}

// TransferLimits bounds a single transfer in CAD cents.
type TransferLimits struct {
	MinCADCents int64
	MaxCADCents int64
	FeePercent  decimal.Decimal
}

// TransferService orchestrates the transfer lifecycle.
type TransferService struct {
	repo     store.Repository
	rates    RateSource
	notifier *Notifier
	audit    *AuditLogger
	momo     MobileMoneyGateway
	limits   TransferLimits
}

// NewTransferService creates the lifecycle engine. Zero limits fall back to
// the business defaults: $10–$5000 CAD per transfer at a 2.5% fee.
func NewTransferService(repo store.Repository, rates RateSource, notifier *Notifier, audit *AuditLogger, momo MobileMoneyGateway, limits TransferLimits) *TransferService {
	if limits.MinCADCents <= 0 {
		limits.MinCADCents = 1000
	}
	if limits.MaxCADCents <= 0 {
		limits.MaxCADCents = 500000
	}
	if limits.FeePercent.IsZero() {
		limits.FeePercent = decimal.NewFromFloat(0.025)
	}
	return &TransferService{
		repo:     repo,
		rates:    rates,
		notifier: notifier,
		audit:    audit,
		momo:     momo,
		limits:   limits,
	}
}

// Quote is the fee and conversion breakdown computed for a transfer at
// creation time and frozen onto it.
type Quote struct {
	FeeCADCents   int64
	TotalCADCents int64
	AmountMGA     int64
	Rate          decimal.Decimal
}

// ComputeQuote applies the fee percentage and exchange rate to an amount. The
// result is a snapshot: later rate changes never retroactively affect a
// transfer built from it.
func (s *TransferService) ComputeQuote(amountCADCents int64, rate decimal.Decimal) Quote {
	amount := decimal.NewFromInt(amountCADCents)
	fee := amount.Mul(s.limits.FeePercent).Round(0).IntPart()
	amountMGA := amount.Div(decimal.NewFromInt(100)).Mul(rate).Round(0).IntPart()
	return Quote{
		FeeCADCents:   fee,
		TotalCADCents: amountCADCents + fee,
		AmountMGA:     amountMGA,
		Rate:          rate,
	}
}

// CreateOneTimeTransfer validates and creates a direct client transfer in
// PENDING state.
func (s *TransferService) CreateOneTimeTransfer(ctx context.Context, userID uuid.UUID, req domain.CreateTransferRequest) (*domain.Transfer, error) {
	if req.AmountCADCents < s.limits.MinCADCents || req.AmountCADCents > s.limits.MaxCADCents {
		return nil, ErrAmountOutOfRange
	}

	beneficiary, err := s.repo.FindBeneficiaryByID(ctx, req.BeneficiaryID, userID)
	if err != nil {
		return nil, err
	}
	if !beneficiary.Active {
		return nil, store.ErrBeneficiaryNotFound
	}

	// The exchange rate is a hard dependency: no rate means no transfer, with
	// no retry at this layer.
	rate, err := s.rates.LatestRate(ctx)
	if err != nil {
		return nil, err
	}

	quote := s.ComputeQuote(req.AmountCADCents, rate)
	transfer := &domain.Transfer{
		ID:             uuid.New(),
		UserID:         userID,
		BeneficiaryID:  beneficiary.ID,
		AmountCADCents: req.AmountCADCents,
		AmountMGA:      quote.AmountMGA,
		ExchangeRate:   quote.Rate,
		FeeCADCents:    quote.FeeCADCents,
		TotalCADCents:  quote.TotalCADCents,
		Type:           domain.TransferTypeOneTime,
		Status:         domain.TransferStatusPending,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &userID,
		Action:     domain.AuditTransferCreate,
		Resource:   "transfer",
		ResourceID: transfer.ID.String(),
		NewValues: map[string]any{
			"amount_cad":  MaskTail(fmt.Sprintf("%d", req.AmountCADCents)),
			"beneficiary": MaskTail(beneficiary.Name),
			"type":        string(domain.TransferTypeOneTime),
			"status":      string(domain.TransferStatusPending),
		},
	})

	s.notifier.Dispatch(ctx, userID, domain.NotificationTransferCreated,
		"Transfer created",
		fmt.Sprintf("Your transfer of %s to %s is pending processing.", formatCAD(req.AmountCADCents), beneficiary.Name))
	s.notifier.PublishLifecycle(ctx, "transfer", transfer.ID, userID, string(transfer.Status))

	return transfer, nil
}

// ConfirmTransfer is the manual confirmation path used by the Madagascar-team
// console. Only a PENDING transfer can be confirmed; the store's conditional
// update makes exactly one of two concurrent confirmations succeed.
func (s *TransferService) ConfirmTransfer(ctx context.Context, transferID, confirmedBy uuid.UUID) (*domain.Transfer, error) {
	if err := s.repo.CompleteTransferIfPending(ctx, transferID, confirmedBy, time.Now().UTC()); err != nil {
		return nil, err
	}

	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &confirmedBy,
		Action:     domain.AuditTransferConfirm,
		Resource:   "transfer",
		ResourceID: transferID.String(),
		OldValues:  map[string]any{"status": string(domain.TransferStatusPending)},
		NewValues:  map[string]any{"status": string(domain.TransferStatusCompleted)},
	})

	s.notifier.Dispatch(ctx, transfer.UserID, domain.NotificationTransferCompleted,
		"Transfer completed",
		fmt.Sprintf("Your transfer of %s has been delivered.", formatCAD(transfer.AmountCADCents)))
	s.notifier.PublishLifecycle(ctx, "transfer", transfer.ID, transfer.UserID, string(transfer.Status))

	return transfer, nil
}

// CancelTransfer moves a PENDING transfer to the CANCELLED terminal state.
func (s *TransferService) CancelTransfer(ctx context.Context, transferID, actor uuid.UUID) (*domain.Transfer, error) {
	if err := s.repo.CancelTransferIfPending(ctx, transferID); err != nil {
		return nil, err
	}

	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &actor,
		Action:     domain.AuditTransferCancel,
		Resource:   "transfer",
		ResourceID: transferID.String(),
		OldValues:  map[string]any{"status": string(domain.TransferStatusPending)},
		NewValues:  map[string]any{"status": string(domain.TransferStatusCancelled)},
	})

	s.notifier.Dispatch(ctx, transfer.UserID, domain.NotificationTransferCancelled,
		"Transfer cancelled",
		fmt.Sprintf("Your transfer of %s was cancelled.", formatCAD(transfer.AmountCADCents)))
	s.notifier.PublishLifecycle(ctx, "transfer", transfer.ID, transfer.UserID, string(transfer.Status))

	return transfer, nil
}

// AutomateTransfer attempts an automated payout through the beneficiary's
// mobile-money operator. Success completes the transfer; a payout failure is
// terminal — the transfer lands on FAILED and an operator must re-drive it
// manually. No automatic retry or fallback happens here.
func (s *TransferService) AutomateTransfer(ctx context.Context, transferID, operatorID uuid.UUID) (*domain.AutomationResult, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.Status != domain.TransferStatusPending {
		return nil, store.ErrTransferConflict
	}

	beneficiary, err := s.repo.FindBeneficiaryByID(ctx, transfer.BeneficiaryID, transfer.UserID)
	if err != nil {
		return nil, err
	}
	if !s.momo.Supports(beneficiary.PhoneNumber) {
		return nil, ErrAutomationUnsupported
	}

	now := time.Now().UTC()
	payout, err := s.momo.Payout(ctx, beneficiary.PhoneNumber, transfer.AmountMGA, transfer.ID.String())
	if err != nil {
		payout = &mobilemoney.PayoutResult{Success: false, Error: err.Error()}
	}

	outcome := store.AutomationOutcome{Success: payout.Success}
	if payout.Success {
		outcome.TransactionID = &payout.TransactionID
		outcome.ConfirmedAt = &now
		outcome.ConfirmedBy = &operatorID
	} else {
		outcome.Error = &payout.Error
	}
	if err := s.repo.MarkTransferAutomated(ctx, transferID, outcome); err != nil {
		return nil, err
	}

	finalStatus := domain.TransferStatusFailed
	if payout.Success {
		finalStatus = domain.TransferStatusCompleted
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &operatorID,
		Action:     domain.AuditTransferAutomate,
		Resource:   "transfer",
		ResourceID: transferID.String(),
		OldValues:  map[string]any{"status": string(domain.TransferStatusPending)},
		NewValues: map[string]any{
			"status":         string(finalStatus),
			"auto_processed": true,
			"operator":       payout.Operator,
		},
	})

	if payout.Success {
		s.notifier.Dispatch(ctx, transfer.UserID, domain.NotificationTransferCompleted,
			"Transfer delivered",
			fmt.Sprintf("Your transfer of %s was delivered via %s.", formatCAD(transfer.AmountCADCents), payout.Operator))
		s.notifier.Dispatch(ctx, operatorID, domain.NotificationTransferCompleted,
			"Automated payout succeeded",
			fmt.Sprintf("Transfer %s paid out via %s (transaction %s).", transfer.ID, payout.Operator, payout.TransactionID))
	} else {
		s.notifier.Dispatch(ctx, transfer.UserID, domain.NotificationTransferFailed,
			"Transfer delayed",
			"Automated delivery of your transfer failed. Our team will process it manually.")
		s.notifier.Dispatch(ctx, operatorID, domain.NotificationTransferFailed,
			"Automated payout failed",
			fmt.Sprintf("Transfer %s payout failed: %s. Manual processing required.", transfer.ID, payout.Error))
		log.Printf("level=warn component=transfer_service msg=\"automated payout failed\" transfer_id=%s err=%q", transfer.ID, payout.Error)
	}
	s.notifier.PublishLifecycle(ctx, "transfer", transfer.ID, transfer.UserID, string(finalStatus))

	result := &domain.AutomationResult{
		TransferID:    transfer.ID,
		Success:       payout.Success,
		Operator:      payout.Operator,
		TransactionID: payout.TransactionID,
		Error:         payout.Error,
	}
	return result, nil
}

// formatCAD renders cents as a dollar string for user-facing messages.
func formatCAD(cents int64) string {
	return fmt.Sprintf("CAD %.2f", float64(cents)/100)
}
