/**
 * @description
 * Subscription lifecycle orchestration. Creating a subscription provisions the
 * processor-side chain (customer, payment method, product, recurring price,
 * subscription) before the local row is written; every processor call runs
 * through the reliability tracker so its outcome is measured.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
	"github.com/volapay/remit-service/pkg/stripeclient"
)

var (
	// ErrInvalidFrequency rejects cadences outside weekly, bi-weekly, monthly.
	ErrInvalidFrequency = errors.New("unsupported subscription frequency")
	// ErrSubscriptionNotCancellable is returned when a lifecycle action is
	// requested on an already cancelled subscription.
	ErrSubscriptionNotCancellable = errors.New("subscription already cancelled")
	// ErrSubscriptionNotPaused is returned when a resume is requested on a
	// subscription that is not paused.
	ErrSubscriptionNotPaused = errors.New("subscription is not paused")
)

// PaymentProcessor is the slice of the processor API the subscription
// lifecycle needs.
type PaymentProcessor interface {
	CreateCustomer(ctx context.Context, email, name string) (*stripeclient.Customer, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*stripeclient.PaymentMethod, error)
	CreateProduct(ctx context.Context, name string) (*stripeclient.Product, error)
	CreatePrice(ctx context.Context, productID string, amountCents int64, interval string, intervalCount int) (*stripeclient.Price, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*stripeclient.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripeclient.Subscription, error)
}

// SubscriptionService orchestrates recurring-transfer agreements.
type SubscriptionService struct {
	repo      store.Repository
	processor PaymentProcessor
	tracker   *Tracker
	notifier  *Notifier
	audit     *AuditLogger
	limits    TransferLimits
}

// NewSubscriptionService creates the subscription lifecycle service. Limits
// follow the same defaults as transfers.
func NewSubscriptionService(repo store.Repository, processor PaymentProcessor, tracker *Tracker, notifier *Notifier, audit *AuditLogger, limits TransferLimits) *SubscriptionService {
	if limits.MinCADCents <= 0 {
		limits.MinCADCents = 1000
	}
	if limits.MaxCADCents <= 0 {
		limits.MaxCADCents = 500000
	}
	return &SubscriptionService{
		repo:      repo,
		processor: processor,
		tracker:   tracker,
		notifier:  notifier,
		audit:     audit,
		limits:    limits,
	}
}

// billingInterval maps a cadence to the processor's interval spec.
func billingInterval(f domain.Frequency) (interval string, count int) {
	switch f {
	case domain.FrequencyWeekly:
		return "week", 1
	case domain.FrequencyBiWeekly:
		return "week", 2
	default:
		return "month", 1
	}
}

// CreateSubscription provisions the processor chain and persists the local
// subscription in ACTIVE state. The first billing cycle (and every one after)
// arrives later over the webhook pipeline; this call creates no transfer.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID uuid.UUID, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if req.AmountCADCents < s.limits.MinCADCents || req.AmountCADCents > s.limits.MaxCADCents {
		return nil, ErrAmountOutOfRange
	}
	if !req.Frequency.Valid() {
		return nil, ErrInvalidFrequency
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	beneficiary, err := s.repo.FindBeneficiaryByID(ctx, req.BeneficiaryID, userID)
	if err != nil {
		return nil, err
	}
	if !beneficiary.Active {
		return nil, store.ErrBeneficiaryNotFound
	}

	rctx := domain.ReliabilityContext{
		AmountCents: req.AmountCADCents,
		Currency:    "cad",
		UserID:      &userID,
	}

	customer, err := ExecuteWrapped(ctx, s.tracker, domain.OperationSubscription, rctx,
		func(ctx context.Context) (*stripeclient.Customer, string, error) {
			c, err := s.processor.CreateCustomer(ctx, user.Email, user.FullName)
			if err != nil {
				return nil, "", err
			}
			return c, c.ID, nil
		})
	if err != nil {
		return nil, fmt.Errorf("provision customer: %w", err)
	}

	if _, err := ExecuteWrapped(ctx, s.tracker, domain.OperationSubscription, rctx,
		func(ctx context.Context) (*stripeclient.PaymentMethod, string, error) {
			pm, err := s.processor.AttachPaymentMethod(ctx, req.PaymentMethodID, customer.ID)
			if err != nil {
				return nil, "", err
			}
			return pm, pm.ID, nil
		}); err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}

	productName := fmt.Sprintf("Recurring transfer to %s (%s)", beneficiary.Name, req.Frequency)
	product, err := ExecuteWrapped(ctx, s.tracker, domain.OperationSubscription, rctx,
		func(ctx context.Context) (*stripeclient.Product, string, error) {
			p, err := s.processor.CreateProduct(ctx, productName)
			if err != nil {
				return nil, "", err
			}
			return p, p.ID, nil
		})
	if err != nil {
		return nil, fmt.Errorf("provision product: %w", err)
	}

	interval, count := billingInterval(req.Frequency)
	price, err := ExecuteWrapped(ctx, s.tracker, domain.OperationSubscription, rctx,
		func(ctx context.Context) (*stripeclient.Price, string, error) {
			p, err := s.processor.CreatePrice(ctx, product.ID, req.AmountCADCents, interval, count)
			if err != nil {
				return nil, "", err
			}
			return p, p.ID, nil
		})
	if err != nil {
		return nil, fmt.Errorf("provision price: %w", err)
	}

	remote, err := ExecuteWrapped(ctx, s.tracker, domain.OperationSubscription, rctx,
		func(ctx context.Context) (*stripeclient.Subscription, string, error) {
			sub, err := s.processor.CreateSubscription(ctx, customer.ID, price.ID)
			if err != nil {
				return nil, "", err
			}
			return sub, sub.ID, nil
		})
	if err != nil {
		return nil, fmt.Errorf("provision subscription: %w", err)
	}

	next := req.NextTransferDate
	if next.IsZero() {
		next = req.Frequency.NextAfter(time.Now().UTC())
	}
	sub := &domain.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		BeneficiaryID:        beneficiary.ID,
		AmountCADCents:       req.AmountCADCents,
		Frequency:            req.Frequency,
		NextTransferDate:     next,
		Status:               domain.SubscriptionStatusActive,
		StripeSubscriptionID: remote.ID,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		// The processor-side subscription now exists without a local row.
		// Cancel it so the user is not billed for an agreement we lost.
		if _, cancelErr := s.processor.CancelSubscription(ctx, remote.ID); cancelErr != nil {
			log.Printf("level=error component=subscriptions msg=\"orphaned processor subscription\" stripe_subscription_id=%s err=%v", remote.ID, cancelErr)
		}
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &userID,
		Action:     domain.AuditSubscriptionCreate,
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		NewValues: map[string]any{
			"amount":      MaskTail(formatCAD(req.AmountCADCents)),
			"frequency":   string(req.Frequency),
			"beneficiary": MaskTail(beneficiary.Name),
			"status":      string(sub.Status),
		},
	})

	s.notifier.Dispatch(ctx, userID, domain.NotificationSubscriptionBilled,
		"Recurring transfer set up",
		fmt.Sprintf("Your %s transfer of %s to %s is active.", req.Frequency, formatCAD(req.AmountCADCents), beneficiary.Name))
	s.notifier.PublishLifecycle(ctx, "subscription", sub.ID, userID, string(sub.Status))

	return sub, nil
}

// PauseSubscription pauses an active subscription on user request.
func (s *SubscriptionService) PauseSubscription(ctx context.Context, subscriptionID, userID uuid.UUID) (*domain.Subscription, error) {
	return s.setStatus(ctx, subscriptionID, userID, domain.SubscriptionStatusPaused, domain.AuditSubscriptionPause, domain.NotificationSubscriptionPaused,
		"Recurring transfer paused", "Your recurring transfer has been paused. Resume it any time.")
}

// ResumeSubscription reactivates a paused subscription. Only PAUSED rows can
// be resumed; resuming an already-active subscription is a conflict.
func (s *SubscriptionService) ResumeSubscription(ctx context.Context, subscriptionID, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.ownedSubscription(ctx, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionStatusCancelled {
		return nil, ErrSubscriptionNotCancellable
	}
	if sub.Status != domain.SubscriptionStatusPaused {
		return nil, ErrSubscriptionNotPaused
	}
	return s.setStatus(ctx, subscriptionID, userID, domain.SubscriptionStatusActive, domain.AuditSubscriptionResume, domain.NotificationSubscriptionBilled,
		"Recurring transfer resumed", "Your recurring transfer is active again.")
}

// CancelSubscription cancels processor-side billing and soft deletes the local
// row. The row itself is kept for history.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, subscriptionID, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.ownedSubscription(ctx, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionStatusCancelled {
		return nil, ErrSubscriptionNotCancellable
	}

	rctx := domain.ReliabilityContext{AmountCents: sub.AmountCADCents, Currency: "cad", UserID: &userID}
	if _, err := ExecuteWrapped(ctx, s.tracker, domain.OperationSubscription, rctx,
		func(ctx context.Context) (*stripeclient.Subscription, string, error) {
			remote, err := s.processor.CancelSubscription(ctx, sub.StripeSubscriptionID)
			if err != nil {
				return nil, "", err
			}
			return remote, remote.ID, nil
		}); err != nil {
		return nil, fmt.Errorf("cancel processor subscription: %w", err)
	}

	if err := s.repo.UpdateSubscriptionStatus(ctx, sub.ID, domain.SubscriptionStatusCancelled); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &userID,
		Action:     domain.AuditSubscriptionCancel,
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		OldValues:  map[string]any{"status": string(sub.Status)},
		NewValues:  map[string]any{"status": string(domain.SubscriptionStatusCancelled)},
	})

	s.notifier.Dispatch(ctx, userID, domain.NotificationSubscriptionEnded,
		"Recurring transfer cancelled", "Your recurring transfer has been cancelled.")
	s.notifier.PublishLifecycle(ctx, "subscription", sub.ID, userID, string(domain.SubscriptionStatusCancelled))

	sub.Status = domain.SubscriptionStatusCancelled
	return sub, nil
}

func (s *SubscriptionService) setStatus(ctx context.Context, subscriptionID, userID uuid.UUID, status domain.SubscriptionStatus, auditAction, notifType, title, message string) (*domain.Subscription, error) {
	sub, err := s.ownedSubscription(ctx, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionStatusCancelled {
		return nil, ErrSubscriptionNotCancellable
	}

	if err := s.repo.UpdateSubscriptionStatus(ctx, sub.ID, status); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:     &userID,
		Action:     auditAction,
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		OldValues:  map[string]any{"status": string(sub.Status)},
		NewValues:  map[string]any{"status": string(status)},
	})

	s.notifier.Dispatch(ctx, userID, notifType, title, message)
	s.notifier.PublishLifecycle(ctx, "subscription", sub.ID, userID, string(status))

	sub.Status = status
	return sub, nil
}

// ownedSubscription loads a subscription and verifies ownership. A row owned
// by someone else is indistinguishable from a missing one.
func (s *SubscriptionService) ownedSubscription(ctx context.Context, subscriptionID, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, store.ErrSubscriptionNotFound
	}
	return sub, nil
}
