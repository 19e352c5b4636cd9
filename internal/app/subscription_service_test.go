package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
	"github.com/volapay/remit-service/pkg/rabbitmq"
	"github.com/volapay/remit-service/pkg/stripeclient"
)

type processorStub struct {
	customers     int
	attached      int
	products      int
	prices        int
	subscriptions int
	cancellations int
	failOn        string
	priceInterval string
	priceCount    int
	cancelledID   string
}

func (p *processorStub) fail(op string) error {
	if p.failOn == op {
		resp := &stripeclient.ErrorResponse{}
		resp.Err.Type = "api_error"
		resp.Err.Code = "processing_error"
		resp.Err.Message = op + " failed"
		return resp
	}
	return nil
}

func (p *processorStub) CreateCustomer(ctx context.Context, email, name string) (*stripeclient.Customer, error) {
	if err := p.fail("customer"); err != nil {
		return nil, err
	}
	p.customers++
	return &stripeclient.Customer{ID: "cus_1", Email: email}, nil
}

func (p *processorStub) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*stripeclient.PaymentMethod, error) {
	if err := p.fail("payment_method"); err != nil {
		return nil, err
	}
	p.attached++
	return &stripeclient.PaymentMethod{ID: paymentMethodID, Customer: customerID}, nil
}

func (p *processorStub) CreateProduct(ctx context.Context, name string) (*stripeclient.Product, error) {
	if err := p.fail("product"); err != nil {
		return nil, err
	}
	p.products++
	return &stripeclient.Product{ID: "prod_1", Name: name}, nil
}

func (p *processorStub) CreatePrice(ctx context.Context, productID string, amountCents int64, interval string, intervalCount int) (*stripeclient.Price, error) {
	if err := p.fail("price"); err != nil {
		return nil, err
	}
	p.prices++
	p.priceInterval = interval
	p.priceCount = intervalCount
	return &stripeclient.Price{ID: "price_1", UnitAmount: amountCents, Currency: "cad"}, nil
}

func (p *processorStub) CreateSubscription(ctx context.Context, customerID, priceID string) (*stripeclient.Subscription, error) {
	if err := p.fail("subscription"); err != nil {
		return nil, err
	}
	p.subscriptions++
	return &stripeclient.Subscription{ID: "sub_remote_1", Status: "active"}, nil
}

func (p *processorStub) CancelSubscription(ctx context.Context, subscriptionID string) (*stripeclient.Subscription, error) {
	if err := p.fail("cancel"); err != nil {
		return nil, err
	}
	p.cancellations++
	p.cancelledID = subscriptionID
	return &stripeclient.Subscription{ID: subscriptionID, Status: "canceled"}, nil
}

func newTestSubscriptionService(repo *stubRepo, processor PaymentProcessor) *SubscriptionService {
	notifier := NewNotifier(repo, &rabbitmq.EventProducerFallback{})
	audit := NewAuditLogger(repo)
	tracker := NewTracker(repo, TrackerConfig{})
	return NewSubscriptionService(repo, processor, tracker, notifier, audit, TransferLimits{})
}

func seedSubscriber(repo *stubRepo) (uuid.UUID, *domain.Beneficiary) {
	userID := uuid.New()
	repo.users[userID] = &domain.User{ID: userID, Email: "client@example.ca", FullName: "Miora Rasoa"}
	return userID, seedBeneficiary(repo, userID, true)
}

func TestCreateSubscription_HappyPath(t *testing.T) {
	repo := newStubRepo()
	userID, beneficiary := seedSubscriber(repo)
	processor := &processorStub{}
	svc := newTestSubscriptionService(repo, processor)

	sub, err := svc.CreateSubscription(context.Background(), userID, domain.CreateSubscriptionRequest{
		BeneficiaryID:    beneficiary.ID,
		AmountCADCents:   10000,
		Frequency:        domain.FrequencyBiWeekly,
		NextTransferDate: time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		PaymentMethodID:  "pm_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sub.Status != domain.SubscriptionStatusActive {
		t.Errorf("expected ACTIVE, got %s", sub.Status)
	}
	if sub.StripeSubscriptionID != "sub_remote_1" {
		t.Errorf("expected processor subscription id recorded, got %q", sub.StripeSubscriptionID)
	}
	if processor.customers != 1 || processor.attached != 1 || processor.products != 1 || processor.prices != 1 || processor.subscriptions != 1 {
		t.Errorf("expected full provisioning chain, got %+v", processor)
	}
	if processor.priceInterval != "week" || processor.priceCount != 2 {
		t.Errorf("bi-weekly should map to week/2, got %s/%d", processor.priceInterval, processor.priceCount)
	}
	// The billing cycle arrives by webhook; creation itself moves no money.
	if len(repo.transfers) != 0 {
		t.Error("subscription creation must not create a transfer")
	}
	// Five processor calls, five reliability attempts.
	if len(repo.reliabilityLogs) != 5 {
		t.Errorf("expected 5 reliability attempts, got %d", len(repo.reliabilityLogs))
	}
	if _, ok := repo.subscriptions[sub.ID]; !ok {
		t.Error("expected subscription to be persisted")
	}
}

func TestCreateSubscription_InvalidFrequency(t *testing.T) {
	repo := newStubRepo()
	userID, beneficiary := seedSubscriber(repo)
	svc := newTestSubscriptionService(repo, &processorStub{})

	_, err := svc.CreateSubscription(context.Background(), userID, domain.CreateSubscriptionRequest{
		BeneficiaryID:  beneficiary.ID,
		AmountCADCents: 10000,
		Frequency:      "quarterly",
	})
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestCreateSubscription_ProcessorFailureRecordsAttempt(t *testing.T) {
	repo := newStubRepo()
	userID, beneficiary := seedSubscriber(repo)
	processor := &processorStub{failOn: "subscription"}
	svc := newTestSubscriptionService(repo, processor)

	_, err := svc.CreateSubscription(context.Background(), userID, domain.CreateSubscriptionRequest{
		BeneficiaryID:   beneficiary.ID,
		AmountCADCents:  10000,
		Frequency:       domain.FrequencyMonthly,
		PaymentMethodID: "pm_1",
	})
	if err == nil {
		t.Fatal("expected provisioning failure to propagate")
	}
	if len(repo.subscriptions) != 0 {
		t.Error("expected no local row after processor failure")
	}

	// Four successes plus the failed final call are all measured.
	if len(repo.reliabilityLogs) != 5 {
		t.Fatalf("expected 5 reliability attempts, got %d", len(repo.reliabilityLogs))
	}
	last := repo.reliabilityLogs[4]
	if last.Success {
		t.Error("expected the final attempt to be recorded as a failure")
	}
	if last.ErrorCode != "processing_error" {
		t.Errorf("expected processor error code captured, got %q", last.ErrorCode)
	}
}

func TestCreateSubscription_PersistFailureCancelsRemote(t *testing.T) {
	repo := newStubRepo()
	repo.createSubErr = errors.New("db down")
	userID, beneficiary := seedSubscriber(repo)
	processor := &processorStub{}
	svc := newTestSubscriptionService(repo, processor)

	_, err := svc.CreateSubscription(context.Background(), userID, domain.CreateSubscriptionRequest{
		BeneficiaryID:   beneficiary.ID,
		AmountCADCents:  10000,
		Frequency:       domain.FrequencyWeekly,
		PaymentMethodID: "pm_1",
	})
	if err == nil {
		t.Fatal("expected persistence failure to propagate")
	}
	if processor.cancellations != 1 || processor.cancelledID != "sub_remote_1" {
		t.Error("expected the orphaned processor subscription to be cancelled")
	}
}

func TestCancelSubscription_OwnershipEnforced(t *testing.T) {
	repo := newStubRepo()
	sub := seedSubscription(repo, "sub_abc")
	svc := newTestSubscriptionService(repo, &processorStub{})

	_, err := svc.CancelSubscription(context.Background(), sub.ID, uuid.New())
	if !errors.Is(err, store.ErrSubscriptionNotFound) {
		t.Fatalf("expected foreign subscription to look missing, got %v", err)
	}
}

func TestCancelSubscription_SoftDeletes(t *testing.T) {
	repo := newStubRepo()
	sub := seedSubscription(repo, "sub_abc")
	processor := &processorStub{}
	svc := newTestSubscriptionService(repo, processor)

	cancelled, err := svc.CancelSubscription(context.Background(), sub.ID, sub.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.SubscriptionStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}
	if processor.cancelledID != "sub_abc" {
		t.Errorf("expected remote cancel of sub_abc, got %q", processor.cancelledID)
	}
	// Soft delete: the row survives with only its status changed.
	if _, ok := repo.subscriptions[sub.ID]; !ok {
		t.Error("expected the row to remain after cancellation")
	}

	if _, err := svc.PauseSubscription(context.Background(), sub.ID, sub.UserID); !errors.Is(err, ErrSubscriptionNotCancellable) {
		t.Errorf("expected lifecycle actions rejected after cancel, got %v", err)
	}
}

func TestPauseAndResumeSubscription(t *testing.T) {
	repo := newStubRepo()
	sub := seedSubscription(repo, "sub_abc")
	svc := newTestSubscriptionService(repo, &processorStub{})

	paused, err := svc.PauseSubscription(context.Background(), sub.ID, sub.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paused.Status != domain.SubscriptionStatusPaused {
		t.Errorf("expected PAUSED, got %s", paused.Status)
	}

	resumed, err := svc.ResumeSubscription(context.Background(), sub.ID, sub.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.Status != domain.SubscriptionStatusActive {
		t.Errorf("expected ACTIVE, got %s", resumed.Status)
	}
}

func TestResumeSubscription_RequiresPaused(t *testing.T) {
	repo := newStubRepo()
	sub := seedSubscription(repo, "sub_abc")
	svc := newTestSubscriptionService(repo, &processorStub{})

	// seedSubscription leaves the row ACTIVE; there is nothing to resume.
	if _, err := svc.ResumeSubscription(context.Background(), sub.ID, sub.UserID); !errors.Is(err, ErrSubscriptionNotPaused) {
		t.Fatalf("expected ErrSubscriptionNotPaused for an active subscription, got %v", err)
	}
	if got := repo.statusUpdates[sub.ID]; got != "" {
		t.Errorf("expected no status write, got %s", got)
	}
}
