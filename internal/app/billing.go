/**
 * @description
 * The subscription billing pipeline. Billing cycles are pushed to us by the
 * payment processor as webhook events; no internal scheduler creates transfers.
 * Each event id is claimed in the webhook_events table before any state is
 * written, so a replayed delivery is a logged no-op instead of a duplicate
 * transfer.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
)

// MailSender delivers transactional email. Sends are always best-effort.
type MailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// BillingPipeline reacts to payment-processor webhook events.
type BillingPipeline struct {
	repo      store.Repository
	rates     RateSource
	transfers *TransferService
	notifier  *Notifier
	audit     *AuditLogger
	mail      MailSender
}

// NewBillingPipeline creates the webhook-driven billing pipeline.
func NewBillingPipeline(repo store.Repository, rates RateSource, transfers *TransferService, notifier *Notifier, audit *AuditLogger, mail MailSender) *BillingPipeline {
	return &BillingPipeline{
		repo:      repo,
		rates:     rates,
		transfers: transfers,
		notifier:  notifier,
		audit:     audit,
		mail:      mail,
	}
}

// HandleEvent dispatches one verified webhook event. A nil return means the
// event is settled from the processor's point of view; an error means
// infrastructure failed mid-flight and the processor should redeliver.
func (p *BillingPipeline) HandleEvent(ctx context.Context, event domain.StripeEvent) error {
	kind := domain.KindOf(event.Type)
	if kind == domain.EventUnhandled {
		log.Printf("level=info component=billing msg=\"unhandled webhook event type\" event_id=%s type=%s", event.ID, event.Type)
		return nil
	}

	claimed, err := p.repo.ClaimWebhookEvent(ctx, event.ID, event.Type)
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		log.Printf("level=info component=billing msg=\"duplicate webhook event ignored\" event_id=%s type=%s", event.ID, event.Type)
		return nil
	}

	switch kind {
	case domain.EventInvoicePaymentSucceeded:
		return p.handlePaymentSucceeded(ctx, event)
	case domain.EventInvoicePaymentFailed:
		return p.handlePaymentFailed(ctx, event)
	case domain.EventSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, event)
	case domain.EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, event)
	}
	return nil
}

// handlePaymentSucceeded generates the billing cycle's transfer and advances
// the subscription's next transfer date.
func (p *BillingPipeline) handlePaymentSucceeded(ctx context.Context, event domain.StripeEvent) error {
	var invoice domain.InvoicePayload
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		log.Printf("level=warn component=billing msg=\"unparsable invoice payload\" event_id=%s err=%v", event.ID, err)
		return nil
	}

	sub, err := p.repo.FindSubscriptionByStripeID(ctx, invoice.Subscription)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			// A row that does not exist now never will; redelivery cannot fix
			// it, so the claim stands and the webhook is acknowledged.
			log.Printf("level=warn component=billing msg=\"no subscription for invoice\" event_id=%s stripe_subscription_id=%s", event.ID, invoice.Subscription)
			return nil
		}
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("lookup subscription: %w", err)
	}

	rate, err := p.rates.LatestRate(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoExchangeRate) {
			// Release the claim so the processor's own redelivery retries the
			// cycle once a rate exists; without this the cycle would be lost
			// with only a log line.
			log.Printf("level=error component=billing msg=\"billing cycle deferred: no exchange rate\" event_id=%s subscription_id=%s", event.ID, sub.ID)
			p.releaseClaim(ctx, event.ID)
			return nil
		}
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("lookup exchange rate: %w", err)
	}

	quote := p.transfers.ComputeQuote(sub.AmountCADCents, rate)
	transfer := &domain.Transfer{
		ID:             uuid.New(),
		UserID:         sub.UserID,
		BeneficiaryID:  sub.BeneficiaryID,
		SubscriptionID: &sub.ID,
		AmountCADCents: sub.AmountCADCents,
		AmountMGA:      quote.AmountMGA,
		ExchangeRate:   quote.Rate,
		FeeCADCents:    quote.FeeCADCents,
		TotalCADCents:  quote.TotalCADCents,
		Type:           domain.TransferTypeSubscription,
		Status:         domain.TransferStatusPending,
	}
	if err := p.repo.CreateTransfer(ctx, transfer); err != nil {
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("create subscription transfer: %w", err)
	}

	base := sub.NextTransferDate
	if base.IsZero() {
		base = time.Now().UTC()
	}
	if err := p.repo.AdvanceSubscriptionNextTransferDate(ctx, sub.ID, sub.Frequency.NextAfter(base)); err != nil {
		log.Printf("level=error component=billing msg=\"next transfer date advance failed\" subscription_id=%s err=%v", sub.ID, err)
	}

	p.audit.Log(ctx, domain.AuditEntry{
		UserID:     &sub.UserID,
		Action:     domain.AuditPaymentWebhook,
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		Metadata: map[string]any{
			"event_id":    event.ID,
			"event_type":  event.Type,
			"transfer_id": transfer.ID.String(),
		},
	})

	p.notifier.Dispatch(ctx, sub.UserID, domain.NotificationSubscriptionBilled,
		"Recurring transfer on its way",
		fmt.Sprintf("Your scheduled transfer of %s has been created and is pending processing.", formatCAD(sub.AmountCADCents)))
	p.notifier.PublishLifecycle(ctx, "transfer", transfer.ID, sub.UserID, string(transfer.Status))
	p.sendEmail(ctx, sub.UserID, "Your recurring transfer is on its way",
		fmt.Sprintf("<p>Your scheduled transfer of %s has been created.</p>", formatCAD(sub.AmountCADCents)))

	return nil
}

// handlePaymentFailed pauses the subscription unconditionally. There is no
// distinction between transient and permanent processor failure reasons:
// every failed invoice pauses, and only an explicit user action resumes.
func (p *BillingPipeline) handlePaymentFailed(ctx context.Context, event domain.StripeEvent) error {
	var invoice domain.InvoicePayload
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		log.Printf("level=warn component=billing msg=\"unparsable invoice payload\" event_id=%s err=%v", event.ID, err)
		return nil
	}

	sub, err := p.repo.FindSubscriptionByStripeID(ctx, invoice.Subscription)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			log.Printf("level=warn component=billing msg=\"no subscription for failed invoice\" event_id=%s stripe_subscription_id=%s", event.ID, invoice.Subscription)
			return nil
		}
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("lookup subscription: %w", err)
	}

	if err := p.repo.UpdateSubscriptionStatus(ctx, sub.ID, domain.SubscriptionStatusPaused); err != nil {
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("pause subscription: %w", err)
	}

	p.audit.Log(ctx, domain.AuditEntry{
		UserID:     &sub.UserID,
		Action:     domain.AuditSubscriptionPause,
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		OldValues:  map[string]any{"status": string(sub.Status)},
		NewValues:  map[string]any{"status": string(domain.SubscriptionStatusPaused)},
		Metadata:   map[string]any{"event_id": event.ID, "reason": "invoice.payment_failed"},
	})

	p.notifier.Dispatch(ctx, sub.UserID, domain.NotificationSubscriptionPaused,
		"Recurring transfer paused",
		"Your last payment failed, so your recurring transfer has been paused. Update your payment method to resume.")
	p.notifier.PublishLifecycle(ctx, "subscription", sub.ID, sub.UserID, string(domain.SubscriptionStatusPaused))
	p.sendEmail(ctx, sub.UserID, "Your recurring transfer is paused",
		"<p>Your last payment failed, so your recurring transfer has been paused. Update your payment method to resume.</p>")

	return nil
}

// handleSubscriptionUpdated applies the coarse processor→local status map.
// Any processor status outside {paused, canceled} collapses to ACTIVE.
func (p *BillingPipeline) handleSubscriptionUpdated(ctx context.Context, event domain.StripeEvent) error {
	var payload domain.SubscriptionPayload
	if err := json.Unmarshal(event.Data.Object, &payload); err != nil {
		log.Printf("level=warn component=billing msg=\"unparsable subscription payload\" event_id=%s err=%v", event.ID, err)
		return nil
	}

	sub, err := p.repo.FindSubscriptionByStripeID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			log.Printf("level=warn component=billing msg=\"no subscription for update\" event_id=%s stripe_subscription_id=%s", event.ID, payload.ID)
			return nil
		}
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("lookup subscription: %w", err)
	}

	status := domain.MapStripeSubscriptionStatus(payload.Status)
	if err := p.repo.UpdateSubscriptionStatus(ctx, sub.ID, status); err != nil {
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("sync subscription status: %w", err)
	}

	p.notifier.PublishLifecycle(ctx, "subscription", sub.ID, sub.UserID, string(status))
	return nil
}

// handleSubscriptionDeleted cancels the local row (soft delete).
func (p *BillingPipeline) handleSubscriptionDeleted(ctx context.Context, event domain.StripeEvent) error {
	var payload domain.SubscriptionPayload
	if err := json.Unmarshal(event.Data.Object, &payload); err != nil {
		log.Printf("level=warn component=billing msg=\"unparsable subscription payload\" event_id=%s err=%v", event.ID, err)
		return nil
	}

	sub, err := p.repo.FindSubscriptionByStripeID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			log.Printf("level=warn component=billing msg=\"no subscription for delete\" event_id=%s stripe_subscription_id=%s", event.ID, payload.ID)
			return nil
		}
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("lookup subscription: %w", err)
	}

	if err := p.repo.UpdateSubscriptionStatus(ctx, sub.ID, domain.SubscriptionStatusCancelled); err != nil {
		p.releaseClaim(ctx, event.ID)
		return fmt.Errorf("cancel subscription: %w", err)
	}

	p.audit.Log(ctx, domain.AuditEntry{
		UserID:     &sub.UserID,
		Action:     domain.AuditSubscriptionCancel,
		Resource:   "subscription",
		ResourceID: sub.ID.String(),
		OldValues:  map[string]any{"status": string(sub.Status)},
		NewValues:  map[string]any{"status": string(domain.SubscriptionStatusCancelled)},
		Metadata:   map[string]any{"event_id": event.ID, "reason": "customer.subscription.deleted"},
	})

	p.notifier.Dispatch(ctx, sub.UserID, domain.NotificationSubscriptionEnded,
		"Recurring transfer cancelled",
		"Your recurring transfer has been cancelled.")
	p.notifier.PublishLifecycle(ctx, "subscription", sub.ID, sub.UserID, string(domain.SubscriptionStatusCancelled))
	p.sendEmail(ctx, sub.UserID, "Your recurring transfer is cancelled",
		"<p>Your recurring transfer has been cancelled.</p>")

	return nil
}

// releaseClaim drops a dedup claim after an abort so the processor's
// redelivery can retry. Failure here is only logged: worst case the replay is
// treated as a duplicate and operators recover from the audit trail.
func (p *BillingPipeline) releaseClaim(ctx context.Context, eventID string) {
	if err := p.repo.ReleaseWebhookEvent(ctx, eventID); err != nil {
		log.Printf("level=error component=billing msg=\"webhook claim release failed\" event_id=%s err=%v", eventID, err)
	}
}

// sendEmail resolves the user's address and sends best-effort.
func (p *BillingPipeline) sendEmail(ctx context.Context, userID uuid.UUID, subject, html string) {
	if p.mail == nil {
		return
	}
	user, err := p.repo.FindUserByID(ctx, userID)
	if err != nil {
		log.Printf("level=warn component=billing msg=\"email skipped; user lookup failed\" user_id=%s err=%v", userID, err)
		return
	}
	if err := p.mail.Send(ctx, user.Email, subject, html); err != nil {
		log.Printf("level=warn component=billing msg=\"email send failed\" user_id=%s err=%v", userID, err)
	}
}
