/**
 * @description
 * This file models the payment-processor webhook contract: the envelope Stripe
 * posts to our endpoint and the typed payloads we extract from it. Event types
 * are mapped onto a closed kind set with an explicit unhandled variant rather
 * than dispatched on raw strings.
 */

package domain

import "encoding/json"

// StripeEvent is the webhook envelope posted by the payment processor.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// EventKind is the closed set of webhook event types this service reacts to.
type EventKind int

const (
	EventUnhandled EventKind = iota
	EventInvoicePaymentSucceeded
	EventInvoicePaymentFailed
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

// KindOf maps a processor event-type string onto the known kind set.
func KindOf(eventType string) EventKind {
	switch eventType {
	case "invoice.payment_succeeded":
		return EventInvoicePaymentSucceeded
	case "invoice.payment_failed":
		return EventInvoicePaymentFailed
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	default:
		return EventUnhandled
	}
}

// InvoicePayload is the subset of a Stripe invoice object the billing pipeline
// needs.
type InvoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	Currency     string `json:"currency"`
}

// SubscriptionPayload is the subset of a Stripe subscription object used for
// the coarse status sync.
type SubscriptionPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
