package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access level carried in a session token.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
	// RoleMGTeam is the Madagascar operations team driving manual confirmation
	// and mobile-money automation.
	RoleMGTeam Role = "mg_team"
)

// User represents a simplified view of a user, containing only the data this
// service needs to run the transfer lifecycle and send notifications.
type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	Role             Role      `json:"role"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
}

// Beneficiary is the recipient profile a transfer or subscription pays out to.
// Ownership and the active flag gate transfer creation; the rest of beneficiary
// CRUD lives in the dashboard layer.
type Beneficiary struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification is a user-visible record created as a side effect of lifecycle
// transitions. Creating one is always best-effort: a failure here never fails
// the parent operation.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification types emitted by the lifecycle engine and billing pipeline.
const (
	NotificationTransferCreated      = "TRANSFER_CREATED"
	NotificationTransferCompleted    = "TRANSFER_COMPLETED"
	NotificationTransferFailed       = "TRANSFER_FAILED"
	NotificationTransferCancelled    = "TRANSFER_CANCELLED"
	NotificationSubscriptionBilled   = "SUBSCRIPTION_BILLED"
	NotificationSubscriptionPaused   = "SUBSCRIPTION_PAUSED"
	NotificationSubscriptionEnded    = "SUBSCRIPTION_CANCELLED"
	NotificationSubscriptionUpcoming = "SUBSCRIPTION_UPCOMING"
)
