/**
 * @description
 * Domain models for the append-only audit log and the compliance report built
 * on top of it. Audit entries carry before/after value snapshots which are
 * masked for sensitive fields before they ever reach the database.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the service. The set is open-ended (string enum),
// but these are the actions this service emits itself.
const (
	AuditTransferCreate        = "TRANSFER_CREATE"
	AuditTransferConfirm       = "TRANSFER_CONFIRM"
	AuditTransferCancel        = "TRANSFER_CANCEL"
	AuditTransferAutomate      = "TRANSFER_AUTOMATE"
	AuditSubscriptionCreate    = "SUBSCRIPTION_CREATE"
	AuditSubscriptionPause     = "SUBSCRIPTION_PAUSE"
	AuditSubscriptionResume    = "SUBSCRIPTION_RESUME"
	AuditSubscriptionCancel    = "SUBSCRIPTION_CANCEL"
	AuditPaymentWebhook        = "PAYMENT_WEBHOOK"
	AuditAuthFailure           = "AUTH_FAILURE"
	AuditAdminComplianceExport = "ADMIN_COMPLIANCE_EXPORT_AUDIT_LOGS"
)

// AuditEntry is one append-only audit record. UserID is nil for system or
// anonymous events.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditFilter selects audit entries for queries and exports.
type AuditFilter struct {
	StartDate time.Time
	EndDate   time.Time
	UserID    *uuid.UUID
	Action    string
	Resource  string
}

// ComplianceReport aggregates audit activity over a bounded date range.
type ComplianceReport struct {
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	TotalEvents        int64     `json:"total_events"`
	AuthEvents         int64     `json:"auth_events"`
	TransferEvents     int64     `json:"transfer_events"`
	PaymentEvents      int64     `json:"payment_events"`
	AdminEvents        int64     `json:"admin_events"`
	DataAccessEvents   int64     `json:"data_access_events"`
	SystemChangeEvents int64     `json:"system_change_events"`
	UniqueUsers        int64     `json:"unique_users"`
}
