/**
 * @description
 * Append-only audit logging for security and compliance relevant events.
 * Sensitive fields are masked before anything touches the database, even when
 * the caller forgot to mask. Audit logging is a side channel: a persistence
 * failure here is logged on a fallback line and never reaches the caller.
 */

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
)

// auditQueryCap bounds audit queries and exports for performance.
const auditQueryCap = 10000

// sensitiveKeyFragments are matched case-insensitively as substrings against
// map keys; any hit masks the value.
var sensitiveKeyFragments = []string{"password", "token", "secret", "key", "ssn", "creditcard"}

// AuditLogger records compliance-relevant events.
type AuditLogger struct {
	repo store.Repository
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(repo store.Repository) *AuditLogger {
	return &AuditLogger{repo: repo}
}

// Log masks and persists one audit entry. It never returns an error: audit
// logging must not mask or replace the primary operation's outcome.
func (a *AuditLogger) Log(ctx context.Context, entry domain.AuditEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.OldValues = MaskSensitive(entry.OldValues)
	entry.NewValues = MaskSensitive(entry.NewValues)
	entry.Metadata = MaskSensitive(entry.Metadata)

	if err := a.repo.InsertAuditLog(ctx, &entry); err != nil {
		// Fallback line for system monitoring; the event is lost from the
		// table but not from the log stream.
		log.Printf("level=error component=audit msg=\"audit persist failed\" action=%s resource=%s resource_id=%s err=%v",
			entry.Action, entry.Resource, entry.ResourceID, err)
	}
}

// Query returns matching entries newest-first, capped at 10,000 rows.
func (a *AuditLogger) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	return a.repo.QueryAuditLogs(ctx, filter, auditQueryCap)
}

// GenerateComplianceReport aggregates audit activity per category for a
// bounded date range.
func (a *AuditLogger) GenerateComplianceReport(ctx context.Context, start, end time.Time) (*domain.ComplianceReport, error) {
	return a.repo.ComplianceCounts(ctx, start, end)
}

// MaskSensitive returns a copy of values with every sensitive-keyed entry
// replaced: strings become same-length asterisk runs, anything else becomes a
// fixed placeholder. Nested maps and slices are walked recursively.
func MaskSensitive(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	masked := make(map[string]any, len(values))
	for key, value := range values {
		if isSensitiveKey(key) {
			masked[key] = maskValue(value)
			continue
		}
		masked[key] = maskNested(value)
	}
	return masked
}

func maskNested(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return MaskSensitive(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskNested(item)
		}
		return out
	default:
		return value
	}
}

func maskValue(value any) any {
	if s, ok := value.(string); ok {
		return strings.Repeat("*", len(s))
	}
	return "***MASKED***"
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// MaskTail keeps the first two characters of a value and replaces the rest
// with asterisks. Audit events carry beneficiary names and amounts in this
// form rather than in clear.
func MaskTail(value string) string {
	if len(value) <= 2 {
		return value
	}
	return value[:2] + strings.Repeat("*", len(value)-2)
}
