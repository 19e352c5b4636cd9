/**
 * @description
 * PostgreSQL queries for the compliance subsystem: the append-only audit log
 * and the payment reliability log. Both tables are insert-only; nothing in this
 * file mutates an existing row.
 */

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/volapay/remit-service/internal/domain"
)

// InsertAuditLog appends one audit entry. Value maps are stored as JSONB; the
// caller (the audit logger) is responsible for masking before this point.
func (r *PostgresRepository) InsertAuditLog(ctx context.Context, entry *domain.AuditEntry) error {
	oldValues, err := marshalNullable(entry.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalNullable(entry.NewValues)
	if err != nil {
		return err
	}
	metadata, err := marshalNullable(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource, resource_id,
			old_values, new_values, ip_address, user_agent, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.ResourceID,
		oldValues, newValues, nullableText(entry.IPAddress), nullableText(entry.UserAgent), metadata,
	).Scan(&entry.CreatedAt)
}

// QueryAuditLogs returns entries matching the filter, newest first, capped at
// the given limit.
func (r *PostgresRepository) QueryAuditLogs(ctx context.Context, filter domain.AuditFilter, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, user_id, action, resource, resource_id,
			old_values, new_values,
			COALESCE(ip_address, ''), COALESCE(user_agent, ''), metadata, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
			AND ($3::uuid IS NULL OR user_id = $3)
			AND ($4::text IS NULL OR action = $4)
			AND ($5::text IS NULL OR resource = $5)
		ORDER BY created_at DESC
		LIMIT $6
	`
	rows, err := r.db.Query(ctx, query,
		filter.StartDate, filter.EndDate,
		filter.UserID, nullableText(filter.Action), nullableText(filter.Resource),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var oldValues, newValues, metadata []byte
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Action, &entry.Resource, &entry.ResourceID,
			&oldValues, &newValues, &entry.IPAddress, &entry.UserAgent, &metadata, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(oldValues, &entry.OldValues); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(newValues, &entry.NewValues); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(metadata, &entry.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ComplianceCounts aggregates audit activity per category over a date range.
// Categories are matched on action prefixes, which is why audit action names
// are structured NOUN_VERB with a stable leading noun.
func (r *PostgresRepository) ComplianceCounts(ctx context.Context, start, end time.Time) (*domain.ComplianceReport, error) {
	report := domain.ComplianceReport{StartDate: start, EndDate: end}
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE action LIKE 'AUTH_%'),
			COUNT(*) FILTER (WHERE action LIKE 'TRANSFER_%'),
			COUNT(*) FILTER (WHERE action LIKE 'PAYMENT_%' OR action LIKE 'SUBSCRIPTION_%'),
			COUNT(*) FILTER (WHERE action LIKE 'ADMIN_%'),
			COUNT(*) FILTER (WHERE action LIKE 'DATA_ACCESS_%'),
			COUNT(*) FILTER (WHERE action LIKE 'SYSTEM_CONFIG_%'),
			COUNT(DISTINCT user_id) FILTER (WHERE user_id IS NOT NULL)
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
	`
	err := r.db.QueryRow(ctx, query, start, end).Scan(
		&report.TotalEvents,
		&report.AuthEvents,
		&report.TransferEvents,
		&report.PaymentEvents,
		&report.AdminEvents,
		&report.DataAccessEvents,
		&report.SystemChangeEvents,
		&report.UniqueUsers,
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// InsertReliabilityLog appends one payment-processor attempt record.
func (r *PostgresRepository) InsertReliabilityLog(ctx context.Context, entry *domain.ReliabilityLog) error {
	query := `
		INSERT INTO reliability_logs (
			id, type, success, external_id, error_code, error_message,
			amount_cents, currency, user_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		entry.ID, entry.Type, entry.Success,
		nullableText(entry.ExternalID), nullableText(entry.ErrorCode), nullableText(entry.ErrorMessage),
		entry.AmountCents, nullableText(entry.Currency), entry.UserID,
	).Scan(&entry.CreatedAt)
}

// ListReliabilityLogsSince returns attempts inside the trailing window, newest
// first, for failure-rate computation.
func (r *PostgresRepository) ListReliabilityLogsSince(ctx context.Context, since time.Time) ([]domain.ReliabilityLog, error) {
	query := `
		SELECT id, type, success,
			COALESCE(external_id, ''), COALESCE(error_code, ''), COALESCE(error_message, ''),
			amount_cents, COALESCE(currency, ''), user_id, created_at
		FROM reliability_logs
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ReliabilityLog
	for rows.Next() {
		var e domain.ReliabilityLog
		if err := rows.Scan(
			&e.ID, &e.Type, &e.Success,
			&e.ExternalID, &e.ErrorCode, &e.ErrorMessage,
			&e.AmountCents, &e.Currency, &e.UserID, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalNullable(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalNullable(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
