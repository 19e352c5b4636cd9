/**
 * @description
 * Payment reliability tracking. Every payment-processor operation runs through
 * ExecuteWrapped, which records exactly one attempt regardless of outcome and
 * re-returns the operation's error untouched. The tracker computes a trailing
 * failure rate from the append-only log and raises an alert when the rate
 * approaches the compliance threshold, before the hard limit is breached.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
	"github.com/volapay/remit-service/pkg/stripeclient"
)

const recentFailureLimit = 10

// TrackerConfig carries the injected thresholds and window. Thresholds are
// fractions: 0.02 means 2%.
type TrackerConfig struct {
	AlertThreshold      float64
	ComplianceThreshold float64
	Window              time.Duration
}

// Tracker records payment-processor attempt outcomes and evaluates the rolling
// failure rate against the compliance threshold.
type Tracker struct {
	repo store.Repository
	cfg  TrackerConfig
}

// NewTracker creates a reliability tracker. Zero config values fall back to
// the compliance defaults: alert at 1.5%, hard threshold 2%, 24h window.
func NewTracker(repo store.Repository, cfg TrackerConfig) *Tracker {
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 0.015
	}
	if cfg.ComplianceThreshold <= 0 {
		cfg.ComplianceThreshold = 0.02
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Tracker{repo: repo, cfg: cfg}
}

// Attempt is one processor operation outcome to record.
type Attempt struct {
	Type         domain.OperationType
	Success      bool
	ExternalID   string
	ErrorCode    string
	ErrorMessage string
	Context      domain.ReliabilityContext
}

// RecordAttempt appends a reliability log row and synchronously evaluates the
// rolling window. Recording failures are logged and swallowed: measurement
// must never break the measured operation.
func (t *Tracker) RecordAttempt(ctx context.Context, attempt Attempt) {
	entry := domain.ReliabilityLog{
		ID:           uuid.New(),
		Type:         attempt.Type,
		Success:      attempt.Success,
		ExternalID:   attempt.ExternalID,
		ErrorCode:    attempt.ErrorCode,
		ErrorMessage: attempt.ErrorMessage,
		AmountCents:  attempt.Context.AmountCents,
		Currency:     attempt.Context.Currency,
		UserID:       attempt.Context.UserID,
	}
	if err := t.repo.InsertReliabilityLog(ctx, &entry); err != nil {
		log.Printf("level=error component=reliability msg=\"attempt record failed\" type=%s success=%t err=%v",
			attempt.Type, attempt.Success, err)
		return
	}
	t.CheckFailureRate(ctx)
}

// CheckFailureRate evaluates the trailing window and logs an alert when the
// failure rate reaches the alert threshold. The alert fires below the hard
// compliance limit to give operators lead time. An empty window is a no-op.
func (t *Tracker) CheckFailureRate(ctx context.Context) {
	logs, err := t.repo.ListReliabilityLogsSince(ctx, time.Now().Add(-t.cfg.Window))
	if err != nil {
		log.Printf("level=warn component=reliability msg=\"failure rate check skipped\" err=%v", err)
		return
	}
	if len(logs) == 0 {
		return
	}

	var failures int
	for _, entry := range logs {
		if !entry.Success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(logs))
	if rate >= t.cfg.AlertThreshold {
		log.Printf("level=error component=reliability alert=payment_failure_rate msg=\"failure rate approaching compliance threshold\" rate=%.4f alert_threshold=%.4f compliance_threshold=%.4f window=%s total=%d failures=%d",
			rate, t.cfg.AlertThreshold, t.cfg.ComplianceThreshold, t.cfg.Window, len(logs), failures)
	}
}

// GetFailureRateStats returns the aggregated reliability view for a window of
// the given number of hours (the configured window when <= 0).
func (t *Tracker) GetFailureRateStats(ctx context.Context, windowHours int) (*domain.FailureRateStats, error) {
	window := t.cfg.Window
	if windowHours > 0 {
		window = time.Duration(windowHours) * time.Hour
	}

	logs, err := t.repo.ListReliabilityLogsSince(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}

	stats := &domain.FailureRateStats{
		WindowHours:       int(window / time.Hour),
		IsWithinThreshold: true,
		ByErrorCode:       make(map[string]int64),
		ByOperationType:   make(map[domain.OperationType]int64),
	}

	for _, entry := range logs {
		stats.Total++
		stats.ByOperationType[entry.Type]++
		if entry.Success {
			stats.Successes++
			continue
		}
		stats.Failures++
		code := entry.ErrorCode
		if code == "" {
			code = "unknown"
		}
		stats.ByErrorCode[code]++
		if len(stats.RecentFailures) < recentFailureLimit {
			// Entries arrive newest-first from the store.
			stats.RecentFailures = append(stats.RecentFailures, entry)
		}
	}

	if stats.Total > 0 {
		stats.FailureRate = float64(stats.Failures) / float64(stats.Total)
		stats.IsWithinThreshold = stats.FailureRate < t.cfg.ComplianceThreshold
	}
	return stats, nil
}

// ExecuteWrapped runs a payment-processor operation and guarantees its outcome
// is recorded exactly once, success or failure, before the original result and
// error are handed back untouched. The operation returns its typed result plus
// the processor-side id of whatever it created (empty when it failed before
// the processor assigned one).
func ExecuteWrapped[T any](ctx context.Context, tracker *Tracker, opType domain.OperationType, rctx domain.ReliabilityContext, op func(ctx context.Context) (T, string, error)) (T, error) {
	result, externalID, err := op(ctx)

	attempt := Attempt{
		Type:       opType,
		Success:    err == nil,
		ExternalID: externalID,
		Context:    rctx,
	}
	if err != nil {
		attempt.ErrorMessage = err.Error()
		var stripeErr *stripeclient.ErrorResponse
		if errors.As(err, &stripeErr) {
			attempt.ErrorCode = stripeErr.Code()
		}
	}
	tracker.RecordAttempt(ctx, attempt)

	return result, err
}
