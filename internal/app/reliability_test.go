package app

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
)

func seedReliabilityLogs(repo *stubRepo, successes, failures int, code string) {
	for i := 0; i < successes; i++ {
		repo.reliabilityLogs = append(repo.reliabilityLogs, domain.ReliabilityLog{
			ID:      uuid.New(),
			Type:    domain.OperationPaymentIntent,
			Success: true,
		})
	}
	for i := 0; i < failures; i++ {
		repo.reliabilityLogs = append(repo.reliabilityLogs, domain.ReliabilityLog{
			ID:        uuid.New(),
			Type:      domain.OperationSubscription,
			Success:   false,
			ErrorCode: code,
		})
	}
}

func TestGetFailureRateStats_Math(t *testing.T) {
	repo := newStubRepo()
	seedReliabilityLogs(repo, 97, 3, "card_declined")
	tracker := NewTracker(repo, TrackerConfig{})

	stats, err := tracker.GetFailureRateStats(context.Background(), 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Total != 100 || stats.Successes != 97 || stats.Failures != 3 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.FailureRate != 0.03 {
		t.Errorf("expected failure rate 0.03, got %f", stats.FailureRate)
	}
	// 3% breaches the 2% compliance threshold.
	if stats.IsWithinThreshold {
		t.Error("expected threshold breach at 3%")
	}
	if stats.ByErrorCode["card_declined"] != 3 {
		t.Errorf("expected 3 card_declined failures, got %d", stats.ByErrorCode["card_declined"])
	}
	if stats.ByOperationType[domain.OperationSubscription] != 3 {
		t.Errorf("expected 3 SUBSCRIPTION attempts, got %d", stats.ByOperationType[domain.OperationSubscription])
	}
}

func TestGetFailureRateStats_WithinThresholdAtLowRate(t *testing.T) {
	repo := newStubRepo()
	seedReliabilityLogs(repo, 99, 1, "processing_error")
	tracker := NewTracker(repo, TrackerConfig{})

	stats, err := tracker.GetFailureRateStats(context.Background(), 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.IsWithinThreshold {
		t.Error("1% failure rate should be within the 2% threshold")
	}
}

func TestGetFailureRateStats_EmptyWindow(t *testing.T) {
	repo := newStubRepo()
	tracker := NewTracker(repo, TrackerConfig{})

	stats, err := tracker.GetFailureRateStats(context.Background(), 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 0 || stats.FailureRate != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
	if !stats.IsWithinThreshold {
		t.Error("an empty window must count as within threshold")
	}
}

func TestGetFailureRateStats_RecentFailuresCapped(t *testing.T) {
	repo := newStubRepo()
	seedReliabilityLogs(repo, 0, 25, "card_declined")
	tracker := NewTracker(repo, TrackerConfig{})

	stats, err := tracker.GetFailureRateStats(context.Background(), 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.RecentFailures) != recentFailureLimit {
		t.Errorf("expected %d recent failures, got %d", recentFailureLimit, len(stats.RecentFailures))
	}
}

func TestRecordAttempt_SwallowsStoreErrors(t *testing.T) {
	repo := newStubRepo()
	repo.reliabilityErr = errors.New("db down")
	tracker := NewTracker(repo, TrackerConfig{})

	// Must not panic or propagate: measurement never breaks the measured call.
	tracker.RecordAttempt(context.Background(), Attempt{Type: domain.OperationInvoice, Success: true})
}

func TestExecuteWrapped_RecordsSuccessOnce(t *testing.T) {
	repo := newStubRepo()
	tracker := NewTracker(repo, TrackerConfig{Window: time.Hour})

	got, err := ExecuteWrapped(context.Background(), tracker, domain.OperationPaymentIntent, domain.ReliabilityContext{AmountCents: 10000, Currency: "cad"},
		func(ctx context.Context) (string, string, error) {
			return "result", "pi_123", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "result" {
		t.Errorf("expected wrapped result to pass through, got %q", got)
	}

	if len(repo.reliabilityLogs) != 1 {
		t.Fatalf("expected exactly one attempt record, got %d", len(repo.reliabilityLogs))
	}
	entry := repo.reliabilityLogs[0]
	if !entry.Success || entry.ExternalID != "pi_123" || entry.AmountCents != 10000 {
		t.Errorf("unexpected attempt record: %+v", entry)
	}
}

func TestExecuteWrapped_RecordsFailureAndReturnsOriginalError(t *testing.T) {
	repo := newStubRepo()
	tracker := NewTracker(repo, TrackerConfig{Window: time.Hour})
	opErr := errors.New("network timeout")

	_, err := ExecuteWrapped(context.Background(), tracker, domain.OperationSubscription, domain.ReliabilityContext{},
		func(ctx context.Context) (*struct{}, string, error) {
			return nil, "", opErr
		})
	if !errors.Is(err, opErr) {
		t.Fatalf("expected the operation's own error back, got %v", err)
	}

	if len(repo.reliabilityLogs) != 1 {
		t.Fatalf("expected exactly one attempt record, got %d", len(repo.reliabilityLogs))
	}
	entry := repo.reliabilityLogs[0]
	if entry.Success {
		t.Error("expected failure record")
	}
	if entry.ErrorMessage != "network timeout" {
		t.Errorf("expected error message captured, got %q", entry.ErrorMessage)
	}
}

func TestCheckFailureRate_AlertsInsideAlertBand(t *testing.T) {
	repo := newStubRepo()
	// 8 failures in 500 attempts is 1.6%: past the 1.5% alert line while
	// still below the 2% compliance limit.
	seedReliabilityLogs(repo, 492, 8, "card_declined")
	tracker := NewTracker(repo, TrackerConfig{})

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	tracker.CheckFailureRate(context.Background())

	if !strings.Contains(buf.String(), "alert=payment_failure_rate") {
		t.Fatalf("expected alert at 1.6%% failure rate, log output: %q", buf.String())
	}
}

func TestCheckFailureRate_QuietBelowAlertThreshold(t *testing.T) {
	repo := newStubRepo()
	// 5 failures in 500 attempts is 1.0%, under the alert line.
	seedReliabilityLogs(repo, 495, 5, "card_declined")
	tracker := NewTracker(repo, TrackerConfig{})

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	tracker.CheckFailureRate(context.Background())

	if strings.Contains(buf.String(), "alert=payment_failure_rate") {
		t.Fatalf("expected no alert at 1.0%% failure rate, log output: %q", buf.String())
	}
}

func TestCheckFailureRate_EmptyWindowIsNoOp(t *testing.T) {
	repo := newStubRepo()
	// Force the window scan to come back empty even after RecordAttempt
	// appends its own row.
	repo.reliabilityListed = []domain.ReliabilityLog{}
	tracker := NewTracker(repo, TrackerConfig{})

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	tracker.RecordAttempt(context.Background(), Attempt{Type: domain.OperationPaymentIntent, Success: true})

	if strings.Contains(buf.String(), "alert=payment_failure_rate") {
		t.Fatalf("expected no alert for an empty window, log output: %q", buf.String())
	}
}
