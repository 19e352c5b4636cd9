package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
)

// stubRepo is an in-memory store.Repository for service tests. Fields are
// seeded per test; error fields override the happy-path behavior.
type stubRepo struct {
	users         map[uuid.UUID]*domain.User
	beneficiaries map[uuid.UUID]*domain.Beneficiary
	rate          decimal.Decimal
	rateErr       error

	transfers         map[uuid.UUID]*domain.Transfer
	createTransferErr error
	completeErr       error
	cancelErr         error

	subscriptions    map[uuid.UUID]*domain.Subscription
	subsByStripeID   map[string]*domain.Subscription
	advancedTo       map[uuid.UUID]time.Time
	statusUpdates    map[uuid.UUID]domain.SubscriptionStatus
	createSubErr     error
	updateStatusErr  error
	subscriptionsDue []domain.Subscription

	notifications   []domain.Notification
	notificationErr error

	claimedEvents  map[string]bool
	claimErr       error
	releasedEvents []string

	auditEntries []domain.AuditEntry
	auditErr     error

	reliabilityLogs   []domain.ReliabilityLog
	reliabilityErr    error
	reliabilityListed []domain.ReliabilityLog
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:          make(map[uuid.UUID]*domain.User),
		beneficiaries:  make(map[uuid.UUID]*domain.Beneficiary),
		rate:           decimal.NewFromInt(3200),
		transfers:      make(map[uuid.UUID]*domain.Transfer),
		subscriptions:  make(map[uuid.UUID]*domain.Subscription),
		subsByStripeID: make(map[string]*domain.Subscription),
		advancedTo:     make(map[uuid.UUID]time.Time),
		statusUpdates:  make(map[uuid.UUID]domain.SubscriptionStatus),
		claimedEvents:  make(map[string]bool),
	}
}

func (s *stubRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *stubRepo) FindBeneficiaryByID(ctx context.Context, id, userID uuid.UUID) (*domain.Beneficiary, error) {
	b, ok := s.beneficiaries[id]
	if !ok || b.UserID != userID {
		return nil, store.ErrBeneficiaryNotFound
	}
	return b, nil
}

func (s *stubRepo) GetLatestExchangeRate(ctx context.Context) (*domain.ExchangeRate, error) {
	if s.rateErr != nil {
		return nil, s.rateErr
	}
	return &domain.ExchangeRate{ID: uuid.New(), Rate: s.rate, CreatedAt: time.Now()}, nil
}

func (s *stubRepo) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if s.createTransferErr != nil {
		return s.createTransferErr
	}
	copied := *transfer
	s.transfers[transfer.ID] = &copied
	return nil
}

func (s *stubRepo) FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	if t, ok := s.transfers[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, store.ErrTransferNotFound
}

func (s *stubRepo) CompleteTransferIfPending(ctx context.Context, id, confirmedBy uuid.UUID, confirmedAt time.Time) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	t, ok := s.transfers[id]
	if !ok {
		return store.ErrTransferNotFound
	}
	if t.Status != domain.TransferStatusPending {
		return store.ErrTransferConflict
	}
	t.Status = domain.TransferStatusCompleted
	t.ConfirmedBy = &confirmedBy
	t.ConfirmedAt = &confirmedAt
	return nil
}

func (s *stubRepo) CancelTransferIfPending(ctx context.Context, id uuid.UUID) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	t, ok := s.transfers[id]
	if !ok {
		return store.ErrTransferNotFound
	}
	if t.Status != domain.TransferStatusPending {
		return store.ErrTransferConflict
	}
	t.Status = domain.TransferStatusCancelled
	return nil
}

func (s *stubRepo) MarkTransferAutomated(ctx context.Context, id uuid.UUID, outcome store.AutomationOutcome) error {
	t, ok := s.transfers[id]
	if !ok {
		return store.ErrTransferNotFound
	}
	if t.Status != domain.TransferStatusPending {
		return store.ErrTransferConflict
	}
	t.AutoProcessed = true
	if outcome.Success {
		t.Status = domain.TransferStatusCompleted
		t.MobileMoneyTransactionID = outcome.TransactionID
		t.ConfirmedBy = outcome.ConfirmedBy
		t.ConfirmedAt = outcome.ConfirmedAt
	} else {
		t.Status = domain.TransferStatusFailed
		t.MobileMoneyError = outcome.Error
	}
	return nil
}

func (s *stubRepo) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	if s.createSubErr != nil {
		return s.createSubErr
	}
	copied := *sub
	s.subscriptions[sub.ID] = &copied
	s.subsByStripeID[sub.StripeSubscriptionID] = &copied
	return nil
}

func (s *stubRepo) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if sub, ok := s.subscriptions[id]; ok {
		copied := *sub
		return &copied, nil
	}
	return nil, store.ErrSubscriptionNotFound
}

func (s *stubRepo) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	if sub, ok := s.subsByStripeID[stripeSubscriptionID]; ok {
		copied := *sub
		return &copied, nil
	}
	return nil, store.ErrSubscriptionNotFound
}

func (s *stubRepo) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus) error {
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	s.statusUpdates[id] = status
	if sub, ok := s.subscriptions[id]; ok {
		sub.Status = status
	}
	return nil
}

func (s *stubRepo) AdvanceSubscriptionNextTransferDate(ctx context.Context, id uuid.UUID, next time.Time) error {
	s.advancedTo[id] = next
	return nil
}

func (s *stubRepo) ListSubscriptionsDueWithin(ctx context.Context, within time.Duration) ([]domain.Subscription, error) {
	return s.subscriptionsDue, nil
}

func (s *stubRepo) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if s.notificationErr != nil {
		return s.notificationErr
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *stubRepo) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubRepo) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error {
	return nil
}

func (s *stubRepo) ClaimWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if s.claimedEvents[eventID] {
		return false, nil
	}
	s.claimedEvents[eventID] = true
	return true, nil
}

func (s *stubRepo) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	delete(s.claimedEvents, eventID)
	s.releasedEvents = append(s.releasedEvents, eventID)
	return nil
}

func (s *stubRepo) InsertAuditLog(ctx context.Context, entry *domain.AuditEntry) error {
	if s.auditErr != nil {
		return s.auditErr
	}
	s.auditEntries = append(s.auditEntries, *entry)
	return nil
}

func (s *stubRepo) QueryAuditLogs(ctx context.Context, filter domain.AuditFilter, limit int) ([]domain.AuditEntry, error) {
	return s.auditEntries, nil
}

func (s *stubRepo) ComplianceCounts(ctx context.Context, start, end time.Time) (*domain.ComplianceReport, error) {
	return &domain.ComplianceReport{StartDate: start, EndDate: end}, nil
}

func (s *stubRepo) InsertReliabilityLog(ctx context.Context, entry *domain.ReliabilityLog) error {
	if s.reliabilityErr != nil {
		return s.reliabilityErr
	}
	s.reliabilityLogs = append(s.reliabilityLogs, *entry)
	return nil
}

func (s *stubRepo) ListReliabilityLogsSince(ctx context.Context, since time.Time) ([]domain.ReliabilityLog, error) {
	if s.reliabilityListed != nil {
		return s.reliabilityListed, nil
	}
	return s.reliabilityLogs, nil
}

// notificationTypes returns the types of recorded notifications in order.
func (s *stubRepo) notificationTypes() []string {
	out := make([]string, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n.Type)
	}
	return out
}
