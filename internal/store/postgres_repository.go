/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for users, beneficiaries, exchange rates, transfers, subscriptions,
 * notifications and webhook event dedup. Compliance-related queries (audit and
 * reliability logs) live in compliance_repository.go.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/volapay/remit-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, full_name, role, stripe_customer_id FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &user.StripeCustomerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindBeneficiaryByID retrieves a beneficiary, scoped to its owner. A row owned
// by a different user is indistinguishable from a missing row on purpose.
func (r *PostgresRepository) FindBeneficiaryByID(ctx context.Context, id, userID uuid.UUID) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	query := `
		SELECT id, user_id, name, phone_number, active, created_at
		FROM beneficiaries
		WHERE id = $1 AND user_id = $2
	`
	err := r.db.QueryRow(ctx, query, id, userID).Scan(&b.ID, &b.UserID, &b.Name, &b.PhoneNumber, &b.Active, &b.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBeneficiaryNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetLatestExchangeRate returns the most recently created CAD→MGA rate.
func (r *PostgresRepository) GetLatestExchangeRate(ctx context.Context) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	var rateText string
	query := `SELECT id, rate::text, created_at FROM exchange_rates ORDER BY created_at DESC LIMIT 1`
	err := r.db.QueryRow(ctx, query).Scan(&rate.ID, &rateText, &rate.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoExchangeRate
		}
		return nil, err
	}
	parsed, err := decimal.NewFromString(rateText)
	if err != nil {
		return nil, fmt.Errorf("parse exchange rate %q: %w", rateText, err)
	}
	rate.Rate = parsed
	return &rate, nil
}

const transferColumns = `
	id, user_id, beneficiary_id, subscription_id,
	amount_cad_cents, amount_mga, exchange_rate::text,
	fee_cad_cents, total_cad_cents, type, status, auto_processed,
	mobile_money_transaction_id, mobile_money_error,
	confirmed_at, confirmed_by, created_at, updated_at
`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	var rateText string
	err := row.Scan(
		&t.ID, &t.UserID, &t.BeneficiaryID, &t.SubscriptionID,
		&t.AmountCADCents, &t.AmountMGA, &rateText,
		&t.FeeCADCents, &t.TotalCADCents, &t.Type, &t.Status, &t.AutoProcessed,
		&t.MobileMoneyTransactionID, &t.MobileMoneyError,
		&t.ConfirmedAt, &t.ConfirmedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rate, err := decimal.NewFromString(rateText)
	if err != nil {
		return nil, fmt.Errorf("parse snapshotted exchange rate %q: %w", rateText, err)
	}
	t.ExchangeRate = rate
	return &t, nil
}

// CreateTransfer inserts a new transfer row and fills in the database-assigned
// timestamps.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		INSERT INTO transfers (
			id, user_id, beneficiary_id, subscription_id,
			amount_cad_cents, amount_mga, exchange_rate,
			fee_cad_cents, total_cad_cents, type, status, auto_processed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		transfer.ID, transfer.UserID, transfer.BeneficiaryID, transfer.SubscriptionID,
		transfer.AmountCADCents, transfer.AmountMGA, transfer.ExchangeRate.String(),
		transfer.FeeCADCents, transfer.TotalCADCents, transfer.Type, transfer.Status, transfer.AutoProcessed,
	).Scan(&transfer.CreatedAt, &transfer.UpdatedAt)
}

// FindTransferByID retrieves one transfer.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// CompleteTransferIfPending moves a transfer PENDING→COMPLETED. The WHERE
// clause guards the state machine: if a concurrent confirmation (or a
// cancellation) won the race, zero rows match and ErrTransferConflict is
// returned so exactly one confirmation succeeds.
func (r *PostgresRepository) CompleteTransferIfPending(ctx context.Context, id, confirmedBy uuid.UUID, confirmedAt time.Time) error {
	query := `
		UPDATE transfers
		SET status = $1, confirmed_at = $2, confirmed_by = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query,
		domain.TransferStatusCompleted, confirmedAt, confirmedBy,
		id, domain.TransferStatusPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transferConflictOrMissing(ctx, id)
	}
	return nil
}

// CancelTransferIfPending moves a transfer PENDING→CANCELLED.
func (r *PostgresRepository) CancelTransferIfPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transfers
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, domain.TransferStatusCancelled, id, domain.TransferStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transferConflictOrMissing(ctx, id)
	}
	return nil
}

// MarkTransferAutomated persists the outcome of a mobile-money payout attempt
// in one conditional update. Success lands on COMPLETED, failure on FAILED;
// both are terminal and both set auto_processed.
func (r *PostgresRepository) MarkTransferAutomated(ctx context.Context, id uuid.UUID, outcome AutomationOutcome) error {
	status := domain.TransferStatusFailed
	if outcome.Success {
		status = domain.TransferStatusCompleted
	}
	query := `
		UPDATE transfers
		SET status = $1,
			auto_processed = TRUE,
			mobile_money_transaction_id = $2,
			mobile_money_error = $3,
			confirmed_at = $4,
			confirmed_by = $5,
			updated_at = NOW()
		WHERE id = $6 AND status = $7
	`
	tag, err := r.db.Exec(ctx, query,
		status, outcome.TransactionID, outcome.Error, outcome.ConfirmedAt, outcome.ConfirmedBy,
		id, domain.TransferStatusPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transferConflictOrMissing(ctx, id)
	}
	return nil
}

// transferConflictOrMissing distinguishes a lost race from a nonexistent row
// after a conditional update matched nothing.
func (r *PostgresRepository) transferConflictOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrTransferNotFound
	}
	return ErrTransferConflict
}

// CreateSubscription inserts a new subscription row.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, beneficiary_id, amount_cad_cents, frequency,
			next_transfer_date, status, stripe_subscription_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		sub.ID, sub.UserID, sub.BeneficiaryID, sub.AmountCADCents, sub.Frequency,
		sub.NextTransferDate, sub.Status, sub.StripeSubscriptionID,
	).Scan(&sub.CreatedAt)
}

const subscriptionColumns = `
	id, user_id, beneficiary_id, amount_cad_cents, frequency,
	next_transfer_date, status, stripe_subscription_id, created_at
`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.BeneficiaryID, &s.AmountCADCents, &s.Frequency,
		&s.NextTransferDate, &s.Status, &s.StripeSubscriptionID, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSubscriptionByID retrieves one subscription.
func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s, nil
}

// FindSubscriptionByStripeID resolves a subscription from the external
// processor reference carried in webhook payloads.
func (r *PostgresRepository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, stripeSubscriptionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s, nil
}

// UpdateSubscriptionStatus writes the subscription status. CANCELLED is a soft
// delete: the row remains.
func (r *PostgresRepository) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// AdvanceSubscriptionNextTransferDate moves the next billing anchor forward.
func (r *PostgresRepository) AdvanceSubscriptionNextTransferDate(ctx context.Context, id uuid.UUID, next time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET next_transfer_date = $1 WHERE id = $2`, next, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptionsDueWithin returns active subscriptions whose next transfer
// date falls inside the window, for the reminder job.
func (r *PostgresRepository) ListSubscriptionsDueWithin(ctx context.Context, within time.Duration) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1 AND next_transfer_date BETWEEN NOW() AND NOW() + $2::interval
		ORDER BY next_transfer_date ASC
	`
	rows, err := r.db.Query(ctx, query, domain.SubscriptionStatusActive, fmt.Sprintf("%d seconds", int(within.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// CreateNotification inserts a user-visible notification record.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Message).Scan(&n.CreatedAt)
}

// ListNotifications returns a user's notifications, newest first.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT id, user_id, type, title, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkNotificationRead flags a notification as read, scoped to its owner.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// ClaimWebhookEvent records a processor event id if it has not been seen
// before. The unique constraint on event_id makes replays insert zero rows,
// which callers treat as "already processed".
func (r *PostgresRepository) ClaimWebhookEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseWebhookEvent drops a claim taken by ClaimWebhookEvent. Used when
// processing aborts before any state was written, so the processor's own
// redelivery can retry the cycle.
func (r *PostgresRepository) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	return err
}
