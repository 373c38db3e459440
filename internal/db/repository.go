package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type SettlementRepository struct {
	pool *pgxpool.Pool
}

func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

func (r *SettlementRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InsertEvent appends the received notification to the event ledger.
// Duplicate event IDs are not an error; the return value reports whether
// the event was new.
func (r *SettlementRepository) InsertEvent(ctx context.Context, entity *WebhookEventEntity) (bool, error) {
	query := `INSERT INTO webhook_event (id, event_type, payload, received_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, entity.ID, entity.EventType, entity.Payload, entity.ReceivedAt)
	if err != nil {
		return false, errors.Wrap(err, "inserting webhook event")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SettlementRepository) HasSuccessOutcome(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM event_outcome WHERE event_id = $1 AND status = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, eventID, OutcomeSuccess).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "checking success outcome")
	}
	return exists, nil
}

func (r *SettlementRepository) InsertOutcome(ctx context.Context, entity *EventOutcomeEntity) error {
	query := `INSERT INTO event_outcome (id, event_id, status, error, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, entity.ID, entity.EventID, entity.Status, entity.Error, entity.CreatedAt)
	return errors.Wrap(err, "inserting event outcome")
}

// InsertDonation is a conditional write keyed on (event_id, line_item_ref);
// reports whether the row was inserted. An already-present key means the
// item was committed by an earlier run and must not be counted again.
func (r *SettlementRepository) InsertDonation(ctx context.Context, tx pgx.Tx, entity *DonationEntity) (bool, error) {
	query := `INSERT INTO campaign_donation
	          (id, campaign_id, event_id, line_item_ref, amount, payment_status, payment_method, is_anonymous, donor_id, donor_email, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (event_id, line_item_ref) DO NOTHING`
	tag, err := tx.Exec(ctx, query,
		entity.ID, entity.CampaignID, entity.EventID, entity.LineItemRef, entity.Amount,
		entity.PaymentStatus, entity.PaymentMethod, entity.IsAnonymous, entity.DonorID, entity.DonorEmail, entity.CreatedAt)
	if err != nil {
		return false, errors.Wrap(err, "inserting donation")
	}
	return tag.RowsAffected() > 0, nil
}

// AddToCampaignTotal increments current_amount in a single statement so
// concurrent settlements against the same campaign cannot lose updates.
func (r *SettlementRepository) AddToCampaignTotal(ctx context.Context, tx pgx.Tx, campaignID string, amount int64) (*CampaignEntity, error) {
	query := `UPDATE campaign
	          SET current_amount = current_amount + $1, updated_at = $2
	          WHERE id = $3
	          RETURNING id, title, goal_amount, current_amount, active, created_at, updated_at`

	var entity CampaignEntity
	err := tx.QueryRow(ctx, query, amount, time.Now(), campaignID).Scan(
		&entity.ID, &entity.Title, &entity.GoalAmount, &entity.CurrentAmount,
		&entity.Active, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, errors.Wrap(err, "updating campaign total")
	}
	return &entity, nil
}

func (r *SettlementRepository) CreateCampaign(ctx context.Context, entity *CampaignEntity) error {
	query := `INSERT INTO campaign (id, title, goal_amount, current_amount, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		entity.ID, entity.Title, entity.GoalAmount, entity.CurrentAmount, entity.Active, entity.CreatedAt, entity.UpdatedAt)
	return errors.Wrap(err, "creating campaign")
}

func (r *SettlementRepository) GetCampaignByID(ctx context.Context, id string) (*CampaignEntity, error) {
	query := `SELECT id, title, goal_amount, current_amount, active, created_at, updated_at
	          FROM campaign WHERE id = $1`

	var entity CampaignEntity
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&entity.ID, &entity.Title, &entity.GoalAmount, &entity.CurrentAmount,
		&entity.Active, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, errors.Wrap(err, "selecting campaign")
	}
	return &entity, nil
}

func (r *SettlementRepository) SumCompletedDonations(ctx context.Context, campaignID string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM campaign_donation
	          WHERE campaign_id = $1 AND payment_status = 'completed'`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, campaignID).Scan(&sum); err != nil {
		return 0, errors.Wrap(err, "summing donations")
	}
	return sum, nil
}

func (r *SettlementRepository) InsertOutboxMessage(ctx context.Context, tx pgx.Tx, entity *OutboxMessageEntity) error {
	query := `INSERT INTO donation_outbox
	          (id, donation_id, campaign_id, payload, created_at, scheduled_at, publish_attempts)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, query,
		entity.ID, entity.DonationID, entity.CampaignID, entity.Payload,
		entity.CreatedAt, entity.ScheduledAt, entity.PublishAttempts)
	return errors.Wrap(err, "inserting outbox message")
}

// GetUnpublishedOutbox locks due rows for the caller's transaction;
// SKIP LOCKED keeps concurrent relay instances out of each other's batches.
func (r *SettlementRepository) GetUnpublishedOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxMessageEntity, error) {
	query := `SELECT id, donation_id, campaign_id, payload, created_at, scheduled_at, published_at, publish_attempts, error
	          FROM donation_outbox
	          WHERE published_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= now()
	          ORDER BY created_at
	          LIMIT $1
	          FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "selecting outbox messages")
	}
	defer rows.Close()

	var messages []*OutboxMessageEntity
	for rows.Next() {
		var entity OutboxMessageEntity
		if err := rows.Scan(&entity.ID, &entity.DonationID, &entity.CampaignID, &entity.Payload,
			&entity.CreatedAt, &entity.ScheduledAt, &entity.PublishedAt, &entity.PublishAttempts, &entity.Error); err != nil {
			return nil, errors.Wrap(err, "scanning outbox message")
		}
		messages = append(messages, &entity)
	}
	return messages, rows.Err()
}

func (r *SettlementRepository) UpdateOutboxMessage(ctx context.Context, tx pgx.Tx, entity *OutboxMessageEntity) error {
	query := `UPDATE donation_outbox
	          SET scheduled_at = $1, published_at = $2, publish_attempts = $3, error = $4
	          WHERE id = $5`
	_, err := tx.Exec(ctx, query,
		entity.ScheduledAt, entity.PublishedAt, entity.PublishAttempts, entity.Error, entity.ID)
	return errors.Wrap(err, "updating outbox message")
}
