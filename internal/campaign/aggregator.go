package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"settlement-service/internal/db"
	"settlement-service/internal/donation"
	"settlement-service/internal/message"

	"github.com/google/uuid"
)

// AggregationError marks a transient aggregate-write failure; the caller
// reports it as retryable.
type AggregationError struct {
	CampaignID string
	Err        error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregating donation for campaign %s: %v", e.CampaignID, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// Aggregator is the only writer of campaign.current_amount. One
// transaction covers the donation row, the total increment and the
// outbox row, so the aggregate can never drift from its donation ledger.
type Aggregator struct {
	repo   *db.SettlementRepository
	logger *slog.Logger
}

func NewAggregator(repo *db.SettlementRepository, logger *slog.Logger) *Aggregator {
	return &Aggregator{repo: repo, logger: logger}
}

func (a *Aggregator) Apply(ctx context.Context, d *donation.Donation) (*db.CampaignEntity, error) {
	tx, err := a.repo.BeginTx(ctx)
	if err != nil {
		return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	entity := &db.DonationEntity{
		ID:            uuid.New(),
		CampaignID:    d.CampaignID,
		EventID:       d.EventID,
		LineItemRef:   d.LineItemRef,
		Amount:        d.Amount,
		PaymentStatus: d.PaymentStatus,
		PaymentMethod: d.PaymentMethod,
		IsAnonymous:   d.IsAnonymous,
		DonorID:       d.DonorID,
		DonorEmail:    d.DonorEmail,
		CreatedAt:     now,
	}

	inserted, err := a.repo.InsertDonation(ctx, tx, entity)
	if err != nil {
		return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
	}

	if !inserted {
		// committed by an earlier run of the same event; must not count twice
		a.logger.InfoContext(ctx, "Donation already recorded, skipping increment",
			"campaignId", d.CampaignID, "lineItemRef", d.LineItemRef)

		updated, err := a.repo.GetCampaignByID(ctx, d.CampaignID)
		if err != nil {
			return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
		}
		return updated, nil
	}

	updated, err := a.repo.AddToCampaignTotal(ctx, tx, d.CampaignID, d.Amount)
	if err != nil {
		return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
	}

	settled := message.DonationSettled{
		DonationID: entity.ID,
		CampaignID: entity.CampaignID,
		EventID:    entity.EventID,
		Amount:     entity.Amount,
		SettledAt:  now,
	}
	payloadBytes, err := json.Marshal(settled)
	if err != nil {
		return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
	}

	outboxMessage := &db.OutboxMessageEntity{
		ID:          uuid.New(),
		DonationID:  entity.ID,
		CampaignID:  entity.CampaignID,
		Payload:     string(payloadBytes),
		CreatedAt:   now,
		ScheduledAt: &now,
	}
	if err := a.repo.InsertOutboxMessage(ctx, tx, outboxMessage); err != nil {
		return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &AggregationError{CampaignID: d.CampaignID, Err: err}
	}

	a.logger.InfoContext(ctx, "Applied donation",
		"campaignId", updated.ID, "amount", d.Amount, "currentAmount", updated.CurrentAmount)

	return updated, nil
}
