package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"settlement-service/internal/db"
	"settlement-service/internal/donation"
	"settlement-service/internal/logcontext"
	"settlement-service/internal/purchase"
	"settlement-service/internal/webhook"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v74"
)

// SettlementEventType is the only event kind that drives settlement;
// every other verified kind is acknowledged and skipped.
const SettlementEventType = "checkout.session.completed"

type Outcome string

const (
	OutcomeCommitted        Outcome = "committed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

type Ledger interface {
	InsertEvent(ctx context.Context, entity *db.WebhookEventEntity) (bool, error)
	HasSuccessOutcome(ctx context.Context, eventID string) (bool, error)
	InsertOutcome(ctx context.Context, entity *db.EventOutcomeEntity) error
}

type Resolver interface {
	Resolve(ctx context.Context, sessionID string) ([]purchase.LineItem, error)
}

type Aggregator interface {
	Apply(ctx context.Context, d *donation.Donation) (*db.CampaignEntity, error)
}

// Processor drives one verified notification through resolution,
// allocation and aggregation. A success outcome row is the commit
// marker and the last durable effect; anything short of it leaves the
// event safe to re-run.
type Processor struct {
	verifier   *webhook.Verifier
	ledger     Ledger
	resolver   Resolver
	aggregator Aggregator
	logger     *slog.Logger
}

func NewProcessor(verifier *webhook.Verifier, ledger Ledger, resolver Resolver, aggregator Aggregator, logger *slog.Logger) *Processor {
	return &Processor{
		verifier:   verifier,
		ledger:     ledger,
		resolver:   resolver,
		aggregator: aggregator,
		logger:     logger,
	}
}

func (p *Processor) Process(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	event, err := p.verifier.Verify(payload, sigHeader)
	if err != nil {
		p.logger.WarnContext(ctx, "Rejected webhook notification", "error", err)
		return "", err
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("eventId", event.ID))

	isNew, err := p.ledger.InsertEvent(ctx, &db.WebhookEventEntity{
		ID:         event.ID,
		EventType:  string(event.Type),
		Payload:    string(payload),
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return "", err
	}

	if !isNew {
		processed, err := p.ledger.HasSuccessOutcome(ctx, event.ID)
		if err != nil {
			return "", err
		}
		if processed {
			p.logger.InfoContext(ctx, "Event already processed, short-circuiting")
			return OutcomeAlreadyProcessed, nil
		}
	}

	if string(event.Type) != SettlementEventType {
		p.logger.InfoContext(ctx, "Skipping non-settlement event", "type", event.Type)
		detail := "skipped: " + string(event.Type)
		if err := p.markOutcome(ctx, event.ID, db.OutcomeSuccess, &detail); err != nil {
			return "", err
		}
		return OutcomeCommitted, nil
	}

	if event.Data == nil {
		p.logger.ErrorContext(ctx, "Event carries no data object")
		p.recordFailure(ctx, event.ID, webhook.ErrMalformedEvent)
		return "", webhook.ErrMalformedEvent
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		p.logger.ErrorContext(ctx, "Event data does not parse as a checkout session", "error", err)
		p.recordFailure(ctx, event.ID, err)
		return "", webhook.ErrMalformedEvent
	}

	items, err := p.resolver.Resolve(ctx, session.ID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error resolving line items", "error", err)
		p.recordFailure(ctx, event.ID, err)
		return "", err
	}

	donorID, donorEmail := donorInfo(&session)

	// attempt every item; one failed aggregation must not starve the rest
	var failures []error
	for _, item := range items {
		d := donation.Allocate(item)
		if d == nil {
			continue
		}
		d.EventID = event.ID
		d.DonorID = donorID
		d.DonorEmail = donorEmail

		if _, err := p.aggregator.Apply(ctx, d); err != nil {
			p.logger.ErrorContext(ctx, "Error applying donation",
				"campaignId", d.CampaignID, "lineItemRef", d.LineItemRef, "error", err)
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		err := errors.Join(failures...)
		p.recordFailure(ctx, event.ID, err)
		return "", err
	}

	if err := p.markOutcome(ctx, event.ID, db.OutcomeSuccess, nil); err != nil {
		return "", err
	}

	p.logger.InfoContext(ctx, "Settlement committed", "items", len(items))
	return OutcomeCommitted, nil
}

func (p *Processor) markOutcome(ctx context.Context, eventID, status string, detail *string) error {
	return p.ledger.InsertOutcome(ctx, &db.EventOutcomeEntity{
		ID:        uuid.New(),
		EventID:   eventID,
		Status:    status,
		Error:     detail,
		CreatedAt: time.Now(),
	})
}

func (p *Processor) recordFailure(ctx context.Context, eventID string, cause error) {
	detail := cause.Error()
	if err := p.markOutcome(ctx, eventID, db.OutcomeFailed, &detail); err != nil {
		// the failure outcome is audit only; the event stays unmarked and retryable
		p.logger.ErrorContext(ctx, "Error recording failure outcome", "error", err)
	}
}

func donorInfo(session *stripe.CheckoutSession) (*string, *string) {
	var donorID, donorEmail *string
	if session.Customer != nil && session.Customer.ID != "" {
		id := session.Customer.ID
		donorID = &id
	}
	if session.CustomerEmail != "" {
		email := session.CustomerEmail
		donorEmail = &email
	}
	return donorID, donorEmail
}
