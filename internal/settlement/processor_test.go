package settlement_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"settlement-service/internal/db"
	"settlement-service/internal/donation"
	"settlement-service/internal/purchase"
	"settlement-service/internal/settlement"
	"settlement-service/internal/webhook"

	"github.com/stretchr/testify/assert"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"
)

const testSecret = "whsec_test_secret"

type fakeLedger struct {
	events   map[string]bool
	outcomes []*db.EventOutcomeEntity
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{events: map[string]bool{}}
}

func (l *fakeLedger) InsertEvent(_ context.Context, entity *db.WebhookEventEntity) (bool, error) {
	if l.events[entity.ID] {
		return false, nil
	}
	l.events[entity.ID] = true
	return true, nil
}

func (l *fakeLedger) HasSuccessOutcome(_ context.Context, eventID string) (bool, error) {
	for _, outcome := range l.outcomes {
		if outcome.EventID == eventID && outcome.Status == db.OutcomeSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) InsertOutcome(_ context.Context, entity *db.EventOutcomeEntity) error {
	l.outcomes = append(l.outcomes, entity)
	return nil
}

func (l *fakeLedger) lastOutcome() *db.EventOutcomeEntity {
	if len(l.outcomes) == 0 {
		return nil
	}
	return l.outcomes[len(l.outcomes)-1]
}

type fakeResolver struct {
	items  []purchase.LineItem
	err    error
	calls  int
	lastID string
}

func (r *fakeResolver) Resolve(_ context.Context, sessionID string) ([]purchase.LineItem, error) {
	r.calls++
	r.lastID = sessionID
	return r.items, r.err
}

type fakeAggregator struct {
	applied []*donation.Donation
	failFor map[string]error
}

func (a *fakeAggregator) Apply(_ context.Context, d *donation.Donation) (*db.CampaignEntity, error) {
	a.applied = append(a.applied, d)
	if err, ok := a.failFor[d.CampaignID]; ok {
		return nil, err
	}
	return &db.CampaignEntity{ID: d.CampaignID, CurrentAmount: d.Amount}, nil
}

func signedEvent(t *testing.T, eventID, eventType string) ([]byte, string) {
	t.Helper()

	payload := []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"data":{"object":{"id":"cs_123","customer":"cus_1","customer_email":"donor@example.com"}}}`,
		eventID, eventType))

	now := time.Now()
	signature := stripewebhook.ComputeSignature(now, payload, testSecret)
	return payload, fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(signature))
}

func newProcessor(ledger *fakeLedger, resolver *fakeResolver, aggregator *fakeAggregator) *settlement.Processor {
	return settlement.NewProcessor(
		webhook.NewVerifier(testSecret), ledger, resolver, aggregator, slog.Default())
}

func TestProcess_CommitsCampaignItemsOnly(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{items: []purchase.LineItem{
		{Reference: "li_a", AmountTotal: 2000, DonationPercentage: 50, CampaignID: "camp_1"},
		{Reference: "li_b", AmountTotal: 1500, DonationPercentage: 50},
	}}
	aggregator := &fakeAggregator{}
	sut := newProcessor(ledger, resolver, aggregator)

	payload, header := signedEvent(t, "evt_1", "checkout.session.completed")
	outcome, err := sut.Process(context.Background(), payload, header)

	assert.NoError(t, err)
	assert.Equal(t, settlement.OutcomeCommitted, outcome)
	assert.Equal(t, "cs_123", resolver.lastID)

	assert.Len(t, aggregator.applied, 1)
	applied := aggregator.applied[0]
	assert.Equal(t, "camp_1", applied.CampaignID)
	assert.Equal(t, int64(1000), applied.Amount)
	assert.Equal(t, "evt_1", applied.EventID)
	assert.Equal(t, "li_a", applied.LineItemRef)
	assert.NotNil(t, applied.DonorEmail)
	assert.Equal(t, "donor@example.com", *applied.DonorEmail)

	last := ledger.lastOutcome()
	assert.NotNil(t, last)
	assert.Equal(t, db.OutcomeSuccess, last.Status)
}

func TestProcess_RedeliveryShortCircuits(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{items: []purchase.LineItem{
		{Reference: "li_a", AmountTotal: 2000, DonationPercentage: 50, CampaignID: "camp_1"},
	}}
	aggregator := &fakeAggregator{}
	sut := newProcessor(ledger, resolver, aggregator)

	payload, header := signedEvent(t, "evt_1", "checkout.session.completed")

	outcome, err := sut.Process(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.Equal(t, settlement.OutcomeCommitted, outcome)

	outcome, err = sut.Process(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.Equal(t, settlement.OutcomeAlreadyProcessed, outcome)

	// the redelivery reached neither the resolver nor the aggregator
	assert.Equal(t, 1, resolver.calls)
	assert.Len(t, aggregator.applied, 1)
}

func TestProcess_PartialFailureAttemptsAllItems(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{items: []purchase.LineItem{
		{Reference: "li_a", AmountTotal: 2000, DonationPercentage: 50, CampaignID: "camp_1"},
		{Reference: "li_b", AmountTotal: 3000, DonationPercentage: 50, CampaignID: "camp_2"},
	}}
	aggregator := &fakeAggregator{failFor: map[string]error{
		"camp_1": fmt.Errorf("write conflict"),
	}}
	sut := newProcessor(ledger, resolver, aggregator)

	payload, header := signedEvent(t, "evt_1", "checkout.session.completed")
	_, err := sut.Process(context.Background(), payload, header)

	assert.Error(t, err)
	assert.Len(t, aggregator.applied, 2)

	last := ledger.lastOutcome()
	assert.NotNil(t, last)
	assert.Equal(t, db.OutcomeFailed, last.Status)

	processed, _ := ledger.HasSuccessOutcome(context.Background(), "evt_1")
	assert.False(t, processed)
}

func TestProcess_InvalidSignatureRejected(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{}
	aggregator := &fakeAggregator{}
	sut := newProcessor(ledger, resolver, aggregator)

	payload, _ := signedEvent(t, "evt_1", "checkout.session.completed")
	_, err := sut.Process(context.Background(), payload, "t=1,v1=deadbeef")

	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
	assert.Equal(t, 0, resolver.calls)
	assert.Empty(t, ledger.events)
	assert.Empty(t, ledger.outcomes)
}

func TestProcess_EventWithoutDataIsRejected(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{}
	aggregator := &fakeAggregator{}
	sut := newProcessor(ledger, resolver, aggregator)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	signature := stripewebhook.ComputeSignature(now, payload, testSecret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(signature))

	_, err := sut.Process(context.Background(), payload, header)

	assert.ErrorIs(t, err, webhook.ErrMalformedEvent)
	assert.Equal(t, 0, resolver.calls)

	last := ledger.lastOutcome()
	assert.NotNil(t, last)
	assert.Equal(t, db.OutcomeFailed, last.Status)
}

func TestProcess_SkipsNonSettlementEvents(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{}
	aggregator := &fakeAggregator{}
	sut := newProcessor(ledger, resolver, aggregator)

	payload, header := signedEvent(t, "evt_1", "payment_intent.succeeded")
	outcome, err := sut.Process(context.Background(), payload, header)

	assert.NoError(t, err)
	assert.Equal(t, settlement.OutcomeCommitted, outcome)
	assert.Equal(t, 0, resolver.calls)

	last := ledger.lastOutcome()
	assert.NotNil(t, last)
	assert.Equal(t, db.OutcomeSuccess, last.Status)
	assert.NotNil(t, last.Error)
	assert.Contains(t, *last.Error, "skipped")
}

func TestProcess_ResolverFailureIsRetryable(t *testing.T) {
	ledger := newFakeLedger()
	resolver := &fakeResolver{err: purchase.ErrPurchaseNotFound}
	aggregator := &fakeAggregator{}
	sut := newProcessor(ledger, resolver, aggregator)

	payload, header := signedEvent(t, "evt_1", "checkout.session.completed")
	_, err := sut.Process(context.Background(), payload, header)

	assert.ErrorIs(t, err, purchase.ErrPurchaseNotFound)
	assert.Empty(t, aggregator.applied)

	last := ledger.lastOutcome()
	assert.NotNil(t, last)
	assert.Equal(t, db.OutcomeFailed, last.Status)

	// the event stays unmarked, a later redelivery runs the pipeline again
	outcome, err := sut.Process(context.Background(), payload, header)
	assert.ErrorIs(t, err, purchase.ErrPurchaseNotFound)
	assert.NotEqual(t, settlement.OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 2, resolver.calls)
}
