package server_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"settlement-service/internal/purchase"
	"settlement-service/internal/server"
	"settlement-service/internal/settlement"
	"settlement-service/internal/webhook"

	"github.com/stretchr/testify/assert"
)

type fakeProcessor struct {
	outcome settlement.Outcome
	err     error
	gotSig  string
	gotBody []byte
}

func (p *fakeProcessor) Process(_ context.Context, payload []byte, sigHeader string) (settlement.Outcome, error) {
	p.gotBody = payload
	p.gotSig = sigHeader
	return p.outcome, p.err
}

func post(t *testing.T, processor *fakeProcessor) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()

	server.WebhookHandler(processor, slog.Default()).ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_Committed(t *testing.T) {
	processor := &fakeProcessor{outcome: settlement.OutcomeCommitted}

	rec := post(t, processor)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "t=1,v1=abc", processor.gotSig)
	assert.Equal(t, `{"id":"evt_1"}`, string(processor.gotBody))
}

func TestWebhookHandler_AlreadyProcessed(t *testing.T) {
	processor := &fakeProcessor{outcome: settlement.OutcomeAlreadyProcessed}

	rec := post(t, processor)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}

func TestWebhookHandler_Rejected(t *testing.T) {
	for _, err := range []error{webhook.ErrInvalidSignature, webhook.ErrMalformedEvent} {
		processor := &fakeProcessor{err: err}

		rec := post(t, processor)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "error")
	}
}

func TestWebhookHandler_TransientFailure(t *testing.T) {
	processor := &fakeProcessor{err: fmt.Errorf("storage write conflict")}

	rec := post(t, processor)

	// 5xx so the provider redelivers
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookHandler_PurchaseNotFound(t *testing.T) {
	processor := &fakeProcessor{err: purchase.ErrPurchaseNotFound}

	rec := post(t, processor)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPreflightHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/webhook/stripe", nil)
	rec := httptest.NewRecorder()

	server.PreflightHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Stripe-Signature")
}
