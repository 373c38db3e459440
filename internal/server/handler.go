package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"settlement-service/internal/logcontext"
	"settlement-service/internal/purchase"
	"settlement-service/internal/settlement"
	"settlement-service/internal/webhook"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

var (
	webhookRejectedCounter  = metrics.GetOrCreateCounter(`settlement_requests_total{result="rejected"}`)
	webhookFailedCounter    = metrics.GetOrCreateCounter(`settlement_requests_total{result="failed"}`)
	webhookCommittedCounter = metrics.GetOrCreateCounter(`settlement_requests_total{result="committed"}`)
	webhookDuplicateCounter = metrics.GetOrCreateCounter(`settlement_requests_total{result="already_processed"}`)

	webhookDurationHistogram = metrics.GetOrCreateHistogram(`settlement_request_duration_milliseconds`)
)

type SettlementProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) (settlement.Outcome, error)
}

// WebhookHandler answers the provider's redelivery contract: 2xx for
// committed or already-processed events, 4xx for rejected ones the
// provider must not retry, 5xx for transient failures it should.
func WebhookHandler(processor SettlementProcessor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := logcontext.AppendCtx(r.Context(), slog.String("requestId", uuid.New().String()))

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.ErrorContext(ctx, "Error reading request body", "error", err)
			webhookFailedCounter.Inc()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read body"})
			return
		}

		outcome, err := processor.Process(ctx, body, r.Header.Get("Stripe-Signature"))
		webhookDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))

		if err != nil {
			if errors.Is(err, webhook.ErrInvalidSignature) || errors.Is(err, webhook.ErrMalformedEvent) {
				webhookRejectedCounter.Inc()
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}

			status := http.StatusInternalServerError
			if errors.Is(err, purchase.ErrPurchaseNotFound) {
				status = http.StatusBadGateway
			}
			webhookFailedCounter.Inc()
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		if outcome == settlement.OutcomeAlreadyProcessed {
			webhookDuplicateCounter.Inc()
		} else {
			webhookCommittedCounter.Inc()
		}
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// PreflightHandler answers CORS preflight with permissive headers and no
// body.
func PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Stripe-Signature")
		h.Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
