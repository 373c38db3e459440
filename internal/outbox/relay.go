package outbox

import (
	"context"
	"log/slog"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/db"
	"settlement-service/internal/logcontext"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	defaultPollingIntervalMs   = 500
	defaultFetchSize           = 200
	defaultRetryPublishDelayMs = 10_000
	defaultMaxPublishAttempts  = 3
)

var (
	// relay batch metrics
	relayErrorFetchingCounter = metrics.GetOrCreateCounter(`donation_relay_total{result="fetching_failed"}`)
	relayErrorKafkaCounter    = metrics.GetOrCreateCounter(`donation_relay_total{result="publish_failed"}`)
	relayErrorUpdateCounter   = metrics.GetOrCreateCounter(`donation_relay_total{result="db_update_failed"}`)
	relaySuccessCounter       = metrics.GetOrCreateCounter(`donation_relay_total{result="success"}`)

	relayProcessDurationHistogram = metrics.GetOrCreateHistogram(`donation_relay_duration_milliseconds`)

	// relay per message metrics
	relayMessagesPublishedCounter   = metrics.GetOrCreateCounter(`donation_relay_messages_total{result="published"}`)
	relayMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`donation_relay_messages_total{result="max_attempts_reached"}`)
	relayMessagesRescheduledCounter = metrics.GetOrCreateCounter(`donation_relay_messages_total{result="rescheduled"}`)
)

// MessageWriter is the publishing surface the relay writes through.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay publishes committed donation-settled rows from the outbox table
// to Kafka. Settlement correctness never depends on it; a row the relay
// cannot publish stays parked with its error for inspection.
type Relay struct {
	repo               *db.SettlementRepository
	writer             MessageWriter
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
}

func NewRelay(repo *db.SettlementRepository, writer MessageWriter, cfg config.OutboxRelay, logger *slog.Logger) *Relay {
	pollingIntervalMs := cfg.PollingIntervalMs
	if pollingIntervalMs <= 0 {
		pollingIntervalMs = defaultPollingIntervalMs
	}
	fetchSize := cfg.FetchSize
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	retryDelayMs := cfg.RetryPublishDelayMs
	if retryDelayMs <= 0 {
		retryDelayMs = defaultRetryPublishDelayMs
	}
	maxPublishAttempts := cfg.MaxPublishAttempts
	if maxPublishAttempts <= 0 {
		maxPublishAttempts = defaultMaxPublishAttempts
	}

	return &Relay{
		repo:               repo,
		writer:             writer,
		pollingInterval:    time.Duration(pollingIntervalMs) * time.Millisecond,
		fetchSize:          fetchSize,
		retryDelay:         time.Duration(retryDelayMs) * time.Millisecond,
		maxPublishAttempts: maxPublishAttempts,
		logger:             logger,
	}
}

func (r *Relay) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.process(ctx)
			case <-ctx.Done():
				r.logger.InfoContext(ctx, "Context done, stopping relay")
				return
			}
		}
	}()
}

func (r *Relay) process(ctx context.Context) {
	startTime := time.Now()

	// runId correlates all logs of one polling run
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := r.repo.BeginTx(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		relayErrorFetchingCounter.Inc()
		return
	}

	defer tx.Rollback(ctx)

	messages, err := r.repo.GetUnpublishedOutbox(ctx, tx, r.fetchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error fetching unpublished outbox messages", "error", err)
		relayErrorFetchingCounter.Inc()
		return
	}

	if len(messages) == 0 {
		relaySuccessCounter.Inc()
		return
	}

	r.logger.InfoContext(ctx, "Publishing outbox messages", "count", len(messages))

	writeErr := r.writer.WriteMessages(ctx, toKafkaMessages(messages)...)
	if writeErr != nil {
		r.logger.ErrorContext(ctx, "Error writing messages to Kafka", "error", writeErr)
		relayErrorKafkaCounter.Inc()
	}

	now := time.Now()
	for _, msg := range messages {
		messageCtx := logcontext.AppendCtx(ctx, slog.String("id", msg.ID.String()))

		msg.PublishAttempts++

		if writeErr != nil {
			errMsg := writeErr.Error()
			msg.Error = &errMsg

			if msg.PublishAttempts >= r.maxPublishAttempts {
				r.logger.WarnContext(messageCtx, "Max publish attempts reached, parking message")
				msg.ScheduledAt = nil

				relayMessagesMaxAttemptsCounter.Inc()
			} else {
				scheduledAt := now.Add(time.Duration(msg.PublishAttempts) * r.retryDelay)
				msg.ScheduledAt = &scheduledAt

				relayMessagesRescheduledCounter.Inc()
			}
		} else {
			publishedAt := now
			msg.PublishedAt = &publishedAt
			msg.ScheduledAt = nil
			msg.Error = nil

			relayMessagesPublishedCounter.Inc()
		}

		if err := r.repo.UpdateOutboxMessage(messageCtx, tx, msg); err != nil {
			r.logger.ErrorContext(messageCtx, "Error updating outbox message", "error", err)
			relayErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		relayErrorUpdateCounter.Inc()
	} else {
		relaySuccessCounter.Inc()
	}

	relayProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
}

func toKafkaMessages(entities []*db.OutboxMessageEntity) []kafka.Message {
	var kafkaMessages []kafka.Message
	for _, entity := range entities {
		kafkaMessages = append(kafkaMessages, kafka.Message{
			// campaign ID as key keeps per-campaign ordering
			Key:   []byte(entity.CampaignID),
			Value: []byte(entity.Payload),
		})
	}
	return kafkaMessages
}
