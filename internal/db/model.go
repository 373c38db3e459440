package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

type WebhookEventEntity struct {
	ID         string
	EventType  string
	Payload    string
	ReceivedAt time.Time
}

type EventOutcomeEntity struct {
	ID        uuid.UUID
	EventID   string
	Status    string
	Error     *string
	CreatedAt time.Time
}

type CampaignEntity struct {
	ID            string
	Title         string
	GoalAmount    *int64
	CurrentAmount int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Amounts are integer minor currency units throughout.
type DonationEntity struct {
	ID            uuid.UUID
	CampaignID    string
	EventID       string
	LineItemRef   string
	Amount        int64
	PaymentStatus string
	PaymentMethod string
	IsAnonymous   bool
	DonorID       *string
	DonorEmail    *string
	CreatedAt     time.Time
}

type OutboxMessageEntity struct {
	ID              uuid.UUID
	DonationID      uuid.UUID
	CampaignID      string
	Payload         string
	CreatedAt       time.Time
	ScheduledAt     *time.Time
	PublishedAt     *time.Time
	PublishAttempts int
	Error           *string
}
