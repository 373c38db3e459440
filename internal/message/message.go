package message

import (
	"time"

	"github.com/google/uuid"
)

type DonationSettled struct {
	DonationID uuid.UUID `json:"donationId"`
	CampaignID string    `json:"campaignId"`
	EventID    string    `json:"eventId"`
	Amount     int64     `json:"amount"`
	SettledAt  time.Time `json:"settledAt"`
}
