package donation

import (
	"settlement-service/internal/purchase"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"

	MethodStripe = "stripe"
)

// Donation is a monetary contribution attributed to a campaign, in
// integer minor currency units.
type Donation struct {
	CampaignID    string
	EventID       string
	LineItemRef   string
	Amount        int64
	PaymentStatus string
	PaymentMethod string
	IsAnonymous   bool
	DonorID       *string
	DonorEmail    *string
}

// Allocate computes the donation for one line item:
// floor(total * percentage / 100) in integer arithmetic. Items without a
// campaign reference or with a zero computed amount yield no donation.
func Allocate(item purchase.LineItem) *Donation {
	if item.CampaignID == "" {
		return nil
	}

	amount := item.AmountTotal * int64(item.DonationPercentage) / 100
	if amount <= 0 {
		return nil
	}

	return &Donation{
		CampaignID:    item.CampaignID,
		LineItemRef:   item.Reference,
		Amount:        amount,
		PaymentStatus: StatusCompleted,
		PaymentMethod: MethodStripe,
	}
}
