package purchase

// DefaultDonationPercentage applies when a line item's price metadata
// carries no donationPercentage value.
const DefaultDonationPercentage = 50

// LineItem is one priced component of a completed purchase, with the
// allocation metadata already bound into typed fields. Amounts are
// integer minor currency units.
type LineItem struct {
	Reference          string
	ProductID          string
	AmountTotal        int64
	Quantity           int64
	CampaignID         string // empty when the item is not campaign-linked
	DonationPercentage int
}
