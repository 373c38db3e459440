package purchase

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/pkg/errors"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

// StripeResolver fetches a checkout session's line items from the Stripe
// API and binds each item's price metadata at this boundary, so nothing
// downstream sees an untyped map.
type StripeResolver struct {
	client *client.API
	logger *slog.Logger
}

func NewStripeResolver(sc *client.API, logger *slog.Logger) *StripeResolver {
	return &StripeResolver{client: sc, logger: logger}
}

func (r *StripeResolver) Resolve(ctx context.Context, sessionID string) ([]LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx

	iter := r.client.CheckoutSessions.ListLineItems(params)

	items := []LineItem{}
	for iter.Next() {
		items = append(items, r.toLineItem(ctx, iter.LineItem()))
	}
	if err := iter.Err(); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, ErrPurchaseNotFound
		}
		return nil, errors.Wrap(err, "listing session line items")
	}
	return items, nil
}

func (r *StripeResolver) toLineItem(ctx context.Context, li *stripe.LineItem) LineItem {
	item := LineItem{
		Reference:          li.ID,
		AmountTotal:        li.AmountTotal,
		Quantity:           li.Quantity,
		DonationPercentage: DefaultDonationPercentage,
	}

	if li.Price == nil {
		return item
	}

	metadata := li.Price.Metadata
	item.ProductID = metadata["productId"]
	item.CampaignID = metadata["campaignId"]

	if raw, ok := metadata["donationPercentage"]; ok {
		pct, err := strconv.Atoi(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "Unparsable donationPercentage, using default",
				"lineItem", li.ID, "value", raw)
			return item
		}
		item.DonationPercentage = clampPercentage(ctx, r.logger, li.ID, pct)
	}

	return item
}

func clampPercentage(ctx context.Context, logger *slog.Logger, ref string, pct int) int {
	if pct < 0 || pct > 100 {
		logger.WarnContext(ctx, "donationPercentage out of range, clamping", "lineItem", ref, "value", pct)
	}
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
