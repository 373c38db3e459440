package checkout

import (
	"context"
	"log/slog"

	"settlement-service/internal/config"

	"github.com/pkg/errors"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

var ErrInvalidRequest = errors.New("invalid checkout request")

// ItemMetadata mirrors the allocation metadata carried by the Stripe
// Price the item references. It is validated here so a bad percentage
// is rejected before any session exists; settlement reads the values
// back off the price, not this request.
type ItemMetadata struct {
	ProductID          string `json:"productId"`
	CampaignID         string `json:"campaignId,omitempty"`
	DonationPercentage *int   `json:"donationPercentage,omitempty"`
}

type ItemRequest struct {
	PriceID  string       `json:"priceId"`
	Quantity int64        `json:"quantity"`
	Metadata ItemMetadata `json:"metadata"`
}

type SessionRequest struct {
	Items      []ItemRequest `json:"lineItems"`
	Email      string        `json:"email,omitempty"`
	SuccessURL string        `json:"successUrl,omitempty"`
	CancelURL  string        `json:"cancelUrl,omitempty"`
}

type SessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Service struct {
	client     *client.API
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

func NewService(sc *client.API, cfg config.Checkout, logger *slog.Logger) *Service {
	return &Service{
		client:     sc,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}
}

func (s *Service) CreateSession(ctx context.Context, req SessionRequest) (*SessionResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx

	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(item.PriceID),
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	session, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "creating checkout session")
	}

	s.logger.InfoContext(ctx, "Created checkout session", "sessionId", session.ID)

	return &SessionResponse{ID: session.ID, URL: session.URL}, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := s.client.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, errors.Wrap(err, "retrieving checkout session")
	}
	return session, nil
}

func validate(req SessionRequest) error {
	if len(req.Items) == 0 {
		return errors.Wrap(ErrInvalidRequest, "no line items")
	}
	for _, item := range req.Items {
		if item.PriceID == "" {
			return errors.Wrap(ErrInvalidRequest, "missing priceId")
		}
		if item.Quantity < 1 {
			return errors.Wrap(ErrInvalidRequest, "quantity must be positive")
		}
		if pct := item.Metadata.DonationPercentage; pct != nil && (*pct < 0 || *pct > 100) {
			return errors.Wrap(ErrInvalidRequest, "donationPercentage must be between 0 and 100")
		}
	}
	return nil
}
