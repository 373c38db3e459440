package webhook

import (
	"encoding/json"

	"github.com/pkg/errors"
	stripe "github.com/stripe/stripe-go/v74"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"
)

var (
	// ErrInvalidSignature means the wrong secret or a tampered payload;
	// the caller must not retry.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent means the payload verified but does not parse as
	// a provider event; fatal, not retried.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Verifier authenticates inbound notifications against the shared
// webhook secret. Verification precedes any parsing that feeds business
// logic; the signature compare inside ValidatePayload is constant-time.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(payload []byte, sigHeader string) (*stripe.Event, error) {
	if sigHeader == "" {
		return nil, ErrInvalidSignature
	}

	if err := stripewebhook.ValidatePayload(payload, sigHeader, v.secret); err != nil {
		return nil, ErrInvalidSignature
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrMalformedEvent
	}
	return &event, nil
}
