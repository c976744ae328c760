package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrMissingSecret    = errors.New("webhook signing secret not configured")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Verifier authenticates raw webhook deliveries with the shared signing
// secret and turns them into typed events.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret)}
}

// Verify checks the signature over the untouched payload. Nothing in the
// payload may be trusted unless it returns a nil error.
func (v *Verifier) Verify(payload []byte, signature string) (Event, error) {
	if v.secret == "" {
		return nil, ErrMissingSecret
	}
	if strings.TrimSpace(signature) == "" {
		return nil, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return decodeEvent(&event)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

func decodeEvent(event *stripe.Event) (Event, error) {
	eventType := string(event.Type)
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, event.ID)
	}

	switch eventType {
	case EventCheckoutCompleted:
		var session checkoutSessionObject
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout.session: %v", ErrMalformedEvent, err)
		}
		return CheckoutCompleted{
			EventID:        event.ID,
			SessionID:      session.ID,
			OrganizationID: session.organizationID(),
			CustomerID:     expandableID(session.Customer),
			SubscriptionID: expandableID(session.Subscription),
			Mode:           session.Mode,
		}, nil

	case EventSubscriptionUpdated:
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrMalformedEvent, err)
		}
		return SubscriptionUpdated{
			EventID:        event.ID,
			SubscriptionID: sub.ID,
			CustomerID:     expandableID(sub.Customer),
			Status:         sub.Status,
			PriceID:        sub.priceID(),
			PeriodEnd:      sub.periodEnd(),
		}, nil

	case EventSubscriptionDeleted:
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrMalformedEvent, err)
		}
		return SubscriptionDeleted{
			EventID:        event.ID,
			SubscriptionID: sub.ID,
			CustomerID:     expandableID(sub.Customer),
		}, nil

	default:
		return UnhandledEvent{EventID: event.ID, EventType: eventType}, nil
	}
}
