package billing

import (
	"encoding/json"
	"strings"
	"time"
)

// Provider event types the reconciler acts on.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

const checkoutModeSubscription = "subscription"

// Event is a verified provider event. The set of implementations is closed.
type Event interface {
	ID() string
	Type() string
	isEvent()
}

// CheckoutCompleted is emitted when a hosted checkout finishes.
type CheckoutCompleted struct {
	EventID        string
	SessionID      string
	OrganizationID string
	CustomerID     string
	SubscriptionID string
	Mode           string
}

// SubscriptionUpdated carries the latest provider state of a subscription.
type SubscriptionUpdated struct {
	EventID        string
	SubscriptionID string
	CustomerID     string
	Status         string
	PriceID        string
	PeriodEnd      *time.Time
}

// SubscriptionDeleted is emitted when a subscription ends for good.
type SubscriptionDeleted struct {
	EventID        string
	SubscriptionID string
	CustomerID     string
}

// UnhandledEvent is any verified event outside the recognized set.
type UnhandledEvent struct {
	EventID   string
	EventType string
}

func (e CheckoutCompleted) ID() string   { return e.EventID }
func (e CheckoutCompleted) Type() string { return EventCheckoutCompleted }
func (CheckoutCompleted) isEvent()       {}

func (e SubscriptionUpdated) ID() string   { return e.EventID }
func (e SubscriptionUpdated) Type() string { return EventSubscriptionUpdated }
func (SubscriptionUpdated) isEvent()       {}

func (e SubscriptionDeleted) ID() string   { return e.EventID }
func (e SubscriptionDeleted) Type() string { return EventSubscriptionDeleted }
func (SubscriptionDeleted) isEvent()       {}

func (e UnhandledEvent) ID() string   { return e.EventID }
func (e UnhandledEvent) Type() string { return e.EventType }
func (UnhandledEvent) isEvent()       {}

// checkoutSessionObject is the part of a checkout.session payload we read.
type checkoutSessionObject struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          json.RawMessage   `json:"customer"`
	Subscription      json.RawMessage   `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

func (s checkoutSessionObject) organizationID() string {
	if org := strings.TrimSpace(s.Metadata[MetadataOrganizationID]); org != "" {
		return org
	}
	return strings.TrimSpace(s.ClientReferenceID)
}

// subscriptionObject is the part of a subscription payload we read, both from
// webhook events and from direct API reads.
type subscriptionObject struct {
	ID               string          `json:"id"`
	Customer         json.RawMessage `json:"customer"`
	Status           string          `json:"status"`
	CurrentPeriodEnd int64           `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscriptionObject) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// periodEnd prefers the top-level field and falls back to the first item,
// where newer API versions report it.
func (s subscriptionObject) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	if end == 0 && len(s.Items.Data) > 0 {
		end = s.Items.Data[0].CurrentPeriodEnd
	}
	return epochTime(end)
}

func (s subscriptionObject) toProvider() *ProviderSubscription {
	return &ProviderSubscription{
		ID:         s.ID,
		CustomerID: expandableID(s.Customer),
		Status:     s.Status,
		PriceID:    s.priceID(),
		PeriodEnd:  s.periodEnd(),
	}
}

// expandableID reads a field that is either an id string or an expanded
// object carrying an id.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func epochTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
