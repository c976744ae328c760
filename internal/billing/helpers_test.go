package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/suteetoe/billing-service/internal/model"
	"github.com/suteetoe/billing-service/internal/store"
)

const (
	testSecret       = "whsec_test_secret"
	starterPriceID   = "price_1ST6WUH9gIP9tzTRDrjI7fPf"
	proPriceID       = "price_pro"
	testSubscription = "sub_abc"
)

type fixture struct {
	store      *store.MemoryStore
	provider   *MockProvider
	plans      *PlanDirectory
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemoryStore()
	require.NoError(t, s.UpsertPlan(ctx, &model.Plan{ID: "starter", Name: "Starter", Price: 99.9, StripePriceID: starterPriceID}))
	require.NoError(t, s.UpsertPlan(ctx, &model.Plan{ID: "pro", Name: "Pro", Price: 299.9, StripePriceID: proPriceID}))
	s.PutOrganization(model.Organization{ID: "org1", Name: "Acme", OwnerID: "user1"})
	org := "org1"
	s.PutUser(model.User{ID: "user1", Email: "owner@acme.test", OrganizationID: &org})

	p := NewMockProvider()
	plans := NewPlanDirectory(s, 16, time.Minute)
	return &fixture{
		store:      s,
		provider:   p,
		plans:      plans,
		reconciler: NewReconciler(s, plans, p, time.Second),
	}
}

func periodEnd() time.Time {
	return time.Date(2026, 11, 16, 0, 0, 0, 0, time.UTC)
}

// signedEvent builds a provider event envelope around object and signs it.
func signedEvent(t *testing.T, id, eventType string, object interface{}) ([]byte, string) {
	t.Helper()
	envelope := map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	}
	payload, err := json.Marshal(envelope)
	require.NoError(t, err)
	return sign(payload, testSecret)
}

func sign(payload []byte, secret string) ([]byte, string) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func checkoutObject(org, customer, sub string) map[string]interface{} {
	return map[string]interface{}{
		"id":                  "cs_test_1",
		"object":              "checkout.session",
		"mode":                "subscription",
		"customer":            customer,
		"subscription":        sub,
		"client_reference_id": org,
		"metadata":            map[string]string{"organization_id": org, "user_id": "user1"},
	}
}

func subscriptionObjectJSON(id, status, priceID string, end time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":       id,
		"object":   "subscription",
		"customer": "cus_123",
		"status":   status,
		"items": map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{
					"id":                 "si_1",
					"current_period_end": end.Unix(),
					"price":              map[string]interface{}{"id": priceID},
				},
			},
		},
	}
}
