package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/suteetoe/billing-service/internal/billing"
	mid "github.com/suteetoe/billing-service/internal/middleware"
	"github.com/suteetoe/billing-service/internal/model"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/jwtutil"
)

const (
	webhookSecret  = "whsec_handler_test"
	starterPriceID = "price_1ST6WUH9gIP9tzTRDrjI7fPf"
)

type testServer struct {
	e        *echo.Echo
	store    *store.MemoryStore
	provider *billing.MockProvider
	jwt      *jwtutil.JWTUtil
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemoryStore()
	require.NoError(t, s.UpsertPlan(ctx, &model.Plan{ID: "starter", Name: "Starter", Price: 99.9, Features: []string{"labels"}, StripePriceID: starterPriceID}))
	s.PutOrganization(model.Organization{ID: "org1", Name: "Acme", OwnerID: "user1"})
	org := "org1"
	s.PutUser(model.User{ID: "user1", Email: "owner@acme.test", OrganizationID: &org})

	provider := billing.NewMockProvider()
	end := time.Date(2026, 11, 16, 0, 0, 0, 0, time.UTC)
	provider.AddSubscription(billing.ProviderSubscription{
		ID: "sub_abc", CustomerID: "cus_123", Status: model.StatusActive, PriceID: starterPriceID, PeriodEnd: &end,
	})

	plans := billing.NewPlanDirectory(s, 16, time.Minute)
	bh := NewBillingHandler(
		billing.NewVerifier(secret),
		billing.NewReconciler(s, plans, provider, time.Second),
		billing.NewCheckoutInitiator(s, plans, provider, "https://app.test/ok", "https://app.test/cancel", time.Second),
		billing.NewDetailReader(s, provider, 10, time.Second),
		plans,
		1024*1024,
	)
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "handler-test", ExpirationHours: 1})

	e := echo.New()
	e.Use(mid.RequestIDMiddleware)
	RegisterRoutes(e, bh, NewUsageHandler(s), s, jwt)
	return &testServer{e: e, store: s, provider: provider, jwt: jwt}
}

func (ts *testServer) token(t *testing.T, userID, tenantID string) string {
	t.Helper()
	token, err := ts.jwt.GenerateToken(userID+"@acme.test", userID, tenantID, "Acme", "owner")
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(method, path, body, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) deliver(t *testing.T, secret, id, eventType string, object map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-03-31.basil",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return ts.do(http.MethodPost, "/api/billing/webhook", string(signed.Payload), "", map[string]string{"Stripe-Signature": signed.Header})
}

func checkoutSession(org string) map[string]interface{} {
	return map[string]interface{}{
		"id":           "cs_1",
		"object":       "checkout.session",
		"mode":         "subscription",
		"customer":     "cus_123",
		"subscription": "sub_abc",
		"metadata":     map[string]string{"organization_id": org},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWebhookCheckoutThenDelete(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "applied", decode(t, rec)["outcome"])

	rows := ts.store.Subscriptions()
	require.Len(t, rows, 1)
	assert.Equal(t, "org1", rows[0].OrganizationID)
	assert.Equal(t, "sub_abc", rows[0].StripeSubscriptionID)
	assert.Equal(t, "starter", rows[0].PlanID)
	assert.Equal(t, model.StatusActive, rows[0].Status)

	rec = ts.deliver(t, webhookSecret, "evt_2", billing.EventSubscriptionDeleted, map[string]interface{}{
		"id": "sub_abc", "object": "subscription", "customer": "cus_123", "status": "canceled",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows = ts.store.Subscriptions()
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusCanceled, rows[0].Status)
	assert.Equal(t, "org1", rows[0].OrganizationID)
	assert.Equal(t, "starter", rows[0].PlanID)
}

func TestWebhookUnknownPriceAcknowledged(t *testing.T) {
	ts := newTestServer(t, webhookSecret)
	ts.provider.AddSubscription(billing.ProviderSubscription{ID: "sub_abc", Status: model.StatusActive, PriceID: "price_stale"})

	rec := ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", decode(t, rec)["outcome"])
	assert.Empty(t, ts.store.Subscriptions())
}

func TestWebhookUnhandledTypeAcknowledged(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.deliver(t, webhookSecret, "evt_1", "invoice.paid", map[string]interface{}{"id": "in_1", "object": "invoice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decode(t, rec)["outcome"])
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.deliver(t, "whsec_forged", "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "signature")
	assert.Empty(t, ts.store.Subscriptions())
	assert.Zero(t, ts.provider.CallCount("GetSubscription"))
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodPost, "/api/billing/webhook", `{"id":"evt_1"}`, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.store.Subscriptions())
}

func TestWebhookFailsClosedWithoutSecret(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, ts.store.Subscriptions())
}

func TestWebhookTransientFailureAsksForRetry(t *testing.T) {
	ts := newTestServer(t, webhookSecret)
	ts.provider.SubscriptionErr = errors.New("stripe: 500")

	rec := ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, ts.store.Subscriptions())
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	body := bytes.Repeat([]byte("a"), 1024*1024+1)
	rec := ts.do(http.MethodPost, "/api/billing/webhook", string(body), "", map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCheckoutSession(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	// body values for user and tenant are overridden by the token
	rec := ts.do(http.MethodPost, "/api/billing/checkout",
		`{"priceId":"`+starterPriceID+`","organizationId":"org_other","userId":"someone"}`,
		ts.token(t, "user1", "org1"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ts.provider.CheckoutURL, decode(t, rec)["url"])

	require.Len(t, ts.provider.CheckoutRequests, 1)
	assert.Equal(t, "org1", ts.provider.CheckoutRequests[0].OrganizationID)
	assert.Equal(t, "user1", ts.provider.CheckoutRequests[0].UserID)
	assert.Empty(t, ts.store.Subscriptions())
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		tenant string
		setup  func(*testServer)
		status int
	}{
		{"token without tenant", `{"priceId":"` + starterPriceID + `"}`, "", nil, http.StatusForbidden},
		{"missing price", `{}`, "org1", nil, http.StatusBadRequest},
		{"unknown price", `{"priceId":"price_nope"}`, "org1", nil, http.StatusBadRequest},
		{"unknown organization", `{"priceId":"` + starterPriceID + `"}`, "org_ghost", nil, http.StatusNotFound},
		{"provider down", `{"priceId":"` + starterPriceID + `"}`, "org1", func(ts *testServer) {
			ts.provider.CheckoutErr = errors.New("stripe: unavailable")
		}, http.StatusBadGateway},
		{"bad json", `{"priceId":`, "org1", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, webhookSecret)
			if tc.setup != nil {
				tc.setup(ts)
			}
			rec := ts.do(http.MethodPost, "/api/billing/checkout", tc.body, ts.token(t, "user1", tc.tenant), nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestCreateCheckoutSessionStaysInsideCallerTenant(t *testing.T) {
	ts := newTestServer(t, webhookSecret)
	victim := "cus_victim"
	ts.store.PutOrganization(model.Organization{ID: "org2", Name: "Other", StripeCustomerID: &victim})
	body := `{"priceId":"` + starterPriceID + `","organizationId":"org2"}`

	// a token without tenant cannot name a tenant in the body
	rec := ts.do(http.MethodPost, "/api/billing/checkout", body, ts.token(t, "user1", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	// a tenant claim the user is not a member of is refused too
	rec = ts.do(http.MethodPost, "/api/billing/checkout", body, ts.token(t, "user1", "org2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["error"])

	assert.Zero(t, ts.provider.CallCount("CreateCheckoutSession"))
	assert.Empty(t, ts.provider.CheckoutRequests)
}

func TestCreateCheckoutSessionRequiresToken(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodPost, "/api/billing/checkout", `{"priceId":"`+starterPriceID+`","organizationId":"org1","userId":"user1"}`, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ts.provider.CallCount("CreateCheckoutSession"))
}

func TestGetSubscriptionDetailsWithoutCustomer(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodGet, "/api/billing/subscription", "", ts.token(t, "user1", "org1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasSubscription":false,"invoices":[],"paymentMethod":null,"upcomingInvoice":null}`, rec.Body.String())
}

func TestGetSubscriptionDetails(t *testing.T) {
	ts := newTestServer(t, webhookSecret)
	require.Equal(t, http.StatusOK, ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1")).Code)
	ts.provider.Invoices = []billing.ProviderInvoice{{ID: "in_1", Number: "0001", AmountPaid: 9990, Status: "paid", Created: 1760000000, PDFURL: "https://pay.test/in_1.pdf"}}

	rec := ts.do(http.MethodGet, "/api/billing/subscription", "", ts.token(t, "user1", "org1"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["hasSubscription"])
	assert.Nil(t, body["paymentMethod"])
	invoices := body["invoices"].([]interface{})
	require.Len(t, invoices, 1)
	invoice := invoices[0].(map[string]interface{})
	assert.Equal(t, 99.9, invoice["amount"])
	assert.Equal(t, "https://pay.test/in_1.pdf", invoice["pdfUrl"])
}

func TestGetSubscriptionDetailsErrors(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodGet, "/api/billing/subscription", "", ts.token(t, "ghost", "org1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	written, err := ts.store.SetCustomerIDIfAbsent(context.Background(), "org1", "cus_123")
	require.NoError(t, err)
	require.True(t, written)
	ts.provider.InvoicesErr = errors.New("stripe: timeout")
	rec = ts.do(http.MethodGet, "/api/billing/subscription", "", ts.token(t, "user1", "org1"), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListPlans(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodGet, "/api/billing/plans", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var plans []model.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "Starter", plans[0].Name)
	assert.Equal(t, starterPriceID, plans[0].StripePriceID)
}

func TestIncrementLabelUsage(t *testing.T) {
	ts := newTestServer(t, webhookSecret)
	token := ts.token(t, "user1", "org1")

	rec := ts.do(http.MethodPost, "/api/usage/labels", `{"count":3}`, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1")).Code)

	rec = ts.do(http.MethodPost, "/api/usage/labels", `{"count":3}`, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3.0, decode(t, rec)["monthlyLabelCount"])

	rec = ts.do(http.MethodPost, "/api/usage/labels", `{}`, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, decode(t, rec)["monthlyLabelCount"])

	// a redelivered checkout keeps the counter
	require.Equal(t, http.StatusOK, ts.deliver(t, webhookSecret, "evt_1", billing.EventCheckoutCompleted, checkoutSession("org1")).Code)
	assert.Equal(t, 4, ts.store.Subscriptions()[0].MonthlyLabelCount)

	for _, body := range []string{`{"count":0}`, `{"count":1001}`, `{"count":-2}`} {
		rec = ts.do(http.MethodPost, "/api/usage/labels", body, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestIncrementLabelUsageRequiresTenant(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodPost, "/api/usage/labels", `{"count":1}`, ts.token(t, "user1", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, webhookSecret)

	rec := ts.do(http.MethodGet, "/health?check=db", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["db_status"])

	ts.store.Err = errors.New("connection refused")
	rec = ts.do(http.MethodGet, "/health?check=db", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
