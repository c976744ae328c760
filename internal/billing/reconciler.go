package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suteetoe/billing-service/internal/model"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
)

// Outcome says what a verified event did to the tenant store.
type Outcome string

const (
	// OutcomeApplied means the store now mirrors the event.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means a data-integrity mismatch; redelivery cannot help.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored means the event type is not business relevant.
	OutcomeIgnored Outcome = "ignored"

	outcomeError = "error"
)

// Result is the acknowledgment of one event.
type Result struct {
	Outcome Outcome
	Reason  string
}

func skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

// Reconciler is the single writer of subscription state. Every action is an
// overwrite so redelivered events are safe to apply again.
type Reconciler struct {
	store    store.TenantStore
	plans    *PlanDirectory
	provider Provider
	timeout  time.Duration
}

func NewReconciler(s store.TenantStore, plans *PlanDirectory, provider Provider, timeout time.Duration) *Reconciler {
	return &Reconciler{store: s, plans: plans, provider: provider, timeout: timeout}
}

// Apply reconciles one verified event. A non-nil error is transient and the
// delivery should be retried; skipped and ignored results are final.
func (r *Reconciler) Apply(ctx context.Context, event Event) (Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With(
		zap.String("event_id", event.ID()),
		zap.String("event_type", event.Type()),
	)

	var (
		res Result
		err error
	)
	switch ev := event.(type) {
	case CheckoutCompleted:
		res, err = r.checkoutCompleted(ctx, log, ev)
	case SubscriptionUpdated:
		res, err = r.subscriptionUpdated(ctx, log, ev)
	case SubscriptionDeleted:
		res, err = r.subscriptionDeleted(ctx, log, ev)
	default:
		res = Result{Outcome: OutcomeIgnored, Reason: "event type not handled"}
	}

	outcome := string(res.Outcome)
	switch {
	case err != nil:
		outcome = outcomeError
		log.Error("Webhook event failed", zap.Error(err))
	case res.Outcome == OutcomeSkipped:
		log.Warn("Webhook event skipped", zap.String("reason", res.Reason))
	case res.Outcome == OutcomeIgnored:
		log.Info("Webhook event ignored")
	default:
		log.Info("Webhook event applied")
	}
	prometheus.RecordWebhookEvent(event.Type(), outcome, time.Since(start))
	return res, err
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *zap.Logger, ev CheckoutCompleted) (Result, error) {
	if ev.Mode != "" && ev.Mode != checkoutModeSubscription {
		return skipped("checkout mode " + ev.Mode + " is not a subscription"), nil
	}
	if ev.OrganizationID == "" {
		return skipped("checkout session carries no organization"), nil
	}
	if ev.SubscriptionID == "" {
		return skipped("checkout session carries no subscription"), nil
	}

	if _, err := r.store.GetOrganization(ctx, ev.OrganizationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return skipped("unknown organization " + ev.OrganizationID), nil
		}
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	sub, err := r.provider.GetSubscription(callCtx, ev.SubscriptionID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return skipped("provider has no subscription " + ev.SubscriptionID), nil
		}
		return Result{}, fmt.Errorf("fetch subscription %s: %w", ev.SubscriptionID, err)
	}

	plan, err := r.plans.Resolve(ctx, sub.PriceID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return skipped(fmt.Sprintf("no plan for price %q", sub.PriceID)), nil
		}
		return Result{}, err
	}

	row := &model.Subscription{
		OrganizationID:       ev.OrganizationID,
		StripeSubscriptionID: sub.ID,
		PlanID:               plan.ID,
		Status:               sub.Status,
		PeriodEnd:            sub.PeriodEnd,
	}
	if row.StripeSubscriptionID == "" {
		row.StripeSubscriptionID = ev.SubscriptionID
	}
	if err := r.store.UpsertSubscription(ctx, row); err != nil {
		return Result{}, err
	}

	customerID := ev.CustomerID
	if customerID == "" {
		customerID = sub.CustomerID
	}
	if customerID != "" {
		written, err := r.store.SetCustomerIDIfAbsent(ctx, ev.OrganizationID, customerID)
		if err != nil {
			return Result{}, err
		}
		if written {
			log.Info("Customer linked to organization",
				zap.String("organization_id", ev.OrganizationID),
				zap.String("customer_id", customerID))
		}
	}

	log.Info("Subscription upserted",
		zap.String("organization_id", ev.OrganizationID),
		zap.String("subscription_id", row.StripeSubscriptionID),
		zap.String("plan_id", plan.ID),
		zap.String("status", row.Status))
	return Result{Outcome: OutcomeApplied}, nil
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, log *zap.Logger, ev SubscriptionUpdated) (Result, error) {
	if ev.SubscriptionID == "" {
		return skipped("event carries no subscription id"), nil
	}
	if ev.Status == "" {
		return skipped("event carries no status"), nil
	}

	update := store.SubscriptionUpdate{Status: ev.Status, PeriodEnd: ev.PeriodEnd}
	if ev.PriceID != "" {
		plan, err := r.plans.Resolve(ctx, ev.PriceID)
		if err != nil {
			if errors.Is(err, ErrPlanNotFound) {
				return skipped(fmt.Sprintf("no plan for price %q", ev.PriceID)), nil
			}
			return Result{}, err
		}
		update.PlanID = plan.ID
	}

	n, err := r.store.UpdateSubscriptionByExternalID(ctx, ev.SubscriptionID, update)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return skipped("no updatable row for subscription " + ev.SubscriptionID), nil
	}

	log.Info("Subscription updated",
		zap.String("subscription_id", ev.SubscriptionID),
		zap.String("status", ev.Status),
		zap.String("plan_id", update.PlanID))
	return Result{Outcome: OutcomeApplied}, nil
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, log *zap.Logger, ev SubscriptionDeleted) (Result, error) {
	if ev.SubscriptionID == "" {
		return skipped("event carries no subscription id"), nil
	}

	n, err := r.store.CancelSubscriptionByExternalID(ctx, ev.SubscriptionID)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return skipped("no row for subscription " + ev.SubscriptionID), nil
	}

	log.Info("Subscription canceled", zap.String("subscription_id", ev.SubscriptionID))
	return Result{Outcome: OutcomeApplied}, nil
}
