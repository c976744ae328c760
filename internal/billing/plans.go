package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/suteetoe/billing-service/internal/model"
	"github.com/suteetoe/billing-service/internal/store"
)

// ErrPlanNotFound means no plan carries the price id. It is a data-integrity
// mismatch, never a transient failure.
var ErrPlanNotFound = errors.New("no plan for price")

// PlanDirectory resolves provider price ids to plans. Hits are cached for a
// bounded time; misses are not, so a freshly seeded plan resolves at once.
type PlanDirectory struct {
	store store.TenantStore
	cache *expirable.LRU[string, model.Plan]
}

func NewPlanDirectory(s store.TenantStore, size int, ttl time.Duration) *PlanDirectory {
	return &PlanDirectory{
		store: s,
		cache: expirable.NewLRU[string, model.Plan](size, nil, ttl),
	}
}

// Resolve returns the plan mapped to priceID.
func (d *PlanDirectory) Resolve(ctx context.Context, priceID string) (*model.Plan, error) {
	if priceID == "" {
		return nil, fmt.Errorf("%w: empty price id", ErrPlanNotFound)
	}
	if plan, ok := d.cache.Get(priceID); ok {
		return &plan, nil
	}

	plan, err := d.store.PlanByPriceID(ctx, priceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w %s", ErrPlanNotFound, priceID)
		}
		return nil, err
	}
	d.cache.Add(priceID, *plan)
	return plan, nil
}

// List returns every plan ordered by price. It always reads through.
func (d *PlanDirectory) List(ctx context.Context) ([]model.Plan, error) {
	plans, err := d.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []model.Plan{}
	}
	return plans, nil
}

// Purge drops every cached plan, used after reseeding.
func (d *PlanDirectory) Purge() {
	d.cache.Purge()
}
