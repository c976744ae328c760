package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/billing-service/internal/model"
)

func TestPlanDirectoryResolveCachesHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan, err := f.plans.Resolve(ctx, starterPriceID)
	require.NoError(t, err)
	assert.Equal(t, "starter", plan.ID)
	assert.Equal(t, "Starter", plan.Name)

	f.store.Err = errors.New("store down")
	plan, err = f.plans.Resolve(ctx, starterPriceID)
	require.NoError(t, err)
	assert.Equal(t, "starter", plan.ID)

	f.plans.Purge()
	_, err = f.plans.Resolve(ctx, starterPriceID)
	assert.EqualError(t, err, "store down")
	assert.NotErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanDirectoryDoesNotCacheMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.plans.Resolve(ctx, "price_new")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	require.NoError(t, f.store.UpsertPlan(ctx, &model.Plan{ID: "team", Name: "Team", Price: 499, StripePriceID: "price_new"}))
	plan, err := f.plans.Resolve(ctx, "price_new")
	require.NoError(t, err)
	assert.Equal(t, "team", plan.ID)
}

func TestPlanDirectoryEmptyPrice(t *testing.T) {
	f := newFixture(t)

	_, err := f.plans.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanDirectoryCacheExpires(t *testing.T) {
	f := newFixture(t)
	plans := NewPlanDirectory(f.store, 4, 20*time.Millisecond)
	ctx := context.Background()

	_, err := plans.Resolve(ctx, starterPriceID)
	require.NoError(t, err)
	f.store.Err = errors.New("store down")

	assert.Eventually(t, func() bool {
		_, err := plans.Resolve(ctx, starterPriceID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestPlanDirectoryList(t *testing.T) {
	f := newFixture(t)

	plans, err := f.plans.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "starter", plans[0].ID)
	assert.Equal(t, "pro", plans[1].ID)
}
