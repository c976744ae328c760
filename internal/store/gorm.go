package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suteetoe/billing-service/internal/model"
	"github.com/suteetoe/billing-service/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the postgres-backed TenantStore.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Models lists the tables owned by the billing subsystem, in migration order.
func Models() []interface{} {
	return []interface{}{&model.Plan{}, &model.Organization{}, &model.User{}, &model.Subscription{}}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) PlanByPriceID(ctx context.Context, priceID string) (*model.Plan, error) {
	defer prometheus.TrackDBOperation("plan_by_price")(time.Now())

	var plan model.Plan
	if err := s.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error; err != nil {
		return nil, fmt.Errorf("plan for price %s: %w", priceID, notFound(err))
	}
	return &plan, nil
}

func (s *GormStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	defer prometheus.TrackDBOperation("list_plans")(time.Now())

	var plans []model.Plan
	if err := s.db.WithContext(ctx).Order("price asc, id asc").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (s *GormStore) UpsertPlan(ctx context.Context, plan *model.Plan) error {
	defer prometheus.TrackDBOperation("upsert_plan")(time.Now())

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "features", "stripe_price_id", "updated_at"}),
	}).Create(plan).Error
	if err != nil {
		return fmt.Errorf("upsert plan %s: %w", plan.ID, err)
	}
	return nil
}

func (s *GormStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	defer prometheus.TrackDBOperation("get_organization")(time.Now())

	var org model.Organization
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, fmt.Errorf("organization %s: %w", id, notFound(err))
	}
	return &org, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer prometheus.TrackDBOperation("get_user")(time.Now())

	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user %s: %w", id, notFound(err))
	}
	return &user, nil
}

func (s *GormStore) SetCustomerIDIfAbsent(ctx context.Context, orgID, customerID string) (bool, error) {
	defer prometheus.TrackDBOperation("set_customer_id")(time.Now())

	res := s.db.WithContext(ctx).Model(&model.Organization{}).
		Where("id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '')", orgID).
		Update("stripe_customer_id", customerID)
	if res.Error != nil {
		return false, fmt.Errorf("set customer id for organization %s: %w", orgID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetSubscriptionByOrganization(ctx context.Context, orgID string) (*model.Subscription, error) {
	defer prometheus.TrackDBOperation("get_subscription")(time.Now())

	var sub model.Subscription
	if err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).First(&sub).Error; err != nil {
		return nil, fmt.Errorf("subscription for organization %s: %w", orgID, notFound(err))
	}
	return &sub, nil
}

func (s *GormStore) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	defer prometheus.TrackDBOperation("upsert_subscription")(time.Now())

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_subscription_id", "plan_id", "status", "period_end", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("upsert subscription for organization %s: %w", sub.OrganizationID, err)
	}
	return nil
}

func (s *GormStore) UpdateSubscriptionByExternalID(ctx context.Context, externalID string, update SubscriptionUpdate) (int64, error) {
	defer prometheus.TrackDBOperation("update_subscription")(time.Now())

	fields := map[string]interface{}{"status": update.Status}
	if update.PlanID != "" {
		fields["plan_id"] = update.PlanID
	}
	if update.PeriodEnd != nil {
		fields["period_end"] = *update.PeriodEnd
	}

	q := s.db.WithContext(ctx).Model(&model.Subscription{}).Where("stripe_subscription_id = ?", externalID)
	if !model.IsTerminal(update.Status) {
		q = q.Where("status NOT IN ?", terminalStatuses)
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("update subscription %s: %w", externalID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) CancelSubscriptionByExternalID(ctx context.Context, externalID string) (int64, error) {
	defer prometheus.TrackDBOperation("cancel_subscription")(time.Now())

	res := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", externalID).
		Update("status", model.StatusCanceled)
	if res.Error != nil {
		return 0, fmt.Errorf("cancel subscription %s: %w", externalID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) IncrementLabelCount(ctx context.Context, orgID string, delta int) (int, error) {
	defer prometheus.TrackDBOperation("increment_labels")(time.Now())

	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Subscription{}).
			Where("organization_id = ?", orgID).
			UpdateColumn("monthly_label_count", gorm.Expr("monthly_label_count + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var counts []int
		if err := tx.Model(&model.Subscription{}).
			Where("organization_id = ?", orgID).
			Pluck("monthly_label_count", &counts).Error; err != nil {
			return err
		}
		if len(counts) == 0 {
			return ErrNotFound
		}
		count = counts[0]
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment labels for organization %s: %w", orgID, err)
	}
	return count, nil
}
