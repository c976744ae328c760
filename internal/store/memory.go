package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suteetoe/billing-service/internal/model"
)

// MemoryStore is a mutex-guarded TenantStore for local runs and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	plans         map[string]model.Plan
	organizations map[string]model.Organization
	users         map[string]model.User
	subscriptions map[string]model.Subscription // keyed by organization id

	// Err, when set, is returned by every call to simulate an unreachable store.
	Err error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:         make(map[string]model.Plan),
		organizations: make(map[string]model.Organization),
		users:         make(map[string]model.User),
		subscriptions: make(map[string]model.Subscription),
	}
}

// PutOrganization inserts or replaces an organization.
func (m *MemoryStore) PutOrganization(org model.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.organizations[org.ID] = org
}

// PutUser inserts or replaces a user.
func (m *MemoryStore) PutUser(user model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// Subscriptions returns a snapshot of every subscription row.
func (m *MemoryStore) Subscriptions() []model.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrganizationID < out[j].OrganizationID })
	return out
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return m.Err
}

func (m *MemoryStore) PlanByPriceID(_ context.Context, priceID string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, p := range m.plans {
		if p.StripePriceID == priceID {
			plan := p
			return &plan, nil
		}
	}
	return nil, fmt.Errorf("plan for price %s: %w", priceID, ErrNotFound)
}

func (m *MemoryStore) ListPlans(_ context.Context) ([]model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	plans := make([]model.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Price != plans[j].Price {
			return plans[i].Price < plans[j].Price
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

func (m *MemoryStore) UpsertPlan(_ context.Context, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	now := time.Now()
	p := *plan
	if existing, ok := m.plans[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.plans[p.ID] = p
	return nil
}

func (m *MemoryStore) GetOrganization(_ context.Context, id string) (*model.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	org, ok := m.organizations[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return &org, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &user, nil
}

func (m *MemoryStore) SetCustomerIDIfAbsent(_ context.Context, orgID, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	org, ok := m.organizations[orgID]
	if !ok || org.CustomerID() != "" {
		return false, nil
	}
	id := customerID
	org.StripeCustomerID = &id
	org.UpdatedAt = time.Now()
	m.organizations[orgID] = org
	return true, nil
}

func (m *MemoryStore) GetSubscriptionByOrganization(_ context.Context, orgID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	sub, ok := m.subscriptions[orgID]
	if !ok {
		return nil, fmt.Errorf("subscription for organization %s: %w", orgID, ErrNotFound)
	}
	return &sub, nil
}

func (m *MemoryStore) UpsertSubscription(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	now := time.Now()
	row := *sub
	if existing, ok := m.subscriptions[row.OrganizationID]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.MonthlyLabelCount = existing.MonthlyLabelCount
	} else {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	m.subscriptions[row.OrganizationID] = row
	*sub = row
	return nil
}

func (m *MemoryStore) UpdateSubscriptionByExternalID(_ context.Context, externalID string, update SubscriptionUpdate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for orgID, sub := range m.subscriptions {
		if sub.StripeSubscriptionID != externalID {
			continue
		}
		if model.IsTerminal(sub.Status) && !model.IsTerminal(update.Status) {
			continue
		}
		sub.Status = update.Status
		if update.PlanID != "" {
			sub.PlanID = update.PlanID
		}
		if update.PeriodEnd != nil {
			end := *update.PeriodEnd
			sub.PeriodEnd = &end
		}
		sub.UpdatedAt = time.Now()
		m.subscriptions[orgID] = sub
		n++
	}
	return n, nil
}

func (m *MemoryStore) CancelSubscriptionByExternalID(_ context.Context, externalID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for orgID, sub := range m.subscriptions {
		if sub.StripeSubscriptionID != externalID {
			continue
		}
		sub.Status = model.StatusCanceled
		sub.UpdatedAt = time.Now()
		m.subscriptions[orgID] = sub
		n++
	}
	return n, nil
}

func (m *MemoryStore) IncrementLabelCount(_ context.Context, orgID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	sub, ok := m.subscriptions[orgID]
	if !ok {
		return 0, fmt.Errorf("increment labels for organization %s: %w", orgID, ErrNotFound)
	}
	sub.MonthlyLabelCount += delta
	m.subscriptions[orgID] = sub
	return sub.MonthlyLabelCount, nil
}
