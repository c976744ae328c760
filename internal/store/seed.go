package store

import (
	"context"
	"fmt"
	"os"

	"github.com/suteetoe/billing-service/internal/model"
	"gopkg.in/yaml.v3"
)

type planSeed struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Price         float64  `yaml:"price"`
	Features      []string `yaml:"features"`
	StripePriceID string   `yaml:"stripe_price_id"`
}

type organizationSeed struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	OwnerID    string `yaml:"owner_id"`
	CustomerID string `yaml:"stripe_customer_id"`
}

type userSeed struct {
	ID             string `yaml:"id"`
	Email          string `yaml:"email"`
	OrganizationID string `yaml:"organization_id"`
}

type seedFile struct {
	Plans         []planSeed         `yaml:"plans"`
	Organizations []organizationSeed `yaml:"organizations"`
	Users         []userSeed         `yaml:"users"`
}

// TenantSeed is the organization and user fixture of a local run. In
// production these rows belong to the identity service.
type TenantSeed struct {
	Organizations []model.Organization
	Users         []model.User
}

// LoadPlanSeed reads the administrative plan list from a YAML file.
func LoadPlanSeed(path string) ([]model.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan seed: %w", err)
	}
	return ParsePlanSeed(raw)
}

// ParsePlanSeed decodes and validates a plan seed document.
func ParsePlanSeed(raw []byte) ([]model.Plan, error) {
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode plan seed: %w", err)
	}

	ids := make(map[string]bool, len(doc.Plans))
	prices := make(map[string]bool, len(doc.Plans))
	plans := make([]model.Plan, 0, len(doc.Plans))
	for i, p := range doc.Plans {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("plan seed entry %d: id is required", i)
		case p.StripePriceID == "":
			return nil, fmt.Errorf("plan seed %s: stripe_price_id is required", p.ID)
		case ids[p.ID]:
			return nil, fmt.Errorf("plan seed %s: duplicate id", p.ID)
		case prices[p.StripePriceID]:
			return nil, fmt.Errorf("plan seed %s: duplicate stripe_price_id %s", p.ID, p.StripePriceID)
		case p.Price < 0:
			return nil, fmt.Errorf("plan seed %s: negative price", p.ID)
		}
		ids[p.ID] = true
		prices[p.StripePriceID] = true
		plans = append(plans, model.Plan{
			ID:            p.ID,
			Name:          p.Name,
			Price:         p.Price,
			Features:      p.Features,
			StripePriceID: p.StripePriceID,
		})
	}
	return plans, nil
}

// LoadTenantSeed reads the organizations and users section of a seed file.
func LoadTenantSeed(path string) (*TenantSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant seed: %w", err)
	}
	return ParseTenantSeed(raw)
}

// ParseTenantSeed decodes tenants and checks that every user points at a
// seeded organization.
func ParseTenantSeed(raw []byte) (*TenantSeed, error) {
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode tenant seed: %w", err)
	}

	seed := &TenantSeed{}
	orgs := make(map[string]bool, len(doc.Organizations))
	for i, o := range doc.Organizations {
		switch {
		case o.ID == "":
			return nil, fmt.Errorf("organization seed entry %d: id is required", i)
		case orgs[o.ID]:
			return nil, fmt.Errorf("organization seed %s: duplicate id", o.ID)
		}
		orgs[o.ID] = true
		org := model.Organization{ID: o.ID, Name: o.Name, OwnerID: o.OwnerID}
		if o.CustomerID != "" {
			customer := o.CustomerID
			org.StripeCustomerID = &customer
		}
		seed.Organizations = append(seed.Organizations, org)
	}

	for i, u := range doc.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("user seed entry %d: id is required", i)
		}
		user := model.User{ID: u.ID, Email: u.Email}
		if u.OrganizationID != "" {
			if !orgs[u.OrganizationID] {
				return nil, fmt.Errorf("user seed %s: unknown organization %s", u.ID, u.OrganizationID)
			}
			orgID := u.OrganizationID
			user.OrganizationID = &orgID
		}
		seed.Users = append(seed.Users, user)
	}
	return seed, nil
}

// SeedTenants loads the fixture into a memory store.
func SeedTenants(m *MemoryStore, seed *TenantSeed) {
	for _, org := range seed.Organizations {
		m.PutOrganization(org)
	}
	for _, user := range seed.Users {
		m.PutUser(user)
	}
}

// SeedPlans upserts every plan, keyed by plan id.
func SeedPlans(ctx context.Context, s TenantStore, plans []model.Plan) error {
	for i := range plans {
		if err := s.UpsertPlan(ctx, &plans[i]); err != nil {
			return err
		}
	}
	return nil
}
