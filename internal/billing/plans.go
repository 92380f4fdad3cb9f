// Package billing holds the plan catalog and the Stripe gateway.
package billing

import (
	_ "embed"
	"fmt"

	"ghostwriter/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var plansYAML []byte

// Plan is a subscription tier.
type Plan struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	PriceCents int64    `yaml:"price_cents" json:"price_cents"`
	Currency   string   `yaml:"currency" json:"currency"`
	Interval   string   `yaml:"interval" json:"interval"`
	MaxClients int      `yaml:"max_clients" json:"max_clients"`
	Features   []string `yaml:"features" json:"features"`
	PriceID    string   `yaml:"-" json:"-"`
}

// Paid reports whether the plan is billed.
func (p Plan) Paid() bool {
	return p.PriceCents > 0
}

// Purchasable reports whether checkout can be started for the plan.
func (p Plan) Purchasable() bool {
	return p.Paid() && p.PriceID != ""
}

// Catalog is the ordered list of plans.
type Catalog struct {
	plans []Plan
}

// LoadCatalog parses the embedded plan list and attaches Stripe price ids,
// keyed by plan id.
func LoadCatalog(priceIDs map[string]string) (*Catalog, error) {
	return ParseCatalog(plansYAML, priceIDs)
}

// ParseCatalog parses a plan list document.
func ParseCatalog(data []byte, priceIDs map[string]string) (*Catalog, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Plans))
	for i := range doc.Plans {
		p := &doc.Plans[i]
		if p.ID == "" {
			return nil, fmt.Errorf("plan %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		seen[p.ID] = true
		p.PriceID = priceIDs[p.ID]
	}
	if !seen[models.PlanFree] {
		return nil, fmt.Errorf("plan catalog must define %q", models.PlanFree)
	}
	return &Catalog{plans: doc.Plans}, nil
}

// Plans returns all plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Get looks up a plan by id.
func (c *Catalog) Get(id string) (Plan, bool) {
	for _, p := range c.plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// ForPrice finds the plan billed with a Stripe price id.
func (c *Catalog) ForPrice(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// MaxClients is the client limit for a plan id. Unknown plans get the free limit.
func (c *Catalog) MaxClients(planID string) int {
	if p, ok := c.Get(planID); ok {
		return p.MaxClients
	}
	p, _ := c.Get(models.PlanFree)
	return p.MaxClients
}
