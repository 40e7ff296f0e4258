package plans

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/mindmed/mindmed-api/internal/models"
)

// PlanSpec describes the limits of a single tier.
type PlanSpec struct {
	Name  string `yaml:"name"`
	Quota *int   `yaml:"quota"` // null means unlimited
}

type catalogFile struct {
	Version     int                 `yaml:"version"`
	DefaultPlan string              `yaml:"default_plan"`
	Plans       map[string]PlanSpec `yaml:"plans"`
	Products    map[string]string   `yaml:"products"`
	Keywords    map[string][]string `yaml:"keywords"`
}

// Catalog maps payment provider product identifiers to plan tiers.
type Catalog struct {
	version     int
	defaultPlan models.Plan
	plans       map[models.Plan]PlanSpec
	products    map[string]models.Plan
	keywords    map[models.Plan][]string
}

const defaultCatalog = `
version: 1
default_plan: starter
plans:
  starter:
    name: Starter
    quota: 10
  pro:
    name: Pro
    quota: null
products:
  3bsu2vi_607441: starter
  u95r4cv_607505: pro
keywords:
  pro: [pro]
  starter: [starter]
`

// Default returns the built-in catalog with the two known Cakto products.
func Default() *Catalog {
	c, err := Parse([]byte(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("built-in plan catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}

	c := &Catalog{
		version:  f.Version,
		plans:    make(map[models.Plan]PlanSpec, len(f.Plans)),
		products: make(map[string]models.Plan, len(f.Products)),
	}
	for name, spec := range f.Plans {
		plan := models.Plan(name)
		if !plan.Valid() {
			return nil, fmt.Errorf("unknown plan %q in catalog", name)
		}
		if spec.Quota != nil && *spec.Quota < 0 {
			return nil, fmt.Errorf("plan %q has negative quota", name)
		}
		c.plans[plan] = spec
	}

	c.defaultPlan = models.Plan(f.DefaultPlan)
	if c.defaultPlan == "" {
		return nil, fmt.Errorf("plan catalog has no default_plan")
	}
	if _, ok := c.plans[c.defaultPlan]; !ok {
		return nil, fmt.Errorf("default plan %q is not defined", f.DefaultPlan)
	}

	for product, name := range f.Products {
		plan := models.Plan(name)
		if _, ok := c.plans[plan]; !ok {
			return nil, fmt.Errorf("product %q maps to undefined plan %q", product, name)
		}
		c.products[strings.TrimSpace(product)] = plan
	}

	c.keywords = make(map[models.Plan][]string, len(f.Keywords))
	for name, words := range f.Keywords {
		plan := models.Plan(name)
		if _, ok := c.plans[plan]; !ok {
			return nil, fmt.Errorf("keywords given for undefined plan %q", name)
		}
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				return nil, fmt.Errorf("plan %q has an empty keyword", name)
			}
			c.keywords[plan] = append(c.keywords[plan], w)
		}
	}
	return c, nil
}

// Version returns the catalog's declared version.
func (c *Catalog) Version() int { return c.version }

// Resolve returns the plan of the first candidate present in the product
// table. Candidates may be bare product ids or product/checkout URLs, in
// which case every path segment is tried. Without a product match, a
// candidate containing one of a plan's keywords as a whole word (ignoring
// case) selects that plan, higher tiers first. When nothing matches the
// default plan is returned with matched=false.
func (c *Catalog) Resolve(candidates ...string) (plan models.Plan, matched bool) {
	for _, candidate := range candidates {
		for _, key := range lookupKeys(candidate) {
			if p, ok := c.products[key]; ok {
				return p, true
			}
		}
	}
	if p, ok := c.matchKeywords(candidates); ok {
		return p, true
	}
	return c.defaultPlan, false
}

func (c *Catalog) matchKeywords(candidates []string) (models.Plan, bool) {
	if len(c.keywords) == 0 {
		return "", false
	}
	plans := make([]models.Plan, 0, len(c.keywords))
	for plan := range c.keywords {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool {
		return planRank(plans[i]) > planRank(plans[j])
	})

	words := map[string]bool{}
	for _, candidate := range candidates {
		for _, w := range strings.FieldsFunc(strings.ToLower(candidate), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			words[w] = true
		}
	}
	for _, plan := range plans {
		for _, kw := range c.keywords[plan] {
			if words[kw] {
				return plan, true
			}
		}
	}
	return "", false
}

// Quota returns the quota total for plan, nil when unlimited.
func (c *Catalog) Quota(plan models.Plan) *int {
	spec, ok := c.plans[plan]
	if !ok || spec.Quota == nil {
		return nil
	}
	return models.IntPtr(*spec.Quota)
}

// List describes every plan, starter first.
func (c *Catalog) List() []models.PlanInfo {
	out := make([]models.PlanInfo, 0, len(c.plans))
	for plan, spec := range c.plans {
		name := spec.Name
		if name == "" {
			name = string(plan)
		}
		out = append(out, models.PlanInfo{Plan: plan, Name: name, Quota: c.Quota(plan)})
	}
	sort.Slice(out, func(i, j int) bool {
		return planRank(out[i].Plan) < planRank(out[j].Plan)
	})
	return out
}

func planRank(p models.Plan) int {
	if p == models.PlanStarter {
		return 0
	}
	return 1
}

func lookupKeys(candidate string) []string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil
	}
	keys := []string{candidate}
	if !strings.Contains(candidate, "/") {
		return keys
	}

	path := candidate
	if u, err := url.Parse(candidate); err == nil && u.Path != "" {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	// last segment first, it is where Cakto puts the product code
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			keys = append(keys, segments[i])
		}
	}
	return keys
}
