package plans

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmed/mindmed-api/internal/models"
)

func TestDefaultCatalogResolve(t *testing.T) {
	c := Default()

	tests := []struct {
		name       string
		candidates []string
		want       models.Plan
		matched    bool
	}{
		{"starter product id", []string{"3bsu2vi_607441"}, models.PlanStarter, true},
		{"pro product id", []string{"u95r4cv_607505"}, models.PlanPro, true},
		{"pro checkout url", []string{"", "https://pay.cakto.com.br/u95r4cv_607505"}, models.PlanPro, true},
		{"url with query", []string{"https://pay.cakto.com.br/3bsu2vi_607441?affiliate=x"}, models.PlanStarter, true},
		{"first match wins", []string{"u95r4cv_607505", "3bsu2vi_607441"}, models.PlanPro, true},
		{"unknown product", []string{"zzz_000"}, models.PlanStarter, false},
		{"pro keyword in url", []string{"https://pay.cakto.com.br/mindmed-PRO-anual"}, models.PlanPro, true},
		{"starter keyword in url", []string{"", "https://pay.cakto.com.br/plano_starter"}, models.PlanStarter, true},
		{"product code beats keyword", []string{"https://pay.cakto.com.br/pro", "3bsu2vi_607441"}, models.PlanStarter, true},
		{"keyword must be a whole word", []string{"https://pay.cakto.com.br/product/zzz_000"}, models.PlanStarter, false},
		{"no candidates", nil, models.PlanStarter, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, matched := c.Resolve(tt.candidates...)
			assert.Equal(t, tt.want, plan)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestDefaultCatalogQuota(t *testing.T) {
	c := Default()
	require.NotNil(t, c.Quota(models.PlanStarter))
	assert.Equal(t, 10, *c.Quota(models.PlanStarter))
	assert.Nil(t, c.Quota(models.PlanPro))

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, models.PlanStarter, list[0].Plan)
	assert.Equal(t, models.PlanPro, list[1].Plan)
	assert.Equal(t, 1, c.Version())
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown plan": `
default_plan: starter
plans:
  starter: {quota: 10}
  gold: {quota: 5}
`,
		"negative quota": `
default_plan: starter
plans:
  starter: {quota: -1}
`,
		"missing default": `
plans:
  starter: {quota: 10}
`,
		"undefined default": `
default_plan: pro
plans:
  starter: {quota: 10}
`,
		"product to undefined plan": `
default_plan: starter
plans:
  starter: {quota: 10}
products:
  abc: pro
`,
		"keywords for undefined plan": `
default_plan: starter
plans:
  starter: {quota: 10}
keywords:
  pro: [pro]
`,
		"empty keyword": `
default_plan: starter
plans:
  starter: {quota: 10}
keywords:
  starter: ["  "]
`,
		"unknown field": `
default_plan: starter
plans:
  starter: {quota: 10}
extra: true
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	doc := `
version: 2
default_plan: starter
plans:
  starter: {name: Starter, quota: 25}
  pro: {name: Pro, quota: null}
products:
  new_starter_code: starter
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Version())
	assert.Equal(t, 25, *c.Quota(models.PlanStarter))

	plan, matched := c.Resolve("u95r4cv_607505")
	assert.False(t, matched, "codes only live in the loaded file")
	assert.Equal(t, models.PlanStarter, plan)

	plan, matched = c.Resolve("https://pay.cakto.com.br/mindmed-pro")
	assert.False(t, matched, "keywords are opt-in per catalog")
	assert.Equal(t, models.PlanStarter, plan)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Version())
}
