package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/approval"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/repository"
)

const rulesYAML = `
rules:
  - id: org-high
    min_amount: "1000.01"
    requires_manager: true
    requires_accounting: true
  - id: org-low
    min_amount: "0"
    max_amount: "1000.00"
    requires_accounting: true
  - id: bcn-small
    centre_code: BCN01
    min_amount: "0"
    max_amount: "50"
    requires_manager: true
    requires_accounting: true
`

func TestDecodeRulesYAML(t *testing.T) {
	p, err := repository.DecodeRulesYAML([]byte(rulesYAML))
	require.NoError(t, err)
	ctx := context.Background()

	org, err := p.GetApprovalRules(ctx, nil)
	require.NoError(t, err)
	require.Len(t, org, 2)
	assert.Equal(t, "org-low", org[0].ID, "sorted by min_amount")
	assert.Equal(t, "org-high", org[1].ID)
	assert.Nil(t, org[1].MaxAmount)
	assert.True(t, decimal.RequireFromString("1000").Equal(*org[0].MaxAmount))

	centre := "BCN01"
	bcn, err := p.GetApprovalRules(ctx, &centre)
	require.NoError(t, err)
	require.Len(t, bcn, 1)
	assert.Equal(t, "BCN01", *bcn[0].CentreCode)

	other := "MAD02"
	none, err := p.GetApprovalRules(ctx, &other)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDecodeRulesYAML_DrivesEngine(t *testing.T) {
	p, err := repository.DecodeRulesYAML([]byte(rulesYAML))
	require.NoError(t, err)

	org, err := p.GetApprovalRules(context.Background(), nil)
	require.NoError(t, err)

	engine := approval.NewEngine()
	assert.False(t, engine.DetermineApprovalRequirements(decimal.NewFromInt(800), org).RequiresManagerApproval)
	assert.True(t, engine.DetermineApprovalRequirements(decimal.RequireFromString("1000.01"), org).RequiresManagerApproval)
}

func TestDecodeRulesYAML_ReturnsCopies(t *testing.T) {
	p, err := repository.DecodeRulesYAML([]byte(rulesYAML))
	require.NoError(t, err)

	first, _ := p.GetApprovalRules(context.Background(), nil)
	first[0].RequiresManager = true

	second, _ := p.GetApprovalRules(context.Background(), nil)
	assert.False(t, second[0].RequiresManager)
}

func TestDecodeRulesYAML_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "rules: [",
		"bad amount":     "rules:\n  - min_amount: abc\n",
		"negative min":   "rules:\n  - min_amount: \"-1\"\n",
		"max below min":  "rules:\n  - min_amount: \"100\"\n    max_amount: \"50\"\n",
		"bad max amount": "rules:\n  - max_amount: x\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := repository.DecodeRulesYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileRulesProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))

	p, err := repository.LoadFileRulesProvider(path)
	require.NoError(t, err)

	org, err := p.GetApprovalRules(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, org, 2)

	_, err = repository.LoadFileRulesProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
