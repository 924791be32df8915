package repository

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// FileRulesProvider serves approval rules loaded once from a YAML document:
//
//	rules:
//	  - min_amount: "0"
//	    max_amount: "500.00"
//	    requires_accounting: true
//	  - centre_code: BCN01
//	    min_amount: "0"
//	    requires_manager: true
//	    requires_accounting: true
type FileRulesProvider struct {
	org     []domain.ApprovalRule
	centres map[string][]domain.ApprovalRule
}

type rulesDocument struct {
	Rules []fileRule `yaml:"rules"`
}

type fileRule struct {
	ID                 string  `yaml:"id"`
	CentreCode         *string `yaml:"centre_code"`
	MinAmount          string  `yaml:"min_amount"`
	MaxAmount          *string `yaml:"max_amount"`
	RequiresManager    bool    `yaml:"requires_manager"`
	RequiresAccounting bool    `yaml:"requires_accounting"`
}

// LoadFileRulesProvider reads and parses the rules file at path.
func LoadFileRulesProvider(path string) (*FileRulesProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read approval rules from %s: %w", path, err)
	}
	p, err := DecodeRulesYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse approval rules from %s: %w", path, err)
	}
	return p, nil
}

// DecodeRulesYAML builds a provider from an encoded rules document.
func DecodeRulesYAML(encoded []byte) (*FileRulesProvider, error) {
	var doc rulesDocument
	if err := yaml.Unmarshal(encoded, &doc); err != nil {
		return nil, err
	}

	p := &FileRulesProvider{centres: make(map[string][]domain.ApprovalRule)}
	for i, fr := range doc.Rules {
		rule, err := fr.toDomain()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("file-%d", i+1)
		}
		if rule.CentreCode == nil {
			p.org = append(p.org, rule)
		} else {
			p.centres[*rule.CentreCode] = append(p.centres[*rule.CentreCode], rule)
		}
	}

	sortRules(p.org)
	for code := range p.centres {
		sortRules(p.centres[code])
	}
	return p, nil
}

// GetApprovalRules returns a copy of the rules for centreCode, or the
// organization-wide rules when centreCode is nil.
func (p *FileRulesProvider) GetApprovalRules(_ context.Context, centreCode *string) ([]domain.ApprovalRule, error) {
	src := p.org
	if centreCode != nil {
		src = p.centres[*centreCode]
	}
	out := make([]domain.ApprovalRule, len(src))
	copy(out, src)
	return out, nil
}

func (fr fileRule) toDomain() (domain.ApprovalRule, error) {
	rule := domain.ApprovalRule{
		ID:                 fr.ID,
		CentreCode:         fr.CentreCode,
		RequiresManager:    fr.RequiresManager,
		RequiresAccounting: fr.RequiresAccounting,
	}

	minText := fr.MinAmount
	if minText == "" {
		minText = "0"
	}
	lower, err := decimal.NewFromString(minText)
	if err != nil {
		return rule, fmt.Errorf("invalid min_amount %q: %w", fr.MinAmount, err)
	}
	if lower.IsNegative() {
		return rule, fmt.Errorf("min_amount cannot be negative")
	}
	rule.MinAmount = lower

	if fr.MaxAmount != nil {
		upper, err := decimal.NewFromString(*fr.MaxAmount)
		if err != nil {
			return rule, fmt.Errorf("invalid max_amount %q: %w", *fr.MaxAmount, err)
		}
		if upper.LessThan(lower) {
			return rule, fmt.Errorf("max_amount %s is below min_amount %s", upper, lower)
		}
		rule.MaxAmount = &upper
	}
	return rule, nil
}

func sortRules(rules []domain.ApprovalRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].MinAmount.LessThan(rules[j].MinAmount)
	})
}
