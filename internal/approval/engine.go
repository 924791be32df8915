package approval

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// Requirements is the approval routing computed for an invoice total.
type Requirements struct {
	RequiresManagerApproval    bool                 `json:"requires_manager_approval"`
	RequiresAccountingApproval bool                 `json:"requires_accounting_approval"`
	NextApprovalLevel          domain.ApprovalLevel `json:"next_approval_level"`
	MatchedRule                bool                 `json:"matched_rule"`
}

// DefaultRules is the organization-wide tiering used when no rules are configured:
//
//	0.00    - 500.00   accounting only
//	500.01  - 2000.00  manager + accounting
//	2000.01 -          manager + accounting
func DefaultRules() []domain.ApprovalRule {
	tier1Max := decimal.RequireFromString("500.00")
	tier2Max := decimal.RequireFromString("2000.00")
	return []domain.ApprovalRule{
		{
			ID:                 "default-low",
			MinAmount:          decimal.Zero,
			MaxAmount:          &tier1Max,
			RequiresAccounting: true,
		},
		{
			ID:                 "default-mid",
			MinAmount:          decimal.RequireFromString("500.01"),
			MaxAmount:          &tier2Max,
			RequiresManager:    true,
			RequiresAccounting: true,
		},
		{
			ID:                 "default-high",
			MinAmount:          decimal.RequireFromString("2000.01"),
			RequiresManager:    true,
			RequiresAccounting: true,
		},
	}
}

// roleCapabilities is the closed (role, level) -> allowed relation.
var roleCapabilities = map[domain.Role]map[domain.ApprovalLevel]bool{
	domain.RoleAdmin: {
		domain.LevelManager:    true,
		domain.LevelAccounting: true,
	},
	domain.RoleManager: {
		domain.LevelManager: true,
	},
	domain.RoleAccountant: {
		domain.LevelAccounting: true,
	},
}

// Engine makes pure routing and authorization decisions. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	defaults []domain.ApprovalRule
}

// NewEngine creates an engine using DefaultRules as fallback.
func NewEngine() *Engine {
	return &Engine{defaults: DefaultRules()}
}

// DetermineApprovalRequirements selects the first rule, ordered by
// MinAmount, whose range contains total. A non-empty rules list fully
// replaces the defaults. When no rule matches, both approvals are required.
func (e *Engine) DetermineApprovalRequirements(total decimal.Decimal, rules []domain.ApprovalRule) Requirements {
	if len(rules) == 0 {
		rules = e.defaults
	}
	amount := total.Round(2)

	req := Requirements{
		RequiresManagerApproval:    true,
		RequiresAccountingApproval: true,
	}
	if rule, ok := MatchRule(amount, rules); ok {
		req.RequiresManagerApproval = rule.RequiresManager
		req.RequiresAccountingApproval = rule.RequiresAccounting
		req.MatchedRule = true
	}

	req.NextApprovalLevel = domain.LevelAccounting
	if req.RequiresManagerApproval {
		req.NextApprovalLevel = domain.LevelManager
	}
	return req
}

// MatchRule returns the first rule, in ascending MinAmount order, containing amount.
func MatchRule(amount decimal.Decimal, rules []domain.ApprovalRule) (domain.ApprovalRule, bool) {
	ordered := make([]domain.ApprovalRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinAmount.LessThan(ordered[j].MinAmount)
	})

	for _, rule := range ordered {
		if rule.Contains(amount) {
			return rule, true
		}
	}
	return domain.ApprovalRule{}, false
}

// InitialApprovalStatus is the approval status an invoice enters on submission.
func (e *Engine) InitialApprovalStatus(req Requirements) domain.ApprovalStatus {
	if req.NextApprovalLevel == domain.LevelManager {
		return domain.ApprovalPendingManager
	}
	return domain.ApprovalPendingAccounting
}

// DetermineNextApprovalStatus computes the status after action at level.
// Rejection is always terminal; accounting is always the final gate.
func (e *Engine) DetermineNextApprovalStatus(invoice *domain.InvoiceReceived, level domain.ApprovalLevel, action domain.ApprovalAction) domain.ApprovalStatus {
	if action == domain.ActionRejected {
		return domain.ApprovalRejected
	}
	if level == domain.LevelManager && invoice.RequiresAccountingApproval {
		return domain.ApprovalPendingAccounting
	}
	return domain.ApprovalApproved
}

// CanUserApprove reports whether role may act at level.
func (e *Engine) CanUserApprove(role domain.Role, level domain.ApprovalLevel) bool {
	return roleCapabilities[role][level]
}

// GetPendingApprovalLevel returns the level the invoice waits on, or false
// when it is not pending.
func (e *Engine) GetPendingApprovalLevel(invoice *domain.InvoiceReceived) (domain.ApprovalLevel, bool) {
	switch invoice.ApprovalStatus {
	case domain.ApprovalPendingManager:
		return domain.LevelManager, true
	case domain.ApprovalPendingAccounting:
		return domain.LevelAccounting, true
	}
	return "", false
}

// IsFullyApproved reports whether the approval lifecycle completed successfully.
func (e *Engine) IsFullyApproved(invoice *domain.InvoiceReceived) bool {
	return invoice.ApprovalStatus == domain.ApprovalApproved
}

// IsPendingApproval reports whether the invoice waits on any gate.
func (e *Engine) IsPendingApproval(invoice *domain.InvoiceReceived) bool {
	return invoice.ApprovalStatus.IsPending()
}

// InvoiceStatusFor derives the operational status from an approval status.
func InvoiceStatusFor(status domain.ApprovalStatus) domain.InvoiceStatus {
	switch status {
	case domain.ApprovalApproved:
		return domain.StatusApproved
	case domain.ApprovalRejected:
		return domain.StatusRejected
	}
	return domain.StatusPending
}
