package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/database"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// ApprovalRulesRepository reads invoice_approval_rules.
type ApprovalRulesRepository struct {
	db *database.DB
}

// NewApprovalRulesRepository creates a new ApprovalRulesRepository.
func NewApprovalRulesRepository(db *database.DB) *ApprovalRulesRepository {
	return &ApprovalRulesRepository{db: db}
}

// GetApprovalRules returns active rules for a centre, or the organization-wide
// rules when centreCode is nil, ordered by min_amount ascending.
func (r *ApprovalRulesRepository) GetApprovalRules(ctx context.Context, centreCode *string) ([]domain.ApprovalRule, error) {
	query := `
		SELECT id::text, centre_code, min_amount::text, max_amount::text,
		       requires_manager, requires_accounting
		FROM invoice_approval_rules
		WHERE is_active = TRUE AND centre_code IS NOT DISTINCT FROM $1
		ORDER BY min_amount ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, centreCode)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list approval rules")
	}
	defer rows.Close()

	rules := make([]domain.ApprovalRule, 0)
	for rows.Next() {
		rule, err := scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to iterate approval rules")
	}
	return rules, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanRuleRow(rows pgx.Rows) (domain.ApprovalRule, error) {
	var rule domain.ApprovalRule
	var minAmount string
	var maxAmount *string

	err := rows.Scan(
		&rule.ID,
		&rule.CentreCode,
		&minAmount,
		&maxAmount,
		&rule.RequiresManager,
		&rule.RequiresAccounting,
	)
	if err != nil {
		return rule, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval rule")
	}

	if rule.MinAmount, err = decimal.NewFromString(minAmount); err != nil {
		return rule, apperrors.Wrap(err, apperrors.ErrCodeInternal, "invalid approval rule min_amount")
	}
	if maxAmount != nil {
		upper, err := decimal.NewFromString(*maxAmount)
		if err != nil {
			return rule, apperrors.Wrap(err, apperrors.ErrCodeInternal, "invalid approval rule max_amount")
		}
		rule.MaxAmount = &upper
	}
	return rule, nil
}
