package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/database"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// ApprovalHistoryRepository appends and reads immutable approval history entries.
type ApprovalHistoryRepository struct {
	db *database.DB
}

// NewApprovalHistoryRepository creates a new ApprovalHistoryRepository.
func NewApprovalHistoryRepository(db *database.DB) *ApprovalHistoryRepository {
	return &ApprovalHistoryRepository{db: db}
}

// Append inserts one entry inside tx. The table has an update/delete
// prevention trigger so this is the only mutation exposed.
func (r *ApprovalHistoryRepository) Append(ctx context.Context, tx pgx.Tx, a *domain.Approval) error {
	query := `
		INSERT INTO invoice_approvals
		    (id, invoice_id, approver_id, approval_level, action, comments, created_at)
		VALUES ($1, $2, $3, $4::approval_level, $5::approval_action, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		a.ID,
		a.InvoiceID,
		a.ApproverID,
		string(a.Level),
		string(a.Action),
		a.Comments,
		a.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to record approval")
	}
	return nil
}

// GetByInvoiceID returns the approval trail for an invoice ordered oldest-first.
func (r *ApprovalHistoryRepository) GetByInvoiceID(ctx context.Context, invoiceID string) ([]*domain.Approval, error) {
	query := `
		SELECT id::text, invoice_id::text, approver_id,
		       approval_level::text, action::text, comments, created_at
		FROM invoice_approvals
		WHERE invoice_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get approval history")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *ApprovalHistoryRepository) scanRows(rows pgx.Rows) ([]*domain.Approval, error) {
	history := make([]*domain.Approval, 0)
	for rows.Next() {
		a := &domain.Approval{}
		var level, action string

		err := rows.Scan(
			&a.ID,
			&a.InvoiceID,
			&a.ApproverID,
			&level,
			&action,
			&a.Comments,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval")
		}
		a.Level = domain.ApprovalLevel(level)
		a.Action = domain.ApprovalAction(action)
		history = append(history, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to iterate approval history")
	}
	return history, nil
}
