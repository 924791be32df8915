package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/database"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InvoiceRepository is the persistence collaborator for received invoices
// and their approval history.
type InvoiceRepository struct {
	db      *database.DB
	history *ApprovalHistoryRepository
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.DB, history *ApprovalHistoryRepository) *InvoiceRepository {
	return &InvoiceRepository{db: db, history: history}
}

const invoiceColumns = `
	id::text, COALESCE(supplier_id, ''), COALESCE(centre_code, ''), invoice_number,
	invoice_date, due_date,
	subtotal::text, tax_total::text, total::text,
	status::text, COALESCE(approval_status::text, ''),
	requires_manager_approval, requires_accounting_approval,
	approved_by, approved_at, rejected_by, rejected_at, rejected_reason, notes,
	COALESCE(ocr_engine, ''), ocr_confidence, ocr_confidence_notes, ocr_merge_notes,
	ocr_fallback_used, requires_manual_review, ocr_raw_payload,
	version, created_at, updated_at
`

const lineColumns = `
	id::text, invoice_id::text, line_number, description,
	quantity::text, unit_price::text, discount_percentage::text, discount_amount::text,
	subtotal::text, tax_rate::text, tax_amount::text, line_total::text, account_code
`

// GetByID retrieves an invoice by ID with all lines
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.InvoiceReceived, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *InvoiceRepository) getByID(ctx context.Context, q querier, id string) (*domain.InvoiceReceived, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("invoice", id)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices_received WHERE id = $1`
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("invoice", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get invoice")
	}

	lines, err := r.getLines(ctx, q, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *InvoiceRepository) getLines(ctx context.Context, q querier, invoiceID string) ([]*domain.InvoiceLine, error) {
	query := `SELECT ` + lineColumns + ` FROM invoice_received_lines WHERE invoice_id = $1 ORDER BY line_number`

	rows, err := q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get invoice lines")
	}
	defer rows.Close()

	lines := make([]*domain.InvoiceLine, 0)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan invoice line")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to iterate invoice lines")
	}
	return lines, nil
}

// UpdateApprovalState applies an approval transition and appends the
// matching history entry in one transaction. The update only matches while
// the stored approval status equals upd.ExpectedApprovalStatus, so of two
// concurrent transitions from the same state exactly one commits.
func (r *InvoiceRepository) UpdateApprovalState(ctx context.Context, id string, upd domain.ApprovalUpdate) (*domain.InvoiceReceived, error) {
	at := upd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var approvedBy, rejectedBy *string
	var approvedAt, rejectedAt *time.Time
	switch upd.ApprovalStatus {
	case domain.ApprovalApproved:
		approvedBy, approvedAt = &upd.ActorID, &at
	case domain.ApprovalRejected:
		rejectedBy, rejectedAt = &upd.ActorID, &at
	}

	var updated *domain.InvoiceReceived
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE invoices_received
			SET approval_status = $3::approval_status,
			    status          = $4::invoice_status,
			    approved_by     = COALESCE($5, approved_by),
			    approved_at     = COALESCE($6, approved_at),
			    rejected_by     = COALESCE($7, rejected_by),
			    rejected_at     = COALESCE($8, rejected_at),
			    rejected_reason = COALESCE($9, rejected_reason),
			    notes           = COALESCE($10, notes),
			    version         = version + 1,
			    updated_at      = $11
			WHERE id = $1 AND approval_status = $2::approval_status
		`
		tag, err := tx.Exec(ctx, query,
			id,
			string(upd.ExpectedApprovalStatus),
			string(upd.ApprovalStatus),
			string(upd.Status),
			approvedBy,
			approvedAt,
			rejectedBy,
			rejectedAt,
			upd.RejectedReason,
			upd.Notes,
			at,
		)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update approval state")
		}
		if tag.RowsAffected() == 0 {
			return r.missOrStale(ctx, tx, id)
		}

		if err := r.history.Append(ctx, tx, &domain.Approval{
			ID:         uuid.NewString(),
			InvoiceID:  id,
			ApproverID: upd.ActorID,
			Level:      upd.Level,
			Action:     upd.Action,
			Comments:   upd.Comments,
			CreatedAt:  at,
		}); err != nil {
			return err
		}

		updated, err = r.getByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SubmitForApproval stores the computed requirements and the initial
// approval status. It only matches invoices not yet in the approval lifecycle.
func (r *InvoiceRepository) SubmitForApproval(ctx context.Context, id string, upd domain.SubmissionUpdate) (*domain.InvoiceReceived, error) {
	var updated *domain.InvoiceReceived
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE invoices_received
			SET requires_manager_approval    = $2,
			    requires_accounting_approval = $3,
			    approval_status              = $4::approval_status,
			    status                       = $5::invoice_status,
			    version                      = version + 1,
			    updated_at                   = NOW()
			WHERE id = $1 AND approval_status IS NULL
		`
		tag, err := tx.Exec(ctx, query,
			id,
			upd.RequiresManagerApproval,
			upd.RequiresAccountingApproval,
			string(upd.ApprovalStatus),
			string(upd.Status),
		)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to submit invoice")
		}
		if tag.RowsAffected() == 0 {
			return r.missOrStale(ctx, tx, id)
		}

		updated, err = r.getByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyExtraction stores consolidated OCR metadata on the invoice.
func (r *InvoiceRepository) ApplyExtraction(ctx context.Context, id string, p domain.ExtractionProjection) (*domain.InvoiceReceived, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("invoice", id)
	}

	confidenceNotes := p.ConfidenceNotes
	if confidenceNotes == nil {
		confidenceNotes = []string{}
	}
	mergeNotes := p.MergeNotes
	if mergeNotes == nil {
		mergeNotes = []string{}
	}
	var raw []byte
	if len(p.RawPayload) > 0 {
		raw = p.RawPayload
	}

	query := `
		UPDATE invoices_received
		SET ocr_engine             = $2,
		    ocr_confidence         = $3,
		    ocr_confidence_notes   = $4,
		    ocr_merge_notes        = $5,
		    ocr_fallback_used      = $6,
		    requires_manual_review = $7,
		    ocr_raw_payload        = $8,
		    updated_at             = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		id,
		p.Engine,
		p.Confidence,
		confidenceNotes,
		mergeNotes,
		p.FallbackUsed,
		p.RequiresManualReview,
		raw,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to apply extraction")
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.NotFound("invoice", id)
	}
	return r.GetByID(ctx, id)
}

// GetApprovalHistory returns the approval trail for an invoice, oldest first.
func (r *InvoiceRepository) GetApprovalHistory(ctx context.Context, invoiceID string) ([]*domain.Approval, error) {
	return r.history.GetByInvoiceID(ctx, invoiceID)
}

// ListPendingApprovals returns invoices waiting at any of the given approval
// statuses, oldest first, optionally restricted to one centre. Lines are not loaded.
func (r *InvoiceRepository) ListPendingApprovals(ctx context.Context, filter domain.PendingFilter) ([]*domain.InvoiceReceived, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}
	if len(statuses) == 0 {
		return []*domain.InvoiceReceived{}, nil
	}

	var centre *string
	if filter.CentreCode != "" {
		centre = &filter.CentreCode
	}

	query := `SELECT ` + invoiceColumns + `
		FROM invoices_received
		WHERE approval_status::text = ANY($1)
		  AND ($2::text IS NULL OR centre_code = $2)
		ORDER BY invoice_date ASC NULLS LAST, created_at ASC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, statuses, centre, filter.Limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	invoices := make([]*domain.InvoiceReceived, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan pending invoice")
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to iterate pending approvals")
	}
	return invoices, nil
}

// missOrStale tells a missing invoice apart from one whose state moved on.
func (r *InvoiceRepository) missOrStale(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices_received WHERE id = $1)`, id).Scan(&exists); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check invoice")
	}
	if !exists {
		return apperrors.NotFound("invoice", id)
	}
	return apperrors.Stale("invoice", id)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanInvoice(row pgx.Row) (*domain.InvoiceReceived, error) {
	inv := &domain.InvoiceReceived{}
	var subtotal, taxTotal, total, status, approvalStatus string
	var raw []byte

	err := row.Scan(
		&inv.ID,
		&inv.SupplierID,
		&inv.CentreCode,
		&inv.InvoiceNumber,
		&inv.InvoiceDate,
		&inv.DueDate,
		&subtotal,
		&taxTotal,
		&total,
		&status,
		&approvalStatus,
		&inv.RequiresManagerApproval,
		&inv.RequiresAccountingApproval,
		&inv.ApprovedBy,
		&inv.ApprovedAt,
		&inv.RejectedBy,
		&inv.RejectedAt,
		&inv.RejectedReason,
		&inv.Notes,
		&inv.OCREngine,
		&inv.OCRConfidence,
		&inv.OCRConfidenceNotes,
		&inv.OCRMergeNotes,
		&inv.OCRFallbackUsed,
		&inv.RequiresManualReview,
		&raw,
		&inv.Version,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if inv.Subtotal, err = parseDecimal("subtotal", subtotal); err != nil {
		return nil, err
	}
	if inv.TaxTotal, err = parseDecimal("tax_total", taxTotal); err != nil {
		return nil, err
	}
	if inv.Total, err = parseDecimal("total", total); err != nil {
		return nil, err
	}
	inv.Status = domain.InvoiceStatus(status)
	inv.ApprovalStatus = domain.ApprovalStatus(approvalStatus)
	if len(raw) > 0 {
		inv.OCRRawPayload = raw
	}
	return inv, nil
}

func scanLine(rows pgx.Rows) (*domain.InvoiceLine, error) {
	line := &domain.InvoiceLine{}
	var qty, price, discPct, discAmt, subtotal, taxRate, taxAmt, lineTotal string

	err := rows.Scan(
		&line.ID,
		&line.InvoiceID,
		&line.LineNumber,
		&line.Description,
		&qty,
		&price,
		&discPct,
		&discAmt,
		&subtotal,
		&taxRate,
		&taxAmt,
		&lineTotal,
		&line.AccountCode,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"quantity", qty, &line.Quantity},
		{"unit_price", price, &line.UnitPrice},
		{"discount_percentage", discPct, &line.DiscountPercentage},
		{"discount_amount", discAmt, &line.DiscountAmount},
		{"subtotal", subtotal, &line.Subtotal},
		{"tax_rate", taxRate, &line.TaxRate},
		{"tax_amount", taxAmt, &line.TaxAmount},
		{"line_total", lineTotal, &line.LineTotal},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(f.name, f.raw); err != nil {
			return nil, err
		}
	}
	return line, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return d, nil
}
