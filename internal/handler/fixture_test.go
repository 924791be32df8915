package handler_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/approval"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/ocr"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/service"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/validation"
)

// memStore keeps invoices in memory with the same conditional-update
// contract as the database repository.
type memStore struct {
	mu       sync.Mutex
	invoices map[string]*domain.InvoiceReceived
	history  map[string][]*domain.Approval
}

func newMemStore(invoices ...*domain.InvoiceReceived) *memStore {
	s := &memStore{
		invoices: make(map[string]*domain.InvoiceReceived),
		history:  make(map[string][]*domain.Approval),
	}
	for _, inv := range invoices {
		s.invoices[inv.ID] = inv
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.InvoiceReceived, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", id)
	}
	cp := *inv
	return &cp, nil
}

func (s *memStore) UpdateApprovalState(_ context.Context, id string, upd domain.ApprovalUpdate) (*domain.InvoiceReceived, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", id)
	}
	if inv.ApprovalStatus != upd.ExpectedApprovalStatus {
		return nil, apperrors.Stale("invoice", id)
	}

	inv.ApprovalStatus = upd.ApprovalStatus
	inv.Status = upd.Status
	at := upd.At
	actor := upd.ActorID
	switch upd.Action {
	case domain.ActionApproved:
		if upd.ApprovalStatus == domain.ApprovalApproved {
			inv.ApprovedBy, inv.ApprovedAt = &actor, &at
		}
	case domain.ActionRejected:
		inv.RejectedBy, inv.RejectedAt = &actor, &at
		inv.RejectedReason = upd.RejectedReason
		inv.Notes = upd.Notes
	}
	inv.Version++

	s.history[id] = append(s.history[id], &domain.Approval{
		ID:         id + "-" + string(upd.Level) + "-" + string(upd.Action),
		InvoiceID:  id,
		ApproverID: upd.ActorID,
		Level:      upd.Level,
		Action:     upd.Action,
		Comments:   upd.Comments,
		CreatedAt:  at,
	})
	cp := *inv
	return &cp, nil
}

func (s *memStore) SubmitForApproval(_ context.Context, id string, upd domain.SubmissionUpdate) (*domain.InvoiceReceived, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", id)
	}
	if inv.InApprovalLifecycle() {
		return nil, apperrors.Conflict(apperrors.ReasonAlreadySubmitted, "invoice already submitted")
	}
	inv.RequiresManagerApproval = upd.RequiresManagerApproval
	inv.RequiresAccountingApproval = upd.RequiresAccountingApproval
	inv.ApprovalStatus = upd.ApprovalStatus
	inv.Status = upd.Status
	inv.Version++
	cp := *inv
	return &cp, nil
}

func (s *memStore) ApplyExtraction(_ context.Context, id string, p domain.ExtractionProjection) (*domain.InvoiceReceived, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", id)
	}
	conf := p.Confidence
	inv.OCREngine = p.Engine
	inv.OCRConfidence = &conf
	inv.OCRConfidenceNotes = p.ConfidenceNotes
	inv.OCRMergeNotes = p.MergeNotes
	inv.OCRFallbackUsed = p.FallbackUsed
	inv.RequiresManualReview = p.RequiresManualReview
	inv.OCRRawPayload = p.RawPayload
	cp := *inv
	return &cp, nil
}

func (s *memStore) GetApprovalHistory(_ context.Context, id string) ([]*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Approval{}, s.history[id]...), nil
}

func (s *memStore) ListPendingApprovals(_ context.Context, filter domain.PendingFilter) ([]*domain.InvoiceReceived, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.InvoiceReceived, 0)
	for _, inv := range s.invoices {
		if !slices.Contains(filter.Statuses, inv.ApprovalStatus) {
			continue
		}
		if filter.CentreCode != "" && inv.CentreCode != filter.CentreCode {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *domain.InvoiceReceived) int { return strings.Compare(a.ID, b.ID) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type staticRules []domain.ApprovalRule

func (r staticRules) GetApprovalRules(_ context.Context, centreCode *string) ([]domain.ApprovalRule, error) {
	if centreCode != nil {
		return nil, nil
	}
	return r, nil
}

func newService(store service.InvoiceStore) *service.InvoiceService {
	return service.NewInvoiceService(
		store,
		staticRules(approval.DefaultRules()),
		validation.NewInvoiceValidator(validation.Options{}),
		approval.NewEngine(),
		ocr.NewConsolidator(ocr.Options{}),
		nil,
		logger.Nop(),
	)
}

func draft(id, total string) *domain.InvoiceReceived {
	date := time.Now().AddDate(0, 0, -3)
	amount := decimal.RequireFromString(total)
	return &domain.InvoiceReceived{
		ID:            id,
		SupplierID:    "sup-1",
		InvoiceNumber: "F-" + id,
		InvoiceDate:   &date,
		Subtotal:      amount,
		Total:         amount,
		Status:        domain.StatusDraft,
		Lines: []*domain.InvoiceLine{{
			LineNumber:  1,
			Description: "Aceite de oliva",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount,
			TaxRate:     decimal.NewFromInt(10),
			AccountCode: "6000001",
		}},
	}
}

func pending(id, total string, status domain.ApprovalStatus) *domain.InvoiceReceived {
	inv := draft(id, total)
	inv.Status = domain.StatusPending
	inv.ApprovalStatus = status
	inv.RequiresAccountingApproval = true
	inv.RequiresManagerApproval = status == domain.ApprovalPendingManager
	return inv
}
