package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/approval"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/ocr"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/validation"
)

// Notification event types.
const (
	EventApprovalRequired     = "invoice_approval_required"
	EventInvoiceApproved      = "invoice_approved"
	EventInvoiceRejected      = "invoice_rejected"
	EventManualReviewRequired = "invoice_manual_review_required"
)

// InvoiceStore is the persistence collaborator.
type InvoiceStore interface {
	ApprovalStateWriter
	GetByID(ctx context.Context, id string) (*domain.InvoiceReceived, error)
	SubmitForApproval(ctx context.Context, id string, upd domain.SubmissionUpdate) (*domain.InvoiceReceived, error)
	ApplyExtraction(ctx context.Context, id string, p domain.ExtractionProjection) (*domain.InvoiceReceived, error)
	GetApprovalHistory(ctx context.Context, invoiceID string) ([]*domain.Approval, error)
	ListPendingApprovals(ctx context.Context, filter domain.PendingFilter) ([]*domain.InvoiceReceived, error)
}

// RulesProvider is the configuration collaborator. A nil centreCode returns
// the organization-wide rules.
type RulesProvider interface {
	GetApprovalRules(ctx context.Context, centreCode *string) ([]domain.ApprovalRule, error)
}

// Notifier publishes invoice events. Implementations must not block the
// caller on delivery failures.
type Notifier interface {
	PublishInvoiceEvent(ctx context.Context, eventType string, invoice *domain.InvoiceReceived, actorID string, payload map[string]interface{})
}

// InvoiceService is the API-facing facade over validation, routing,
// the approval use cases and OCR consolidation.
type InvoiceService struct {
	store        InvoiceStore
	rules        RulesProvider
	validator    *validation.InvoiceValidator
	engine       *approval.Engine
	consolidator *ocr.Consolidator
	approve      *ApproveInvoiceUseCase
	reject       *RejectInvoiceUseCase
	notifier     Notifier
	log          *logger.Logger
}

// NewInvoiceService creates a new invoice service. notifier may be nil.
func NewInvoiceService(
	store InvoiceStore,
	rules RulesProvider,
	validator *validation.InvoiceValidator,
	engine *approval.Engine,
	consolidator *ocr.Consolidator,
	notifier Notifier,
	log *logger.Logger,
) *InvoiceService {
	return &InvoiceService{
		store:        store,
		rules:        rules,
		validator:    validator,
		engine:       engine,
		consolidator: consolidator,
		approve:      NewApproveInvoiceUseCase(engine, validator, store),
		reject:       NewRejectInvoiceUseCase(engine, validator, store),
		notifier:     notifier,
		log:          log,
	}
}

// ApproveRequest represents an approve invoice request
type ApproveRequest struct {
	InvoiceID  string
	ApproverID string
	Role       domain.Role
	Level      domain.ApprovalLevel
	Comments   *string
}

// RejectRequest represents a reject invoice request
type RejectRequest struct {
	InvoiceID  string
	RejectorID string
	Role       domain.Role
	Reason     string
	Comments   *string
}

// SubmitResult is returned by SubmitForApproval. When Validation is not
// valid, nothing was persisted and Invoice is nil.
type SubmitResult struct {
	Validation   validation.Result       `json:"validation"`
	Requirements *approval.Requirements  `json:"requirements,omitempty"`
	Invoice      *domain.InvoiceReceived `json:"invoice,omitempty"`
}

// GetInvoice returns an invoice with its lines.
func (s *InvoiceService) GetInvoice(ctx context.Context, id string) (*domain.InvoiceReceived, error) {
	return s.store.GetByID(ctx, id)
}

// ValidateInvoice runs the structural validator.
func (s *InvoiceService) ValidateInvoice(invoice *domain.InvoiceReceived, lines []*domain.InvoiceLine) validation.Result {
	return s.validator.ValidateInvoiceReceived(invoice, lines)
}

// GetApprovalRequirements resolves rules for centreCode and computes the
// approvals an invoice of the given total needs.
func (s *InvoiceService) GetApprovalRequirements(ctx context.Context, total decimal.Decimal, centreCode *string) (approval.Requirements, error) {
	if total.IsNegative() {
		return approval.Requirements{}, apperrors.InvalidInput("total", "total cannot be negative")
	}
	rules, err := s.resolveRules(ctx, total, centreCode)
	if err != nil {
		return approval.Requirements{}, err
	}
	return s.engine.DetermineApprovalRequirements(total, rules), nil
}

// resolveRules prefers centre rules when one of them matches total and
// otherwise falls back to the organization-wide set.
func (s *InvoiceService) resolveRules(ctx context.Context, total decimal.Decimal, centreCode *string) ([]domain.ApprovalRule, error) {
	if centreCode != nil && strings.TrimSpace(*centreCode) != "" {
		centreRules, err := s.rules.GetApprovalRules(ctx, centreCode)
		if err != nil {
			return nil, err
		}
		if _, ok := approval.MatchRule(total.Round(2), centreRules); ok {
			return centreRules, nil
		}
	}
	return s.rules.GetApprovalRules(ctx, nil)
}

// SubmitForApproval validates a draft invoice and moves it into the
// approval lifecycle with its requirements frozen.
func (s *InvoiceService) SubmitForApproval(ctx context.Context, invoiceID, actorID string) (*SubmitResult, error) {
	inv, err := s.store.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.InApprovalLifecycle() {
		return nil, apperrors.Conflict(apperrors.ReasonAlreadySubmitted,
			fmt.Sprintf("invoice already submitted (approval status: %s)", inv.ApprovalStatus))
	}

	result := &SubmitResult{Validation: s.validator.ValidateInvoiceReceived(inv, inv.Lines)}
	if !result.Validation.IsValid {
		s.log.Info().
			Str("invoice_id", invoiceID).
			Strs("codes", result.Validation.Codes()).
			Msg("Invoice failed validation on submit")
		return result, nil
	}

	var centre *string
	if inv.CentreCode != "" {
		centre = &inv.CentreCode
	}
	req, err := s.GetApprovalRequirements(ctx, inv.Total, centre)
	if err != nil {
		return nil, err
	}
	result.Requirements = &req

	initial := s.engine.InitialApprovalStatus(req)
	updated, err := s.store.SubmitForApproval(ctx, invoiceID, domain.SubmissionUpdate{
		RequiresManagerApproval:    req.RequiresManagerApproval,
		RequiresAccountingApproval: req.RequiresAccountingApproval,
		ApprovalStatus:             initial,
		Status:                     approval.InvoiceStatusFor(initial),
	})
	if err != nil {
		return nil, err
	}
	result.Invoice = updated

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("approval_status", string(initial)).
		Bool("requires_manager", req.RequiresManagerApproval).
		Bool("requires_accounting", req.RequiresAccountingApproval).
		Str("actor_id", actorID).
		Msg("Invoice submitted for approval")

	s.publish(ctx, EventApprovalRequired, updated, actorID, map[string]interface{}{
		"approval_level": string(req.NextApprovalLevel),
		"total":          updated.Total.StringFixed(2),
	})

	return result, nil
}

// ApproveInvoice loads the invoice and runs the approve use case.
func (s *InvoiceService) ApproveInvoice(ctx context.Context, req *ApproveRequest) (*TransitionResult, error) {
	inv, err := s.store.GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	// An omitted level means the gate the invoice is currently waiting on.
	level := req.Level
	if level == "" {
		if res := s.validator.CanApprove(inv); !res.IsValid {
			return nil, conflictFrom(res)
		}
		pending, ok := s.engine.GetPendingApprovalLevel(inv)
		if !ok {
			return nil, apperrors.Conflict(apperrors.ReasonNotPending, "invoice is not pending approval")
		}
		level = pending
	}

	res, err := s.approve.Execute(ctx, ApproveInput{
		Invoice:    inv,
		ApproverID: req.ApproverID,
		Role:       req.Role,
		Level:      level,
		Comments:   req.Comments,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", req.InvoiceID).
		Str("approval_status", string(res.ApprovalStatus)).
		Str("level", string(level)).
		Str("actor_id", req.ApproverID).
		Msg("Invoice approved")

	target := invoiceOrFallback(res.Invoice, inv)
	if res.ApprovalStatus == domain.ApprovalApproved {
		s.publish(ctx, EventInvoiceApproved, target, req.ApproverID, map[string]interface{}{
			"approval_level": string(level),
		})
	} else if next, ok := s.engine.GetPendingApprovalLevel(&domain.InvoiceReceived{ApprovalStatus: res.ApprovalStatus}); ok {
		s.publish(ctx, EventApprovalRequired, target, req.ApproverID, map[string]interface{}{
			"approval_level": string(next),
		})
	}

	return res, nil
}

// RejectInvoice loads the invoice and runs the reject use case.
func (s *InvoiceService) RejectInvoice(ctx context.Context, req *RejectRequest) (*TransitionResult, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required").
			WithReason(apperrors.ReasonReasonRequired)
	}

	inv, err := s.store.GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	res, err := s.reject.Execute(ctx, RejectInput{
		Invoice:    inv,
		RejectorID: req.RejectorID,
		Role:       req.Role,
		Reason:     req.Reason,
		Comments:   req.Comments,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", req.InvoiceID).
		Str("approval_status", string(res.ApprovalStatus)).
		Str("actor_id", req.RejectorID).
		Msg("Invoice rejected")

	s.publish(ctx, EventInvoiceRejected, invoiceOrFallback(res.Invoice, inv), req.RejectorID, map[string]interface{}{
		"reason": strings.TrimSpace(req.Reason),
	})

	return res, nil
}

// GetApprovalHistory returns the approval trail for an invoice, oldest first.
func (s *InvoiceService) GetApprovalHistory(ctx context.Context, invoiceID string) ([]*domain.Approval, error) {
	if _, err := s.store.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.store.GetApprovalHistory(ctx, invoiceID)
}

// Page size bounds for ListPendingApprovals.
const (
	DefaultPendingLimit = 50
	MaxPendingLimit     = 200
)

// ListPendingApprovals returns the approval queue a role can act on: every
// invoice waiting at a level the role holds the capability for.
func (s *InvoiceService) ListPendingApprovals(ctx context.Context, role domain.Role, centreCode string, limit int) ([]*domain.InvoiceReceived, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	if limit > MaxPendingLimit {
		limit = MaxPendingLimit
	}

	filter := domain.PendingFilter{CentreCode: strings.TrimSpace(centreCode), Limit: limit}
	for _, level := range domain.ApprovalLevels() {
		if s.engine.CanUserApprove(role, level) {
			filter.Statuses = append(filter.Statuses, pendingStatusFor(level))
		}
	}
	if len(filter.Statuses) == 0 {
		return []*domain.InvoiceReceived{}, nil
	}
	return s.store.ListPendingApprovals(ctx, filter)
}

func pendingStatusFor(level domain.ApprovalLevel) domain.ApprovalStatus {
	if level == domain.LevelManager {
		return domain.ApprovalPendingManager
	}
	return domain.ApprovalPendingAccounting
}

// RecordExtraction consolidates extraction passes and stores the result
// on the invoice. Review flags never block the approval workflow.
func (s *InvoiceService) RecordExtraction(ctx context.Context, invoiceID string, results []ocr.ExtractionResult) (*ocr.Consolidation, error) {
	if len(results) == 0 {
		return nil, apperrors.InvalidInput("results", "at least one extraction result is required")
	}

	consolidated := s.consolidator.Consolidate(results)
	projection, err := consolidated.Projection()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build extraction projection")
	}

	updated, err := s.store.ApplyExtraction(ctx, invoiceID, projection)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("engine", consolidated.Engine).
		Float64("confidence", consolidated.Confidence).
		Bool("manual_review", consolidated.RequiresManualReview).
		Bool("fallback_used", consolidated.FallbackUsed).
		Msg("Extraction recorded")

	if consolidated.RequiresManualReview {
		s.publish(ctx, EventManualReviewRequired, updated, "", map[string]interface{}{
			"engine":     consolidated.Engine,
			"confidence": consolidated.Confidence,
			"notes":      consolidated.ConfidenceNotes,
		})
	}

	return consolidated, nil
}

func (s *InvoiceService) publish(ctx context.Context, eventType string, inv *domain.InvoiceReceived, actorID string, payload map[string]interface{}) {
	if s.notifier == nil || inv == nil {
		return
	}
	s.notifier.PublishInvoiceEvent(ctx, eventType, inv, actorID, payload)
}

func invoiceOrFallback(updated, loaded *domain.InvoiceReceived) *domain.InvoiceReceived {
	if updated != nil {
		return updated
	}
	return loaded
}
