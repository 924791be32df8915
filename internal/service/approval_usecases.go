package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/approval"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/validation"
)

// ApprovalStateWriter applies a computed approval transition. Implementations
// must make the write conditional on upd.ExpectedApprovalStatus and return an
// apperrors STALE_STATE error when the stored status has moved on.
type ApprovalStateWriter interface {
	UpdateApprovalState(ctx context.Context, invoiceID string, upd domain.ApprovalUpdate) (*domain.InvoiceReceived, error)
}

// TransitionResult is the outcome of a committed approve or reject.
type TransitionResult struct {
	ApprovalStatus domain.ApprovalStatus   `json:"approval_status"`
	Status         domain.InvoiceStatus    `json:"status"`
	Invoice        *domain.InvoiceReceived `json:"invoice,omitempty"`
}

// ApproveInput carries an approval decision.
type ApproveInput struct {
	Invoice    *domain.InvoiceReceived
	ApproverID string
	Role       domain.Role
	Level      domain.ApprovalLevel
	Comments   *string
}

// ApproveInvoiceUseCase authorizes an approval, computes the next state and
// delegates the write.
type ApproveInvoiceUseCase struct {
	engine    *approval.Engine
	validator *validation.InvoiceValidator
	writer    ApprovalStateWriter
	now       func() time.Time
}

// NewApproveInvoiceUseCase creates the approve use case.
func NewApproveInvoiceUseCase(engine *approval.Engine, validator *validation.InvoiceValidator, writer ApprovalStateWriter) *ApproveInvoiceUseCase {
	return &ApproveInvoiceUseCase{engine: engine, validator: validator, writer: writer, now: time.Now}
}

// Execute runs the approval. Every business check happens before the writer
// is called; writer errors are returned unchanged.
func (uc *ApproveInvoiceUseCase) Execute(ctx context.Context, in ApproveInput) (*TransitionResult, error) {
	inv := in.Invoice
	if inv == nil {
		return nil, apperrors.InvalidInput("invoice", "invoice is required")
	}
	if strings.TrimSpace(in.ApproverID) == "" {
		return nil, apperrors.InvalidInput("approver_id", "approver is required")
	}
	if !in.Level.Valid() {
		return nil, apperrors.InvalidInput("approval_level", fmt.Sprintf("unknown approval level %q", in.Level))
	}

	if !uc.engine.CanUserApprove(in.Role, in.Level) {
		return nil, apperrors.Forbidden(apperrors.ReasonPermissionDenied,
			fmt.Sprintf("role %q lacks the %s approval capability", in.Role, in.Level))
	}

	if res := uc.validator.CanApprove(inv); !res.IsValid {
		return nil, conflictFrom(res)
	}

	pending, ok := uc.engine.GetPendingApprovalLevel(inv)
	if !ok {
		return nil, apperrors.Conflict(apperrors.ReasonNotPending, "invoice is not pending approval")
	}
	if in.Level != pending && in.Role != domain.RoleAdmin {
		return nil, apperrors.Forbidden(apperrors.ReasonLevelMismatch,
			fmt.Sprintf("invoice is waiting for %s approval, cannot approve at %s level", pending, in.Level))
	}

	next := uc.engine.DetermineNextApprovalStatus(inv, in.Level, domain.ActionApproved)
	if res := uc.validator.CanChangeStatus(inv.ApprovalStatus, next); !res.IsValid {
		return nil, conflictFrom(res)
	}
	status := approval.InvoiceStatusFor(next)

	updated, err := uc.writer.UpdateApprovalState(ctx, inv.ID, domain.ApprovalUpdate{
		ExpectedApprovalStatus: inv.ApprovalStatus,
		ApprovalStatus:         next,
		Status:                 status,
		ActorID:                in.ApproverID,
		Level:                  in.Level,
		Action:                 domain.ActionApproved,
		Comments:               nonEmpty(in.Comments),
		At:                     uc.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return &TransitionResult{ApprovalStatus: next, Status: status, Invoice: updated}, nil
}

// RejectInput carries a rejection decision.
type RejectInput struct {
	Invoice    *domain.InvoiceReceived
	RejectorID string
	Role       domain.Role
	Reason     string
	Comments   *string
}

// RejectInvoiceUseCase authorizes a rejection and delegates the write.
type RejectInvoiceUseCase struct {
	engine    *approval.Engine
	validator *validation.InvoiceValidator
	writer    ApprovalStateWriter
	now       func() time.Time
}

// NewRejectInvoiceUseCase creates the reject use case.
func NewRejectInvoiceUseCase(engine *approval.Engine, validator *validation.InvoiceValidator, writer ApprovalStateWriter) *RejectInvoiceUseCase {
	return &RejectInvoiceUseCase{engine: engine, validator: validator, writer: writer, now: time.Now}
}

// Execute runs the rejection. Comments are appended to existing notes.
func (uc *RejectInvoiceUseCase) Execute(ctx context.Context, in RejectInput) (*TransitionResult, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required").
			WithReason(apperrors.ReasonReasonRequired)
	}

	inv := in.Invoice
	if inv == nil {
		return nil, apperrors.InvalidInput("invoice", "invoice is required")
	}
	if strings.TrimSpace(in.RejectorID) == "" {
		return nil, apperrors.InvalidInput("rejector_id", "rejector is required")
	}

	if res := uc.validator.CanReject(inv); !res.IsValid {
		return nil, conflictFrom(res)
	}

	level, ok := uc.engine.GetPendingApprovalLevel(inv)
	if !ok {
		return nil, apperrors.Conflict(apperrors.ReasonNotPending, "invoice is not pending approval")
	}
	if !uc.engine.CanUserApprove(in.Role, level) {
		return nil, apperrors.Forbidden(apperrors.ReasonPermissionDenied,
			fmt.Sprintf("role %q lacks the %s approval capability required to reject", in.Role, level))
	}

	next := uc.engine.DetermineNextApprovalStatus(inv, level, domain.ActionRejected)
	status := approval.InvoiceStatusFor(next)

	comments := nonEmpty(in.Comments)
	history := comments
	if history == nil {
		history = &reason
	}

	updated, err := uc.writer.UpdateApprovalState(ctx, inv.ID, domain.ApprovalUpdate{
		ExpectedApprovalStatus: inv.ApprovalStatus,
		ApprovalStatus:         next,
		Status:                 status,
		ActorID:                in.RejectorID,
		Level:                  level,
		Action:                 domain.ActionRejected,
		RejectedReason:         &reason,
		Notes:                  appendNotes(inv.Notes, comments),
		Comments:               history,
		At:                     uc.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return &TransitionResult{ApprovalStatus: next, Status: status, Invoice: updated}, nil
}

// conflictFrom turns a failed transition check into a CONFLICT error whose
// reason is the validator code.
func conflictFrom(res validation.Result) error {
	if len(res.Errors) == 0 {
		return apperrors.Conflict(apperrors.ReasonInvalidTransition, "transition not allowed")
	}
	first := res.Errors[0]
	return apperrors.Conflict(first.Code, first.Message)
}

// appendNotes concatenates comments onto existing notes.
func appendNotes(existing, comments *string) *string {
	if comments == nil {
		return existing
	}
	if existing == nil || strings.TrimSpace(*existing) == "" {
		c := *comments
		return &c
	}
	joined := *existing + "\n" + *comments
	return &joined
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
