package handler

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/invoicesv1"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/middleware"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/service"
)

// GRPCHandler implements the ApprovalService gRPC interface
type GRPCHandler struct {
	invoicesv1.UnimplementedApprovalServiceServer
	invoiceService *service.InvoiceService
	logger         zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(invoiceService *service.InvoiceService, log *logger.Logger) *GRPCHandler {
	return &GRPCHandler{
		invoiceService: invoiceService,
		logger:         log.With().Str("handler", "grpc").Logger(),
	}
}

// caller returns the authenticated identity or an Unauthenticated status.
func caller(ctx context.Context) (middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(ctx)
	if !ok {
		return id, status.Error(codes.Unauthenticated, "caller identity required")
	}
	return id, nil
}

// ApproveInvoice records an approval at the requested (or pending) level
func (h *GRPCHandler) ApproveInvoice(ctx context.Context, req *invoicesv1.ApproveInvoiceRequest) (*invoicesv1.TransitionResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("invoice_id", req.InvoiceID).
		Str("level", req.Level).
		Str("actor_id", id.UserID).
		Msg("gRPC ApproveInvoice called")

	res, err := h.invoiceService.ApproveInvoice(ctx, &service.ApproveRequest{
		InvoiceID:  req.InvoiceID,
		ApproverID: id.UserID,
		Role:       id.Role,
		Level:      domain.ApprovalLevel(strings.ToLower(strings.TrimSpace(req.Level))),
		Comments:   optional(req.Comments),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("invoice_id", req.InvoiceID).Msg("Failed to approve invoice")
		return nil, mapErrorToGRPC(err)
	}
	return transitionToProto(req.InvoiceID, res), nil
}

// RejectInvoice rejects an invoice at its pending level
func (h *GRPCHandler) RejectInvoice(ctx context.Context, req *invoicesv1.RejectInvoiceRequest) (*invoicesv1.TransitionResponse, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("invoice_id", req.InvoiceID).
		Str("actor_id", id.UserID).
		Msg("gRPC RejectInvoice called")

	res, err := h.invoiceService.RejectInvoice(ctx, &service.RejectRequest{
		InvoiceID:  req.InvoiceID,
		RejectorID: id.UserID,
		Role:       id.Role,
		Reason:     req.Reason,
		Comments:   optional(req.Comments),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("invoice_id", req.InvoiceID).Msg("Failed to reject invoice")
		return nil, mapErrorToGRPC(err)
	}
	return transitionToProto(req.InvoiceID, res), nil
}

// GetApprovalRequirements computes the approvals needed for a total
func (h *GRPCHandler) GetApprovalRequirements(ctx context.Context, req *invoicesv1.GetApprovalRequirementsRequest) (*invoicesv1.GetApprovalRequirementsResponse, error) {
	total, err := decimal.NewFromString(strings.TrimSpace(req.Total))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid total %q", req.Total)
	}

	res, err := h.invoiceService.GetApprovalRequirements(ctx, total, optional(req.CentreCode))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &invoicesv1.GetApprovalRequirementsResponse{
		RequiresManagerApproval:    res.RequiresManagerApproval,
		RequiresAccountingApproval: res.RequiresAccountingApproval,
		NextApprovalLevel:          string(res.NextApprovalLevel),
		MatchedRule:                res.MatchedRule,
	}, nil
}

// ValidateInvoice runs structural validation; failures are returned as data
func (h *GRPCHandler) ValidateInvoice(_ context.Context, req *invoicesv1.ValidateInvoiceRequest) (*invoicesv1.ValidateInvoiceResponse, error) {
	lines := req.Lines
	if lines == nil && req.Invoice != nil {
		lines = req.Invoice.Lines
	}
	res := h.invoiceService.ValidateInvoice(req.Invoice, lines)
	return &invoicesv1.ValidateInvoiceResponse{IsValid: res.IsValid, Errors: res.Errors}, nil
}

// Helper functions

func transitionToProto(invoiceID string, res *service.TransitionResult) *invoicesv1.TransitionResponse {
	out := &invoicesv1.TransitionResponse{
		InvoiceID:      invoiceID,
		ApprovalStatus: string(res.ApprovalStatus),
		Status:         string(res.Status),
	}
	if inv := res.Invoice; inv != nil {
		out.Version = inv.Version
		out.ApprovedBy = deref(inv.ApprovedBy)
		out.ApprovedAt = inv.ApprovedAt
		out.RejectedBy = deref(inv.RejectedBy)
		out.RejectedAt = inv.RejectedAt
		out.RejectedReason = deref(inv.RejectedReason)
	}
	return out
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// mapErrorToGRPC maps application error codes to gRPC status codes
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	msg := err.Error()
	if reason := apperrors.ReasonOf(err); reason != "" {
		msg = reason + ": " + msg
	}

	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case apperrors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case apperrors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, msg)
	case apperrors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case apperrors.ErrCodeStaleState:
		return status.Error(codes.Aborted, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
