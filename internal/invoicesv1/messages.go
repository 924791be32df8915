package invoicesv1

import (
	"time"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/validation"
)

type ApproveInvoiceRequest struct {
	InvoiceID string `json:"invoice_id"`
	Level     string `json:"level"`
	Comments  string `json:"comments,omitempty"`
}

type RejectInvoiceRequest struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
	Comments  string `json:"comments,omitempty"`
}

// TransitionResponse reports the state committed by an approve or reject.
type TransitionResponse struct {
	InvoiceID      string     `json:"invoice_id"`
	ApprovalStatus string     `json:"approval_status"`
	Status         string     `json:"status"`
	Version        int        `json:"version,omitempty"`
	ApprovedBy     string     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedBy     string     `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	RejectedReason string     `json:"rejected_reason,omitempty"`
}

type GetApprovalRequirementsRequest struct {
	// Total is a decimal string, e.g. "1250.00".
	Total      string `json:"total"`
	CentreCode string `json:"centre_code,omitempty"`
}

type GetApprovalRequirementsResponse struct {
	RequiresManagerApproval    bool   `json:"requires_manager_approval"`
	RequiresAccountingApproval bool   `json:"requires_accounting_approval"`
	NextApprovalLevel          string `json:"next_approval_level"`
	MatchedRule                bool   `json:"matched_rule"`
}

type ValidateInvoiceRequest struct {
	Invoice *domain.InvoiceReceived `json:"invoice"`
	Lines   []*domain.InvoiceLine   `json:"lines"`
}

type ValidateInvoiceResponse struct {
	IsValid bool               `json:"is_valid"`
	Errors  []validation.Error `json:"errors"`
}
