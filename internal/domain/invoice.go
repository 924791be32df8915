package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the operational lifecycle of a received invoice.
type InvoiceStatus string

const (
	StatusDraft    InvoiceStatus = "draft"
	StatusPending  InvoiceStatus = "pending"
	StatusApproved InvoiceStatus = "approved"
	StatusRejected InvoiceStatus = "rejected"
	StatusPosted   InvoiceStatus = "posted"
	StatusPaid     InvoiceStatus = "paid"
)

// InvoiceReceived is a supplier invoice moving through intake and approval.
type InvoiceReceived struct {
	ID            string          `json:"id"`
	SupplierID    string          `json:"supplier_id"`
	CentreCode    string          `json:"centre_code"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`

	Status         InvoiceStatus  `json:"status"`
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty"`

	// Computed once at submission so later steps do not depend on rules
	// that may have changed since.
	RequiresManagerApproval    bool `json:"requires_manager_approval"`
	RequiresAccountingApproval bool `json:"requires_accounting_approval"`

	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedBy     *string    `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	RejectedReason *string    `json:"rejected_reason,omitempty"`
	Notes          *string    `json:"notes,omitempty"`

	OCREngine            string          `json:"ocr_engine,omitempty"`
	OCRConfidence        *float64        `json:"ocr_confidence,omitempty"`
	OCRConfidenceNotes   []string        `json:"ocr_confidence_notes,omitempty"`
	OCRMergeNotes        []string        `json:"ocr_merge_notes,omitempty"`
	OCRFallbackUsed      bool            `json:"ocr_fallback_used"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	OCRRawPayload        json.RawMessage `json:"ocr_raw_payload,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []*InvoiceLine `json:"lines,omitempty"`
}

// InvoiceLine is one line of a received invoice, ordered by LineNumber.
type InvoiceLine struct {
	ID                 string          `json:"id"`
	InvoiceID          string          `json:"invoice_id"`
	LineNumber         int             `json:"line_number"`
	Description        string          `json:"description"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	LineTotal          decimal.Decimal `json:"line_total"`
	AccountCode        string          `json:"account_code"`
}

// InApprovalLifecycle reports whether the invoice has been submitted for approval.
func (i *InvoiceReceived) InApprovalLifecycle() bool {
	return i.ApprovalStatus != ""
}

// ExtractionProjection is the consolidated OCR metadata persisted on an invoice.
type ExtractionProjection struct {
	Engine               string
	Confidence           float64
	ConfidenceNotes      []string
	MergeNotes           []string
	FallbackUsed         bool
	RequiresManualReview bool
	RawPayload           json.RawMessage
}
