package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// Error codes produced by InvoiceValidator.
const (
	CodeSupplierRequired        = "SUPPLIER_REQUIRED"
	CodeInvoiceNumberRequired   = "INVOICE_NUMBER_REQUIRED"
	CodeInvoiceDateRequired     = "INVOICE_DATE_REQUIRED"
	CodeFutureInvoiceDate       = "FUTURE_INVOICE_DATE"
	CodeLinesRequired           = "LINES_REQUIRED"
	CodeTotalTooLow             = "TOTAL_TOO_LOW"
	CodeLineDescriptionRequired = "LINE_DESCRIPTION_REQUIRED"
	CodeInvalidQuantity         = "INVALID_QUANTITY"
	CodeInvalidUnitPrice        = "INVALID_UNIT_PRICE"
	CodeInvalidDiscount         = "INVALID_DISCOUNT"
	CodeInvalidTaxRate          = "INVALID_TAX_RATE"
	CodeInvalidAccountCode      = "INVALID_ACCOUNT_CODE"
	CodeInvalidTransition       = "INVALID_STATUS_TRANSITION"
	CodeAlreadyApproved         = "ALREADY_APPROVED"
	CodeAlreadyRejected         = "ALREADY_REJECTED"
	CodeCannotRejectApproved    = "CANNOT_REJECT_APPROVED"
)

// DefaultAccountCodeMinLength is the shortest chart-of-accounts code accepted.
const DefaultAccountCodeMinLength = 3

var accountCodePattern = regexp.MustCompile(`^[0-9]+$`)

var hundred = decimal.NewFromInt(100)

// DefaultTaxRates is the allowed set of tax rates, in percentage points.
func DefaultTaxRates() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.NewFromInt(0),
		decimal.NewFromInt(4),
		decimal.NewFromInt(10),
		decimal.NewFromInt(21),
	}
}

// Error is a single structural validation failure.
type Error struct {
	Code      string `json:"code"`
	Field     string `json:"field"`
	Message   string `json:"message"`
	LineIndex *int   `json:"line_index,omitempty"`
}

// Result is the outcome of a validation pass. Errors are accumulated.
type Result struct {
	IsValid bool    `json:"is_valid"`
	Errors  []Error `json:"errors"`
}

func newResult(errs []Error) Result {
	if errs == nil {
		errs = []Error{}
	}
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// HasCode reports whether the result contains an error with the given code.
func (r Result) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the error codes in order.
func (r Result) Codes() []string {
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

// Options configures an InvoiceValidator.
type Options struct {
	AccountCodeMinLength int
	AllowedTaxRates      []decimal.Decimal
	// MinTotal is an exclusive lower bound on the invoice total.
	MinTotal decimal.Decimal
	Now      func() time.Time
}

// InvoiceValidator gates structural correctness and legal approval
// transitions. It never mutates its inputs and is safe for concurrent use.
type InvoiceValidator struct {
	accountCodeMinLength int
	allowedTaxRates      []decimal.Decimal
	minTotal             decimal.Decimal
	now                  func() time.Time
}

// NewInvoiceValidator creates a validator, filling unset options with defaults.
func NewInvoiceValidator(opts Options) *InvoiceValidator {
	v := &InvoiceValidator{
		accountCodeMinLength: opts.AccountCodeMinLength,
		allowedTaxRates:      opts.AllowedTaxRates,
		minTotal:             opts.MinTotal,
		now:                  opts.Now,
	}
	if v.accountCodeMinLength <= 0 {
		v.accountCodeMinLength = DefaultAccountCodeMinLength
	}
	if len(v.allowedTaxRates) == 0 {
		v.allowedTaxRates = DefaultTaxRates()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// ValidateInvoiceReceived checks header fields and every line.
func (v *InvoiceValidator) ValidateInvoiceReceived(invoice *domain.InvoiceReceived, lines []*domain.InvoiceLine) Result {
	var errs []Error

	if invoice == nil {
		invoice = &domain.InvoiceReceived{}
	}

	if strings.TrimSpace(invoice.SupplierID) == "" {
		errs = append(errs, Error{Code: CodeSupplierRequired, Field: "supplier_id", Message: "supplier is required"})
	}
	if strings.TrimSpace(invoice.InvoiceNumber) == "" {
		errs = append(errs, Error{Code: CodeInvoiceNumberRequired, Field: "invoice_number", Message: "invoice number is required"})
	}

	if invoice.InvoiceDate == nil || invoice.InvoiceDate.IsZero() {
		errs = append(errs, Error{Code: CodeInvoiceDateRequired, Field: "invoice_date", Message: "invoice date is required"})
	} else if dateOnly(*invoice.InvoiceDate).After(dateOnly(v.now())) {
		errs = append(errs, Error{
			Code:    CodeFutureInvoiceDate,
			Field:   "invoice_date",
			Message: fmt.Sprintf("invoice date %s is in the future", invoice.InvoiceDate.Format("2006-01-02")),
		})
	}

	if len(lines) == 0 {
		errs = append(errs, Error{Code: CodeLinesRequired, Field: "lines", Message: "invoice must have at least one line"})
	}

	if !invoice.Total.GreaterThan(v.minTotal) {
		errs = append(errs, Error{
			Code:    CodeTotalTooLow,
			Field:   "total",
			Message: fmt.Sprintf("total must be greater than %s", v.minTotal.StringFixed(2)),
		})
	}

	for i, line := range lines {
		errs = append(errs, v.ValidateInvoiceLine(line, i)...)
	}

	return newResult(errs)
}

// ValidateInvoiceLine checks a single line. index is the zero-based position
// reported back in each error.
func (v *InvoiceValidator) ValidateInvoiceLine(line *domain.InvoiceLine, index int) []Error {
	var errs []Error
	at := func(code, field, msg string) {
		idx := index
		errs = append(errs, Error{
			Code:      code,
			Field:     fmt.Sprintf("lines[%d].%s", index, field),
			Message:   fmt.Sprintf("line %d: %s", index+1, msg),
			LineIndex: &idx,
		})
	}

	if line == nil {
		at(CodeLineDescriptionRequired, "description", "line is empty")
		return errs
	}

	if strings.TrimSpace(line.Description) == "" {
		at(CodeLineDescriptionRequired, "description", "description is required")
	}
	if line.Quantity.IsNegative() {
		at(CodeInvalidQuantity, "quantity", "quantity cannot be negative")
	}
	if line.UnitPrice.IsNegative() {
		at(CodeInvalidUnitPrice, "unit_price", "unit price cannot be negative")
	}
	if line.DiscountPercentage.IsNegative() || line.DiscountPercentage.GreaterThan(hundred) {
		at(CodeInvalidDiscount, "discount_percentage", "discount must be between 0 and 100")
	}
	if !v.allowedTaxRate(line.TaxRate) {
		at(CodeInvalidTaxRate, "tax_rate", fmt.Sprintf("tax rate %s is not allowed", line.TaxRate.String()))
	}
	if !v.validAccountCode(line.AccountCode) {
		at(CodeInvalidAccountCode, "account_code",
			fmt.Sprintf("account code must be numeric with at least %d digits", v.accountCodeMinLength))
	}

	return errs
}

// CanChangeStatus reports whether the approval lifecycle allows from -> to.
func (v *InvoiceValidator) CanChangeStatus(from, to domain.ApprovalStatus) Result {
	if allowedTransitions[from][to] {
		return newResult(nil)
	}
	return newResult([]Error{{
		Code:    CodeInvalidTransition,
		Field:   "approval_status",
		Message: fmt.Sprintf("cannot change approval status from %q to %q", from, to),
	}})
}

var allowedTransitions = map[domain.ApprovalStatus]map[domain.ApprovalStatus]bool{
	domain.ApprovalPendingManager: {
		domain.ApprovalPendingAccounting: true,
		domain.ApprovalApproved:          true,
		domain.ApprovalRejected:          true,
	},
	domain.ApprovalPendingAccounting: {
		domain.ApprovalApproved: true,
		domain.ApprovalRejected: true,
	},
}

// CanApprove fails when the invoice is already in a terminal state.
func (v *InvoiceValidator) CanApprove(invoice *domain.InvoiceReceived) Result {
	switch invoice.ApprovalStatus {
	case domain.ApprovalApproved:
		return newResult([]Error{{Code: CodeAlreadyApproved, Field: "approval_status", Message: "invoice is already approved"}})
	case domain.ApprovalRejected:
		return newResult([]Error{{Code: CodeAlreadyRejected, Field: "approval_status", Message: "invoice is already rejected"}})
	}
	return newResult(nil)
}

// CanReject fails for approved invoices and, treating rejection as
// terminal, for invoices that were already rejected.
func (v *InvoiceValidator) CanReject(invoice *domain.InvoiceReceived) Result {
	switch invoice.ApprovalStatus {
	case domain.ApprovalApproved:
		return newResult([]Error{{Code: CodeCannotRejectApproved, Field: "approval_status", Message: "cannot reject an approved invoice"}})
	case domain.ApprovalRejected:
		return newResult([]Error{{Code: CodeAlreadyRejected, Field: "approval_status", Message: "invoice is already rejected"}})
	}
	return newResult(nil)
}

func (v *InvoiceValidator) allowedTaxRate(rate decimal.Decimal) bool {
	for _, allowed := range v.allowedTaxRates {
		if rate.Equal(allowed) {
			return true
		}
	}
	return false
}

func (v *InvoiceValidator) validAccountCode(code string) bool {
	code = strings.TrimSpace(code)
	return len(code) >= v.accountCodeMinLength && accountCodePattern.MatchString(code)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
