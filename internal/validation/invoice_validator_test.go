package validation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/validation"
)

var fixedNow = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

func newValidator() *validation.InvoiceValidator {
	return validation.NewInvoiceValidator(validation.Options{
		Now: func() time.Time { return fixedNow },
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validLine() *domain.InvoiceLine {
	return &domain.InvoiceLine{
		LineNumber:         1,
		Description:        "Aceite de oliva 5L",
		Quantity:           dec("4"),
		UnitPrice:          dec("25.50"),
		DiscountPercentage: dec("0"),
		TaxRate:            dec("10"),
		AccountCode:        "6000001",
	}
}

func validInvoice() *domain.InvoiceReceived {
	date := fixedNow.AddDate(0, 0, -3)
	return &domain.InvoiceReceived{
		SupplierID:    "sup-1",
		InvoiceNumber: "F-2026-0042",
		InvoiceDate:   &date,
		Total:         dec("112.20"),
	}
}

func TestValidateInvoiceReceived_Valid(t *testing.T) {
	result := newValidator().ValidateInvoiceReceived(validInvoice(), []*domain.InvoiceLine{validLine()})

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
}

func TestValidateInvoiceReceived_AccumulatesErrors(t *testing.T) {
	inv := &domain.InvoiceReceived{Total: decimal.Zero}

	result := newValidator().ValidateInvoiceReceived(inv, nil)

	require.False(t, result.IsValid)
	assert.Equal(t, []string{
		validation.CodeSupplierRequired,
		validation.CodeInvoiceNumberRequired,
		validation.CodeInvoiceDateRequired,
		validation.CodeLinesRequired,
		validation.CodeTotalTooLow,
	}, result.Codes())
}

func TestValidateInvoiceReceived_DateChecks(t *testing.T) {
	tests := []struct {
		name    string
		date    time.Time
		wantErr bool
	}{
		{"yesterday", fixedNow.AddDate(0, 0, -1), false},
		{"today, later in the day", time.Date(2026, time.March, 15, 23, 59, 0, 0, time.UTC), false},
		{"tomorrow", fixedNow.AddDate(0, 0, 1), true},
		{"next year", fixedNow.AddDate(1, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			inv.InvoiceDate = &tt.date

			result := newValidator().ValidateInvoiceReceived(inv, []*domain.InvoiceLine{validLine()})
			assert.Equal(t, tt.wantErr, result.HasCode(validation.CodeFutureInvoiceDate))
		})
	}
}

func TestValidateInvoiceReceived_TotalMustBePositive(t *testing.T) {
	for _, total := range []string{"0", "-10"} {
		inv := validInvoice()
		inv.Total = dec(total)

		result := newValidator().ValidateInvoiceReceived(inv, []*domain.InvoiceLine{validLine()})
		assert.True(t, result.HasCode(validation.CodeTotalTooLow), "total %s", total)
	}

	inv := validInvoice()
	inv.Total = dec("0.01")
	result := newValidator().ValidateInvoiceReceived(inv, []*domain.InvoiceLine{validLine()})
	assert.False(t, result.HasCode(validation.CodeTotalTooLow))
}

func TestValidateInvoiceReceived_IncludesLineErrors(t *testing.T) {
	bad := validLine()
	bad.TaxRate = dec("15")

	result := newValidator().ValidateInvoiceReceived(validInvoice(), []*domain.InvoiceLine{validLine(), bad})

	require.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, validation.CodeInvalidTaxRate, result.Errors[0].Code)
	require.NotNil(t, result.Errors[0].LineIndex)
	assert.Equal(t, 1, *result.Errors[0].LineIndex)
	assert.Equal(t, "lines[1].tax_rate", result.Errors[0].Field)
}

func TestValidateInvoiceLine(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *domain.InvoiceLine)
		want   []string
	}{
		{"valid", func(l *domain.InvoiceLine) {}, nil},
		{"blank description", func(l *domain.InvoiceLine) { l.Description = "   " }, []string{validation.CodeLineDescriptionRequired}},
		{"negative quantity", func(l *domain.InvoiceLine) { l.Quantity = dec("-1") }, []string{validation.CodeInvalidQuantity}},
		{"zero quantity allowed", func(l *domain.InvoiceLine) { l.Quantity = decimal.Zero }, nil},
		{"negative unit price", func(l *domain.InvoiceLine) { l.UnitPrice = dec("-0.01") }, []string{validation.CodeInvalidUnitPrice}},
		{"discount over 100", func(l *domain.InvoiceLine) { l.DiscountPercentage = dec("100.5") }, []string{validation.CodeInvalidDiscount}},
		{"negative discount", func(l *domain.InvoiceLine) { l.DiscountPercentage = dec("-1") }, []string{validation.CodeInvalidDiscount}},
		{"discount 100 allowed", func(l *domain.InvoiceLine) { l.DiscountPercentage = dec("100") }, nil},
		{"tax rate 15", func(l *domain.InvoiceLine) { l.TaxRate = dec("15") }, []string{validation.CodeInvalidTaxRate}},
		{"tax rate 21.0 equals 21", func(l *domain.InvoiceLine) { l.TaxRate = dec("21.00") }, nil},
		{"short account code", func(l *domain.InvoiceLine) { l.AccountCode = "60" }, []string{validation.CodeInvalidAccountCode}},
		{"non numeric account code", func(l *domain.InvoiceLine) { l.AccountCode = "600A" }, []string{validation.CodeInvalidAccountCode}},
		{"several problems", func(l *domain.InvoiceLine) {
			l.Description = ""
			l.UnitPrice = dec("-1")
			l.AccountCode = ""
		}, []string{validation.CodeLineDescriptionRequired, validation.CodeInvalidUnitPrice, validation.CodeInvalidAccountCode}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := validLine()
			tt.mutate(line)

			errs := newValidator().ValidateInvoiceLine(line, 0)
			var codes []string
			for _, e := range errs {
				codes = append(codes, e.Code)
			}
			assert.Equal(t, tt.want, codes)
		})
	}
}

func TestValidateInvoiceLine_AllowedTaxRates(t *testing.T) {
	v := newValidator()
	for _, rate := range []string{"0", "4", "10", "21"} {
		line := validLine()
		line.TaxRate = dec(rate)
		assert.Empty(t, v.ValidateInvoiceLine(line, 0), "rate %s", rate)
	}
}

func TestValidateInvoiceLine_ConfiguredAccountCodeLength(t *testing.T) {
	v := validation.NewInvoiceValidator(validation.Options{AccountCodeMinLength: 8})

	line := validLine()
	line.AccountCode = "6000001"
	errs := v.ValidateInvoiceLine(line, 2)

	require.Len(t, errs, 1)
	assert.Equal(t, validation.CodeInvalidAccountCode, errs[0].Code)
	assert.Equal(t, "lines[2].account_code", errs[0].Field)
}

func TestCanChangeStatus(t *testing.T) {
	v := newValidator()

	tests := []struct {
		from, to domain.ApprovalStatus
		want     bool
	}{
		{domain.ApprovalPendingManager, domain.ApprovalApproved, true},
		{domain.ApprovalPendingManager, domain.ApprovalRejected, true},
		{domain.ApprovalPendingManager, domain.ApprovalPendingAccounting, true},
		{domain.ApprovalPendingAccounting, domain.ApprovalApproved, true},
		{domain.ApprovalPendingAccounting, domain.ApprovalRejected, true},
		{domain.ApprovalPendingAccounting, domain.ApprovalPendingManager, false},
		{domain.ApprovalApproved, domain.ApprovalRejected, false},
		{domain.ApprovalApproved, domain.ApprovalPendingManager, false},
		{domain.ApprovalRejected, domain.ApprovalApproved, false},
		{domain.ApprovalRejected, domain.ApprovalPendingAccounting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := v.CanChangeStatus(tt.from, tt.to)
			assert.Equal(t, tt.want, result.IsValid)
			if !tt.want {
				assert.True(t, result.HasCode(validation.CodeInvalidTransition))
			}
		})
	}
}

func TestCanApprove(t *testing.T) {
	v := newValidator()

	assert.True(t, v.CanApprove(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalPendingManager}).IsValid)
	assert.True(t, v.CanApprove(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalPendingAccounting}).IsValid)

	approved := v.CanApprove(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalApproved})
	assert.False(t, approved.IsValid)
	assert.True(t, approved.HasCode(validation.CodeAlreadyApproved))

	rejected := v.CanApprove(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalRejected})
	assert.False(t, rejected.IsValid)
	assert.True(t, rejected.HasCode(validation.CodeAlreadyRejected))
}

func TestCanReject(t *testing.T) {
	v := newValidator()

	assert.True(t, v.CanReject(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalPendingManager}).IsValid)

	approved := v.CanReject(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalApproved})
	assert.False(t, approved.IsValid)
	assert.True(t, approved.HasCode(validation.CodeCannotRejectApproved))

	rejected := v.CanReject(&domain.InvoiceReceived{ApprovalStatus: domain.ApprovalRejected})
	assert.False(t, rejected.IsValid)
	assert.True(t, rejected.HasCode(validation.CodeAlreadyRejected))
}
