package ocr_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/ocr"
)

func completeFields(conf float64) map[string]ocr.ExtractedField {
	return map[string]ocr.ExtractedField{
		"supplier_tax_id": {Value: "B12345678", Confidence: conf},
		"invoice_number":  {Value: "F-2026-0042", Confidence: conf},
		"invoice_date":    {Value: "2026-03-12", Confidence: conf},
		"total":           {Value: "112.20", Confidence: conf},
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		conf float64
		want ocr.Band
	}{
		{1.0, ocr.BandHigh},
		{0.90, ocr.BandHigh},
		{0.89, ocr.BandMediumHigh},
		{0.75, ocr.BandMediumHigh},
		{0.74, ocr.BandMedium},
		{0.60, ocr.BandMedium},
		{0.59, ocr.BandLow},
		{0, ocr.BandLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ocr.BandFor(tt.conf), "confidence %.2f", tt.conf)
	}
}

func TestConsolidate_SinglePass(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	out := c.Consolidate([]ocr.ExtractionResult{{Engine: "textract", Fields: completeFields(0.95)}})

	assert.Equal(t, "textract", out.Engine)
	assert.InDelta(t, 0.95, out.Confidence, 1e-9)
	assert.Equal(t, ocr.BandHigh, out.Band)
	assert.False(t, out.RequiresManualReview)
	assert.False(t, out.FallbackUsed)
	assert.Empty(t, out.MergeNotes)
	assert.Empty(t, out.ConfidenceNotes)
	assert.Equal(t, "textract", out.Fields["total"].Source)
}

func TestConsolidate_DisagreementHigherConfidenceWins(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	primary := completeFields(0.80)
	primary["total"] = ocr.ExtractedField{Value: "112.00", Confidence: 0.70}
	secondary := completeFields(0.85)
	secondary["total"] = ocr.ExtractedField{Value: "112.20", Confidence: 0.93}

	out := c.Consolidate([]ocr.ExtractionResult{
		{Engine: "mistral", Fields: primary},
		{Engine: "textract", Fields: secondary},
	})

	assert.Equal(t, ocr.EngineMerged, out.Engine)
	assert.Equal(t, "112.20", out.Fields["total"].Value)
	assert.Equal(t, "textract", out.Fields["total"].Source)
	require.Len(t, out.MergeNotes, 1)
	assert.Contains(t, out.MergeNotes[0], `"112.20"`)
	assert.Contains(t, out.MergeNotes[0], `"112.00"`)
	assert.Contains(t, out.MergeNotes[0], "total")
}

func TestConsolidate_TieKeepsPrimary(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	primary := completeFields(0.9)
	secondary := completeFields(0.9)
	secondary["invoice_number"] = ocr.ExtractedField{Value: "F-2026-0043", Confidence: 0.9}

	out := c.Consolidate([]ocr.ExtractionResult{
		{Engine: "primary", Fields: primary},
		{Engine: "secondary", Fields: secondary},
	})

	assert.Equal(t, "F-2026-0042", out.Fields["invoice_number"].Value)
	assert.Equal(t, "primary", out.Fields["invoice_number"].Source)
	assert.Len(t, out.MergeNotes, 1)
}

func TestConsolidate_NormalizedValuesAgree(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	primary := completeFields(0.8)
	primary["total"] = ocr.ExtractedField{Value: "1.200,50 €", Confidence: 0.8}
	primary["supplier_name"] = ocr.ExtractedField{Value: "Distribuciones  Norte SL", Confidence: 0.8}
	secondary := completeFields(0.9)
	secondary["total"] = ocr.ExtractedField{Value: "1200.5", Confidence: 0.9}
	secondary["supplier_name"] = ocr.ExtractedField{Value: "distribuciones norte sl", Confidence: 0.9}

	out := c.Consolidate([]ocr.ExtractionResult{
		{Engine: "a", Fields: primary},
		{Engine: "b", Fields: secondary},
	})

	assert.Empty(t, out.MergeNotes)
	assert.Equal(t, ocr.EngineMerged, out.Engine)
	// Agreeing values keep the primary text with the best confidence seen.
	assert.Equal(t, "1.200,50 €", out.Fields["total"].Value)
	assert.InDelta(t, 0.9, out.Fields["total"].Confidence, 1e-9)
}

func TestConsolidate_AmountFormats(t *testing.T) {
	tests := []struct {
		a, b  string
		agree bool
	}{
		{"1.234", "1234.00", true},
		{"1,234", "1234.00", true},
		{"1.234.567", "1234567", true},
		{"1,234,567.89", "1.234.567,89", true},
		{"-1.234", "-1234", true},
		{"12,50", "12.5", true},
		{"0.500", "0.5", true},
		{"1234,5", "1234.50", true},
		{"1.234", "1.23", false},
		{"112.00", "112.20", false},
	}

	c := ocr.NewConsolidator(ocr.Options{})
	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			primary := completeFields(0.9)
			primary["total"] = ocr.ExtractedField{Value: tt.a, Confidence: 0.9}
			secondary := completeFields(0.8)
			secondary["total"] = ocr.ExtractedField{Value: tt.b, Confidence: 0.8}

			out := c.Consolidate([]ocr.ExtractionResult{
				{Engine: "a", Fields: primary},
				{Engine: "b", Fields: secondary},
			})

			assert.Equal(t, tt.a, out.Fields["total"].Value)
			if tt.agree {
				assert.Empty(t, out.MergeNotes)
			} else {
				assert.Len(t, out.MergeNotes, 1)
			}
		})
	}
}

func TestConsolidate_ConfidenceOutsideUnitRange(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	fields := completeFields(0.5)
	fields["total"] = ocr.ExtractedField{Value: "112.20", Confidence: 95}
	fields["invoice_number"] = ocr.ExtractedField{Value: "F-2026-0042", Confidence: -3}

	out := c.Consolidate([]ocr.ExtractionResult{{Engine: "legacy", Fields: fields}})

	assert.InDelta(t, 0.95, out.Fields["total"].Confidence, 1e-9)
	assert.Zero(t, out.Fields["invoice_number"].Confidence)
	assert.LessOrEqual(t, out.Confidence, 1.0)
	assert.NotEqual(t, ocr.BandHigh, out.Band)
	assert.True(t, out.RequiresManualReview)
	assert.Contains(t, out.ConfidenceNotes, "total: legacy reported confidence 95 outside [0, 1], using 0.95")

	assert.InDelta(t, 0.87, ocr.ExtractionResult{Confidence: 87}.OverallConfidence(), 1e-9)
}

func TestConsolidate_FallbackAlwaysSurfaced(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	out := c.Consolidate([]ocr.ExtractionResult{
		{Engine: "mistral", Error: "timeout"},
		{Engine: "textract", Fallback: true, Fields: completeFields(0.97)},
	})

	assert.True(t, out.FallbackUsed)
	assert.Equal(t, "textract", out.Engine)
	assert.Equal(t, ocr.BandHigh, out.Band)
	assert.False(t, out.RequiresManualReview)
	assert.Contains(t, out.ConfidenceNotes, "fallback engine textract was used")
	assert.Contains(t, out.ConfidenceNotes, "extraction pass mistral failed: timeout")
}

func TestConsolidate_ManualReview(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{FieldFloor: 0.5})

	t.Run("overall below medium", func(t *testing.T) {
		out := c.Consolidate([]ocr.ExtractionResult{{Engine: "a", Fields: completeFields(0.55)}})
		assert.True(t, out.RequiresManualReview)
		assert.Equal(t, ocr.BandLow, out.Band)
	})

	t.Run("single field below floor", func(t *testing.T) {
		fields := completeFields(0.95)
		fields["invoice_date"] = ocr.ExtractedField{Value: "2026-03-12", Confidence: 0.4}
		out := c.Consolidate([]ocr.ExtractionResult{{Engine: "a", Fields: fields}})

		assert.True(t, out.RequiresManualReview)
		assert.GreaterOrEqual(t, out.Confidence, ocr.MediumThreshold)
		assert.Contains(t, out.ConfidenceNotes, "field invoice_date confidence 0.40 is below the 0.50 floor")
	})

	t.Run("required field missing", func(t *testing.T) {
		fields := completeFields(0.95)
		delete(fields, "supplier_tax_id")
		out := c.Consolidate([]ocr.ExtractionResult{{Engine: "a", Fields: fields}})

		assert.True(t, out.RequiresManualReview)
		assert.Contains(t, out.ConfidenceNotes, "required field supplier_tax_id is missing")
	})

	t.Run("every pass failed", func(t *testing.T) {
		out := c.Consolidate([]ocr.ExtractionResult{{Engine: "a", Error: "unreadable"}})

		assert.True(t, out.RequiresManualReview)
		assert.Equal(t, ocr.EngineManualReview, out.Engine)
		assert.Zero(t, out.Confidence)
	})

	t.Run("stricter configured floor", func(t *testing.T) {
		strict := ocr.NewConsolidator(ocr.Options{FieldFloor: 0.8})
		out := strict.Consolidate([]ocr.ExtractionResult{{Engine: "a", Fields: completeFields(0.78)}})
		assert.True(t, out.RequiresManualReview)
		assert.Equal(t, ocr.BandMediumHigh, out.Band)
	})
}

func TestConsolidate_CostSummary(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})

	out := c.Consolidate([]ocr.ExtractionResult{
		{Engine: "a", Error: "timeout", ProcessingTime: 2 * time.Second, Cost: decimal.RequireFromString("0.0030")},
		{Engine: "b", Fallback: true, Fields: completeFields(0.9), PageCount: 2, ProcessingTime: time.Second,
			InputTokens: 1200, OutputTokens: 300, Cost: decimal.RequireFromString("0.0150")},
	})

	assert.Equal(t, 2, out.Costs.Passes)
	assert.Equal(t, 2, out.Costs.PageCount)
	assert.Equal(t, 3*time.Second, out.Costs.ProcessingTime)
	assert.Equal(t, 1200, out.Costs.InputTokens)
	assert.True(t, decimal.RequireFromString("0.018").Equal(out.Costs.Cost))
}

func TestShouldUseFallback(t *testing.T) {
	assert.True(t, ocr.ShouldUseFallback(ocr.ExtractionResult{Engine: "a", Error: "503"}))
	assert.True(t, ocr.ShouldUseFallback(ocr.ExtractionResult{Engine: "a"}))
	assert.True(t, ocr.ShouldUseFallback(ocr.ExtractionResult{Engine: "a", Fields: completeFields(0.59)}))
	assert.False(t, ocr.ShouldUseFallback(ocr.ExtractionResult{Engine: "a", Confidence: 0.60, Fields: completeFields(0.9)}))
	assert.False(t, ocr.ShouldUseFallback(ocr.ExtractionResult{Engine: "a", Confidence: 0.91, Fields: completeFields(0.2)}))
}

func TestConsolidation_Projection(t *testing.T) {
	c := ocr.NewConsolidator(ocr.Options{})
	out := c.Consolidate([]ocr.ExtractionResult{{Engine: "textract", Fields: completeFields(0.92)}})

	p, err := out.Projection()
	require.NoError(t, err)

	assert.Equal(t, "textract", p.Engine)
	assert.InDelta(t, 0.92, p.Confidence, 1e-9)
	assert.False(t, p.RequiresManualReview)

	var raw map[string]ocr.ConsolidatedField
	require.NoError(t, json.Unmarshal(p.RawPayload, &raw))
	assert.Equal(t, "F-2026-0042", raw["invoice_number"].Value)
}
