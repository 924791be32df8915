package ocr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

// Engine tags that are not a concrete extractor.
const (
	EngineMerged       = "merged"
	EngineManualReview = "manual_review"
)

// Confidence thresholds. Each is the inclusive lower bound of its band.
const (
	HighThreshold       = 0.90
	MediumHighThreshold = 0.75
	MediumThreshold     = 0.60

	// DefaultFieldFloor is the per-field confidence below which review is forced.
	DefaultFieldFloor = 0.5
)

// Band is a coarse confidence classification shown to reviewers.
type Band string

const (
	BandHigh       Band = "high"
	BandMediumHigh Band = "medium_high"
	BandMedium     Band = "medium"
	BandLow        Band = "low"
)

// BandFor classifies an overall confidence score.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= HighThreshold:
		return BandHigh
	case confidence >= MediumHighThreshold:
		return BandMediumHigh
	case confidence >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// DefaultRequiredFields must be present for an extraction to progress unattended.
func DefaultRequiredFields() []string {
	return []string{"supplier_tax_id", "invoice_number", "invoice_date", "total"}
}

var numericFields = map[string]bool{
	"subtotal":  true,
	"tax_total": true,
	"total":     true,
}

// ExtractedField is one value read by an extraction pass.
type ExtractedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the output of a single extraction pass.
type ExtractionResult struct {
	Engine         string                    `json:"engine"`
	Fields         map[string]ExtractedField `json:"fields"`
	Confidence     float64                   `json:"confidence,omitempty"`
	Fallback       bool                      `json:"fallback"`
	Error          string                    `json:"error,omitempty"`
	PageCount      int                       `json:"page_count"`
	ProcessingTime time.Duration             `json:"processing_time"`
	InputTokens    int                       `json:"input_tokens"`
	OutputTokens   int                       `json:"output_tokens"`
	Cost           decimal.Decimal           `json:"cost"`
}

// Failed reports whether the pass produced no usable output.
func (r ExtractionResult) Failed() bool {
	return r.Error != "" || len(r.Fields) == 0
}

// OverallConfidence is the engine-reported score, or the mean field
// confidence when the engine did not report one.
func (r ExtractionResult) OverallConfidence() float64 {
	if r.Confidence > 0 {
		c, _ := unitConfidence(r.Confidence)
		return c
	}
	if len(r.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Fields {
		c, _ := unitConfidence(f.Confidence)
		sum += c
	}
	return sum / float64(len(r.Fields))
}

// unitConfidence maps a reported score onto [0, 1]. Scores in (1, 100] are
// read as percentages; anything else outside the range is clamped. The bool
// reports whether the value had to be adjusted.
func unitConfidence(c float64) (float64, bool) {
	switch {
	case c >= 0 && c <= 1:
		return c, false
	case c > 1 && c <= 100:
		return c / 100, true
	case c > 100:
		return 1, true
	default:
		return 0, true
	}
}

// ShouldUseFallback reports whether a secondary pass should be run after primary.
func ShouldUseFallback(primary ExtractionResult) bool {
	return primary.Failed() || primary.OverallConfidence() < MediumThreshold
}

// ConsolidatedField is the winning value for a field and where it came from.
type ConsolidatedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// CostSummary totals the metrics of every pass. It is reporting data only.
type CostSummary struct {
	Passes         int             `json:"passes"`
	PageCount      int             `json:"page_count"`
	ProcessingTime time.Duration   `json:"processing_time"`
	InputTokens    int             `json:"input_tokens"`
	OutputTokens   int             `json:"output_tokens"`
	Cost           decimal.Decimal `json:"cost"`
}

// Consolidation is the canonical field set produced from one or more passes.
type Consolidation struct {
	Fields               map[string]ConsolidatedField `json:"fields"`
	Engine               string                       `json:"engine"`
	Confidence           float64                      `json:"confidence"`
	Band                 Band                         `json:"band"`
	ConfidenceNotes      []string                     `json:"confidence_notes"`
	MergeNotes           []string                     `json:"merge_notes,omitempty"`
	FallbackUsed         bool                         `json:"fallback_used"`
	RequiresManualReview bool                         `json:"requires_manual_review"`
	Costs                CostSummary                  `json:"costs"`
}

// Projection converts the consolidation into the metadata stored on an invoice.
func (c *Consolidation) Projection() (domain.ExtractionProjection, error) {
	raw, err := json.Marshal(c.Fields)
	if err != nil {
		return domain.ExtractionProjection{}, fmt.Errorf("marshal consolidated fields: %w", err)
	}
	return domain.ExtractionProjection{
		Engine:               c.Engine,
		Confidence:           c.Confidence,
		ConfidenceNotes:      c.ConfidenceNotes,
		MergeNotes:           c.MergeNotes,
		FallbackUsed:         c.FallbackUsed,
		RequiresManualReview: c.RequiresManualReview,
		RawPayload:           raw,
	}, nil
}

// Options configures a Consolidator.
type Options struct {
	FieldFloor     float64
	RequiredFields []string
}

// Consolidator merges extraction passes. It is stateless apart from its
// thresholds and safe for concurrent use.
type Consolidator struct {
	fieldFloor     float64
	requiredFields []string
}

// NewConsolidator creates a Consolidator, applying defaults for unset options.
func NewConsolidator(opts Options) *Consolidator {
	c := &Consolidator{
		fieldFloor:     opts.FieldFloor,
		requiredFields: opts.RequiredFields,
	}
	if c.fieldFloor <= 0 {
		c.fieldFloor = DefaultFieldFloor
	}
	if len(c.requiredFields) == 0 {
		c.requiredFields = DefaultRequiredFields()
	}
	return c
}

// Consolidate merges results in order. Earlier passes are treated as primary:
// on equal confidence the earlier value is kept.
func (c *Consolidator) Consolidate(results []ExtractionResult) *Consolidation {
	out := &Consolidation{
		Fields:          make(map[string]ConsolidatedField),
		ConfidenceNotes: []string{},
		Costs:           CostSummary{Cost: decimal.Zero},
	}

	var contributing []string
	for _, r := range results {
		out.Costs.add(r)

		if r.Fallback {
			out.FallbackUsed = true
			out.ConfidenceNotes = append(out.ConfidenceNotes,
				fmt.Sprintf("fallback engine %s was used", r.Engine))
		}
		if r.Failed() {
			reason := r.Error
			if reason == "" {
				reason = "no fields extracted"
			}
			out.ConfidenceNotes = append(out.ConfidenceNotes,
				fmt.Sprintf("extraction pass %s failed: %s", r.Engine, reason))
			continue
		}
		contributing = append(contributing, r.Engine)

		for _, name := range sortedKeys(r.Fields) {
			candidate := r.Fields[name]
			if c, adjusted := unitConfidence(candidate.Confidence); adjusted {
				out.ConfidenceNotes = append(out.ConfidenceNotes, fmt.Sprintf(
					"%s: %s reported confidence %g outside [0, 1], using %.2f", name, r.Engine, candidate.Confidence, c))
				candidate.Confidence = c
			}
			current, seen := out.Fields[name]
			if !seen {
				out.Fields[name] = ConsolidatedField{Value: candidate.Value, Confidence: candidate.Confidence, Source: r.Engine}
				continue
			}
			if sameValue(name, current.Value, candidate.Value) {
				if candidate.Confidence > current.Confidence {
					current.Confidence = candidate.Confidence
					out.Fields[name] = current
				}
				continue
			}

			winner, loser := current, ConsolidatedField{Value: candidate.Value, Confidence: candidate.Confidence, Source: r.Engine}
			if loser.Confidence > winner.Confidence {
				winner, loser = loser, winner
			}
			out.Fields[name] = winner
			out.MergeNotes = append(out.MergeNotes, fmt.Sprintf(
				"%s: kept %q from %s (%.2f) over %q from %s (%.2f)",
				name, winner.Value, winner.Source, winner.Confidence,
				loser.Value, loser.Source, loser.Confidence))
		}
	}

	switch len(contributing) {
	case 0:
		out.Engine = EngineManualReview
		out.RequiresManualReview = true
		out.ConfidenceNotes = append(out.ConfidenceNotes, "no extraction pass produced usable fields")
	case 1:
		out.Engine = contributing[0]
		out.MergeNotes = nil
	default:
		out.Engine = EngineMerged
	}

	c.assess(out)
	return out
}

func (c *Consolidator) assess(out *Consolidation) {
	if len(out.Fields) > 0 {
		var sum float64
		for _, f := range out.Fields {
			sum += f.Confidence
		}
		out.Confidence = sum / float64(len(out.Fields))
	}
	out.Band = BandFor(out.Confidence)

	for _, name := range c.requiredFields {
		if f, ok := out.Fields[name]; !ok || strings.TrimSpace(f.Value) == "" {
			out.RequiresManualReview = true
			out.ConfidenceNotes = append(out.ConfidenceNotes, fmt.Sprintf("required field %s is missing", name))
		}
	}

	for _, name := range sortedKeys(out.Fields) {
		if f := out.Fields[name]; f.Confidence < c.fieldFloor {
			out.RequiresManualReview = true
			out.ConfidenceNotes = append(out.ConfidenceNotes, fmt.Sprintf(
				"field %s confidence %.2f is below the %.2f floor", name, f.Confidence, c.fieldFloor))
		}
	}

	if len(out.Fields) > 0 && out.Confidence < MediumThreshold {
		out.RequiresManualReview = true
		out.ConfidenceNotes = append(out.ConfidenceNotes, fmt.Sprintf(
			"overall confidence %.2f is %s", out.Confidence, out.Band))
	}
}

func (s *CostSummary) add(r ExtractionResult) {
	s.Passes++
	s.PageCount += r.PageCount
	s.ProcessingTime += r.ProcessingTime
	s.InputTokens += r.InputTokens
	s.OutputTokens += r.OutputTokens
	s.Cost = s.Cost.Add(r.Cost)
}

// sameValue compares two extracted values after normalization. Amount fields
// are compared numerically so "1,200.50" and "1200.5" agree.
func sameValue(field, a, b string) bool {
	if numericFields[field] {
		da, errA := parseAmount(a)
		db, errB := parseAmount(b)
		if errA == nil && errB == nil {
			return da.Equal(db)
		}
	}
	return normalize(a) == normalize(b)
}

func normalize(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func parseAmount(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	v = strings.NewReplacer("€", "", "$", "", " ", "").Replace(v)

	lastDot := strings.LastIndex(v, ".")
	lastComma := strings.LastIndex(v, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the rightmost one is the decimal mark.
		if lastComma > lastDot {
			v = strings.ReplaceAll(v, ".", "")
			v = strings.Replace(v, ",", ".", 1)
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case lastComma >= 0:
		v = singleSeparator(v, ",")
	case lastDot >= 0:
		v = singleSeparator(v, ".")
	}
	return decimal.NewFromString(v)
}

// singleSeparator resolves an amount that uses only sep. A repeated sep, or a
// single one followed by exactly three digits after a non-zero integer part,
// groups thousands; otherwise it is the decimal mark.
func singleSeparator(v, sep string) string {
	if strings.Count(v, sep) > 1 {
		return strings.ReplaceAll(v, sep, "")
	}
	i := strings.Index(v, sep)
	intPart, frac := strings.TrimLeft(v[:i], "+-"), v[i+1:]
	if len(frac) == 3 && intPart != "" && strings.Trim(intPart, "0") != "" {
		return v[:i] + frac
	}
	return v[:i] + "." + frac
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
