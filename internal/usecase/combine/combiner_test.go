package combine

import (
	"reflect"
	"testing"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

func textFields(ids ...string) []domain.FieldRequest {
	out := make([]domain.FieldRequest, len(ids))
	for i, id := range ids {
		out[i] = domain.FieldRequest{FieldID: id, Question: id + "?", ExpectedType: domain.TypeText}
	}
	return out
}

func TestCombine_FillsEmptySlots(t *testing.T) {
	fields := textFields("policy_number", "insured_name")
	passes := []domain.ExtractionPass{
		{Method: "dual-model", Priority: 1, Values: []string{"POL-9921", domain.NotFound}, Confidence: 0.8},
		{Method: "enhanced", Priority: 2, Values: []string{domain.NotFound, "Jane Doe"}, Confidence: 0.6},
	}

	got := New().Combine(fields, nil, passes)
	want := []string{"POL-9921", "Jane Doe"}
	if !reflect.DeepEqual(got.Values, want) {
		t.Errorf("Combine() values = %v, want %v", got.Values, want)
	}
	if got.Confidence < 0.7 {
		t.Errorf("Combine() confidence = %v, below the floor", got.Confidence)
	}
}

func TestCombine_StableValueResistsNoisyPass(t *testing.T) {
	fields := textFields("insured_name")
	passes := []domain.ExtractionPass{
		{Method: "dual-model", Priority: 1, Values: []string{"Jane Doe"}, Confidence: 0.8},
		// 0.9 does not clear 0.8 + 0.15 for an already-plausible value.
		{Method: "chunked", Priority: 3, Values: []string{"John Doe"}, Confidence: 0.9},
	}

	got := New().Combine(fields, nil, passes)
	if got.Values[0] != "Jane Doe" {
		t.Errorf("Combine() value = %q, want the earlier stable value", got.Values[0])
	}

	// A pass that clears the margin does overwrite.
	passes[1].Confidence = 0.96
	got = New().Combine(fields, nil, passes)
	if got.Values[0] != "John Doe" {
		t.Errorf("Combine() value = %q, want the higher-confidence overwrite", got.Values[0])
	}
}

func TestCombine_PlaceholderReplacedWithSmallMargin(t *testing.T) {
	fields := textFields("claim_state")
	passes := []domain.ExtractionPass{
		// Two characters: a placeholder, not a plausible answer.
		{Method: "dual-model", Priority: 1, Values: []string{"TX"}, Confidence: 0.6},
		{Method: "enhanced", Priority: 2, Values: []string{"Texas"}, Confidence: 0.66},
	}

	got := New().Combine(fields, nil, passes)
	if got.Values[0] != "Texas" {
		t.Errorf("Combine() value = %q, want placeholder replaced", got.Values[0])
	}
}

func TestCombine_BooleanYesAlwaysOverwrites(t *testing.T) {
	fields := []domain.FieldRequest{
		{FieldID: "insured_signature", Question: "Signed?", ExpectedType: domain.TypeBoolean},
	}
	passes := []domain.ExtractionPass{
		{Method: "dual-model", Priority: 1, Values: []string{domain.AnswerNo}, Confidence: 0.9},
		{Method: "chunked", Priority: 3, Values: []string{domain.AnswerYes}, Confidence: 0.4},
	}

	got := New().Combine(fields, nil, passes)
	if got.Values[0] != domain.AnswerYes {
		t.Errorf("Combine() value = %q, want YES from any pass", got.Values[0])
	}
}

func TestCombine_BooleanNoOnlyFillsEmpty(t *testing.T) {
	fields := []domain.FieldRequest{
		{FieldID: "insured_signature", Question: "Signed?", ExpectedType: domain.TypeBoolean},
	}
	passes := []domain.ExtractionPass{
		{Method: "dual-model", Priority: 1, Values: []string{domain.AnswerYes}, Confidence: 0.5},
		{Method: "enhanced", Priority: 2, Values: []string{domain.AnswerNo}, Confidence: 0.95},
	}

	got := New().Combine(fields, nil, passes)
	if got.Values[0] != domain.AnswerYes {
		t.Errorf("Combine() value = %q, want NO ignored over existing YES", got.Values[0])
	}

	got = New().Combine(fields, nil, passes[1:])
	if got.Values[0] != domain.AnswerNo {
		t.Errorf("Combine() value = %q, want NO to fill an empty slot", got.Values[0])
	}
}

func TestCombine_RetainedValuesSeed(t *testing.T) {
	fields := textFields("policy_number", "insured_name")
	retained := []string{"POL-9921", ""}
	passes := []domain.ExtractionPass{
		// Below the retained confidence (0.6) plus the stable margin.
		{Method: "dual-model", Priority: 1, Values: []string{"POL-0000", "Jane Doe"}, Confidence: 0.65},
	}

	got := New().Combine(fields, retained, passes)
	if got.Values[0] != "POL-9921" {
		t.Errorf("Combine() value = %q, want retained value kept", got.Values[0])
	}
	if got.Sources[0] != "retained" {
		t.Errorf("Combine() source = %q, want retained", got.Sources[0])
	}
	if got.Values[1] != "Jane Doe" {
		t.Errorf("Combine() value = %q, want pass to fill the unseeded slot", got.Values[1])
	}
}

func TestCombine_Idempotent(t *testing.T) {
	fields := textFields("policy_number", "insured_name", "loss_date")
	passes := []domain.ExtractionPass{
		{Method: "chunked", Priority: 3, Values: []string{"POL-1", "Jane", "04-11-25"}, Confidence: 0.9},
		{Method: "dual-model", Priority: 1, Values: []string{"POL-9921", domain.NotFound, "04-10-25"}, Confidence: 0.8},
	}

	c := New()
	first := c.Combine(fields, nil, passes)
	second := c.Combine(fields, nil, passes)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Combine() not idempotent: %+v vs %+v", first, second)
	}
}

func TestCombine_AlwaysExactlyNValues(t *testing.T) {
	fields := textFields("a", "b", "c", "d")
	passes := []domain.ExtractionPass{
		// Short pass: only two values for four fields.
		{Method: "dual-model", Priority: 1, Values: []string{"one", "two"}, Confidence: 0.8},
	}

	got := New().Combine(fields, nil, passes)
	if len(got.Values) != len(fields) {
		t.Fatalf("Combine() returned %d values, want %d", len(got.Values), len(fields))
	}
	if got.Values[2] != domain.NotFound || got.Values[3] != domain.NotFound {
		t.Errorf("Combine() values = %v, want NOT_FOUND padding", got.Values)
	}
}
