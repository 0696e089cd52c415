// Package judge breaks ties between two disagreeing model results by
// asking a third, independent model to pick a side or synthesize a new
// answer. When the judge itself fails, the fallback is deterministic:
// the higher-confidence original wins at a discounted confidence.
package judge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
)

const (
	// maxContextChars bounds the document excerpt shown to the judge.
	maxContextChars = 2000

	// fallbackDiscount is applied to the winning confidence when the
	// judge call fails and the disagreement stays unresolved.
	fallbackDiscount = 0.8
)

// Trigger labels why the judge was invoked, for metrics.
const (
	TriggerLowAgreement = "low_agreement"
	TriggerNotFoundRate = "not_found_rate"
)

// Service arbitrates between conflicting model results.
type Service struct {
	model  domain.Model
	logger *zap.Logger
}

// New creates a Service backed by the given judge model.
func New(model domain.Model, log *zap.Logger) *Service {
	return &Service{model: model, logger: log}
}

// Arbitrate resolves the disagreement between results a and b for one
// field. docContext is a bounded excerpt of the relevant document text
// and may be empty. trigger labels the invocation reason for metrics.
// Arbitrate never returns an error: the fallback path always yields a
// usable result.
func (s *Service) Arbitrate(ctx context.Context, field domain.FieldRequest, a, b domain.ModelResult, docContext, trigger string) domain.ModelResult {
	out, err := s.model.Extract(ctx, domain.ModelInput{
		Text:         "",
		Prompt:       s.prompt(field, a, b, docContext),
		ExpectedType: field.ExpectedType,
		FieldID:      field.FieldID,
		Page:         a.Page,
	})
	if err != nil {
		s.logger.Warn("judge call failed, falling back to higher-confidence answer",
			zap.String("field_id", field.FieldID),
			zap.String("model", s.model.ID()),
			zap.Error(err))
		metrics.JudgeInvocationsTotal.WithLabelValues(trigger, "fallback").Inc()
		return s.fallback(a, b)
	}

	verdict, ok := parseVerdict(out.Response)
	if !ok {
		s.logger.Warn("judge verdict unparseable, falling back",
			zap.String("field_id", field.FieldID),
			zap.String("response", truncate(out.Response, 200)))
		metrics.JudgeInvocationsTotal.WithLabelValues(trigger, "fallback").Inc()
		return s.fallback(a, b)
	}

	metrics.JudgeInvocationsTotal.WithLabelValues(trigger, verdict.outcome()).Inc()

	result := domain.ModelResult{
		FieldID:    field.FieldID,
		Page:       a.Page,
		Confidence: verdict.Confidence,
		ModelID:    out.ModelID,
		Method:     "judge",
		TokensUsed: out.TokensUsed,
		Elapsed:    out.Elapsed,
	}
	switch verdict.Winner {
	case "A":
		result.Response = a.Response
	case "B":
		result.Response = b.Response
	default:
		result.Response = verdict.Value
	}
	return result
}

func (s *Service) fallback(a, b domain.ModelResult) domain.ModelResult {
	winner := a
	if b.Confidence > a.Confidence {
		winner = b
	}
	winner.Confidence *= fallbackDiscount
	winner.Method = "judge-fallback"
	return winner
}

func (s *Service) prompt(field domain.FieldRequest, a, b domain.ModelResult, docContext string) string {
	var sb strings.Builder
	sb.WriteString("Two independent extractors disagree about a field in an insurance document.\n\n")
	fmt.Fprintf(&sb, "QUESTION: %s\nEXPECTED TYPE: %s\n\n", field.Question, field.ExpectedType)
	fmt.Fprintf(&sb, "ANSWER A (confidence %.2f): %s\n", a.Confidence, a.Response)
	fmt.Fprintf(&sb, "ANSWER B (confidence %.2f): %s\n\n", b.Confidence, b.Response)
	if docContext != "" {
		fmt.Fprintf(&sb, "DOCUMENT EXCERPT:\n%s\n\n", truncate(docContext, maxContextChars))
	}
	sb.WriteString("Pick the better answer or synthesize a correct one. Respond in exactly this format:\n")
	sb.WriteString("VERDICT: A | B | SYNTHESIZED:<value>\n")
	sb.WriteString("CONFIDENCE: <0.0-1.0>\n")
	sb.WriteString("REASONING: <one sentence>\n")
	return sb.String()
}

// verdict is the parsed judge decision.
type verdict struct {
	Winner     string // "A", "B", or "SYNTHESIZED"
	Value      string // set when synthesized
	Confidence float64
	Reasoning  string
}

func (v verdict) outcome() string {
	if v.Winner == "SYNTHESIZED" {
		return "synthesized"
	}
	return "picked"
}

// parseVerdict reads the line-oriented judge response leniently: lines
// may arrive in any order and confidence defaults to 0.75 when absent.
func parseVerdict(raw string) (verdict, bool) {
	v := verdict{Confidence: 0.75}
	found := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasPrefixFold(line, "VERDICT:"):
			val := strings.TrimSpace(line[len("VERDICT:"):])
			switch {
			case strings.EqualFold(val, "A"):
				v.Winner = "A"
				found = true
			case strings.EqualFold(val, "B"):
				v.Winner = "B"
				found = true
			case hasPrefixFold(val, "SYNTHESIZED:"):
				v.Winner = "SYNTHESIZED"
				v.Value = strings.TrimSpace(val[len("SYNTHESIZED:"):])
				found = v.Value != ""
			}
		case hasPrefixFold(line, "CONFIDENCE:"):
			if f, err := strconv.ParseFloat(strings.TrimSpace(line[len("CONFIDENCE:"):]), 64); err == nil && f >= 0 && f <= 1 {
				v.Confidence = f
			}
		case hasPrefixFold(line, "REASONING:"):
			v.Reasoning = strings.TrimSpace(line[len("REASONING:"):])
		}
	}
	return v, found
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
