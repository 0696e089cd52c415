// Package targeting narrows which pages of a document are examined per
// field. One classification model call profiles a sampled subset of
// pages; the profile is interpolated to the rest and a rule table maps
// each field to its candidate pages. Targeting never fails: when the
// classification call errors or cannot be parsed, a position-only
// heuristic produces the mapping at reduced confidence.
package targeting

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

const (
	// sampleThreshold is the page count at or below which every page is
	// classified directly.
	sampleThreshold = 10

	// minTargetPages and maxTargetPages clamp the per-field page budget.
	minTargetPages = 3
	maxTargetPages = 10

	// interpolationDiscount scales the confidence of profiles copied
	// from the nearest sampled page.
	interpolationDiscount = 0.8

	// heuristicConfidence is reported when classification failed and
	// only page positions informed the mapping.
	heuristicConfidence = 0.35

	// snippetLen bounds the per-page text sent to the classifier.
	snippetLen = 600

	baseConfidence        = 0.5
	specializedPageBonus  = 0.2
	typeMatchBonus        = 0.3
)

// Targeter maps fields to candidate pages.
type Targeter struct {
	model  Classifier
	logger *zap.Logger
}

// New creates a Targeter.
func New(model Classifier, log *zap.Logger) *Targeter {
	return &Targeter{model: model, logger: log}
}

// MapFields produces one PageMapping per field, in field order.
func (t *Targeter) MapFields(ctx context.Context, doc domain.Document, fields []domain.FieldRequest) []domain.PageMapping {
	profiles, classified := t.profilePages(ctx, doc)

	mappings := make([]domain.PageMapping, 0, len(fields))
	for _, f := range fields {
		if classified {
			mappings = append(mappings, t.mapField(f, doc.PageCount(), profiles))
		} else {
			mappings = append(mappings, heuristicMapping(f, doc.PageCount()))
		}
	}
	return mappings
}

// profilePages classifies sampled pages via one model call and
// interpolates to the full document. The second return is false when
// the heuristic fallback must be used.
func (t *Targeter) profilePages(ctx context.Context, doc domain.Document) ([]domain.PageProfile, bool) {
	n := doc.PageCount()
	if n == 0 {
		return nil, false
	}

	sampled := SamplePages(n)
	prompt := classificationPrompt(doc, sampled)

	out, err := t.model.Extract(ctx, domain.ModelInput{
		Text:         doc.Text(),
		Prompt:       prompt,
		ExpectedType: domain.TypeJSON,
		FieldID:      "page_classification",
	})
	if err != nil {
		t.logger.Warn("page classification call failed, using heuristic targeting",
			zap.String("model", t.model.ID()),
			zap.Error(err))
		return nil, false
	}

	profiles, err := parseClassification(out.Response, sampled)
	if err != nil {
		t.logger.Warn("page classification unparseable, using heuristic targeting",
			zap.String("model", t.model.ID()),
			zap.Error(err))
		return nil, false
	}

	return interpolate(profiles, n), true
}

// SamplePages picks a representative page subset: all pages for short
// documents, otherwise the first 3, the quartile pages, and the last 2.
// Pages are 1-based and returned sorted without duplicates.
func SamplePages(pageCount int) []int {
	if pageCount <= sampleThreshold {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	set := map[int]struct{}{
		1: {}, 2: {}, 3: {},
		pageCount - 1: {}, pageCount: {},
		pageCount / 4: {}, pageCount / 2: {}, pageCount * 3 / 4: {},
	}
	pages := make([]int, 0, len(set))
	for p := range set {
		if p >= 1 && p <= pageCount {
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)
	return pages
}

// classificationPrompt builds the single prompt covering all sampled pages.
func classificationPrompt(doc domain.Document, sampled []int) string {
	var sb strings.Builder
	sb.WriteString("Classify each numbered page of this insurance document. ")
	sb.WriteString("Respond with a JSON array only, one object per page: ")
	sb.WriteString(`{"page":n,"kind":"declarations|coverage|exclusions|signatures|general",`)
	sb.WriteString(`"has_signatures":bool,"has_dates":bool,"has_policy_ids":bool,"has_amounts":bool}`)
	sb.WriteString("\n\n")
	for _, p := range sampled {
		page, ok := doc.PageByNumber(p)
		if !ok {
			continue
		}
		text := page.Text
		if len(text) > snippetLen {
			text = text[:snippetLen]
		}
		fmt.Fprintf(&sb, "--- PAGE %d ---\n%s\n\n", p, text)
	}
	return sb.String()
}

type pageClassification struct {
	Page          int    `json:"page"`
	Kind          string `json:"kind"`
	HasSignatures bool   `json:"has_signatures"`
	HasDates      bool   `json:"has_dates"`
	HasPolicyIDs  bool   `json:"has_policy_ids"`
	HasAmounts    bool   `json:"has_amounts"`
}

// parseClassification parses the model response leniently: code fences
// are stripped and the array is located by bracket scan before
// unmarshalling.
func parseClassification(raw string, sampled []int) ([]domain.PageProfile, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in classification response")
	}

	var parsed []pageClassification
	if err := json.Unmarshal([]byte(s[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("empty classification array")
	}

	valid := make(map[int]struct{}, len(sampled))
	for _, p := range sampled {
		valid[p] = struct{}{}
	}

	profiles := make([]domain.PageProfile, 0, len(parsed))
	for _, pc := range parsed {
		if _, ok := valid[pc.Page]; !ok {
			continue
		}
		profiles = append(profiles, domain.PageProfile{
			Page:          pc.Page,
			Kind:          pageKind(pc.Kind),
			HasSignatures: pc.HasSignatures,
			HasDates:      pc.HasDates,
			HasPolicyIDs:  pc.HasPolicyIDs,
			HasAmounts:    pc.HasAmounts,
			Confidence:    1.0,
		})
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("classification covered no sampled pages")
	}
	return profiles, nil
}

func pageKind(s string) domain.PageKind {
	switch domain.PageKind(strings.ToLower(strings.TrimSpace(s))) {
	case domain.PageDeclarations:
		return domain.PageDeclarations
	case domain.PageCoverage:
		return domain.PageCoverage
	case domain.PageExclusions:
		return domain.PageExclusions
	case domain.PageSignatures:
		return domain.PageSignatures
	default:
		return domain.PageGeneral
	}
}

// interpolate extends sampled profiles to every page by copying the
// nearest sampled profile with a confidence discount.
func interpolate(sampled []domain.PageProfile, pageCount int) []domain.PageProfile {
	byPage := make(map[int]domain.PageProfile, len(sampled))
	for _, p := range sampled {
		byPage[p.Page] = p
	}

	full := make([]domain.PageProfile, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		if p, ok := byPage[page]; ok {
			full = append(full, p)
			continue
		}
		nearest := nearestProfile(sampled, page)
		full = append(full, domain.PageProfile{
			Page:          page,
			Kind:          nearest.Kind,
			HasSignatures: nearest.HasSignatures,
			HasDates:      nearest.HasDates,
			HasPolicyIDs:  nearest.HasPolicyIDs,
			HasAmounts:    nearest.HasAmounts,
			Confidence:    nearest.Confidence * interpolationDiscount,
			Interpolated:  true,
		})
	}
	return full
}

func nearestProfile(sampled []domain.PageProfile, page int) domain.PageProfile {
	best := sampled[0]
	bestDist := abs(best.Page - page)
	for _, p := range sampled[1:] {
		if d := abs(p.Page - page); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
