package targeting

import (
	"fmt"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// fieldKind classifies a field by its id and question keywords for the
// page rule table.
type fieldKind string

const (
	kindSignature     fieldKind = "signature"
	kindDate          fieldKind = "date"
	kindIdentifier    fieldKind = "identifier"
	kindExclusion     fieldKind = "exclusion"
	kindComprehensive fieldKind = "comprehensive"
	kindGeneral       fieldKind = "general"
)

func classifyField(f domain.FieldRequest) fieldKind {
	switch {
	case f.Keyword("signature") || f.Keyword("sign") || f.Keyword("stamp"):
		return kindSignature
	case f.ExpectedType == domain.TypeJSON || f.Keyword(";"):
		return kindComprehensive
	case f.ExpectedType == domain.TypeDate || f.Keyword("date") || f.Keyword("effective") || f.Keyword("expiration"):
		return kindDate
	case f.Keyword("policy") || f.Keyword("number") || f.Keyword("claim") || f.Keyword("name") || f.Keyword("insured"):
		return kindIdentifier
	case f.Keyword("exclusion") || f.Keyword("exception") || f.Keyword("limitation"):
		return kindExclusion
	default:
		return kindGeneral
	}
}

// mapField applies the rule table against the classified page profiles.
func (t *Targeter) mapField(f domain.FieldRequest, pageCount int, profiles []domain.PageProfile) domain.PageMapping {
	kind := classifyField(f)

	var pages []int
	var specializedHit, typeHit bool

	switch kind {
	case kindSignature:
		// Signatures live at the end of insurance documents.
		pages = lastPages(pageCount, minTargetPages)
		for _, p := range profiles {
			if p.Kind == domain.PageSignatures || p.HasSignatures {
				pages = append(pages, p.Page)
				specializedHit = true
				if p.HasSignatures {
					typeHit = true
				}
			}
		}
	case kindDate:
		pages = firstPages(pageCount, minTargetPages)
		for _, p := range profiles {
			if p.Kind == domain.PageDeclarations {
				pages = append(pages, p.Page)
				specializedHit = true
			}
			if p.HasDates {
				pages = append(pages, p.Page)
				typeHit = true
			}
		}
	case kindIdentifier:
		pages = firstPages(pageCount, minTargetPages)
		for _, p := range profiles {
			if p.Kind == domain.PageDeclarations {
				pages = append(pages, p.Page)
				specializedHit = true
			}
			if p.HasPolicyIDs {
				pages = append(pages, p.Page)
				typeHit = true
			}
		}
	case kindExclusion:
		pages = middlePages(pageCount, minTargetPages)
		for _, p := range profiles {
			if p.Kind == domain.PageExclusions {
				pages = append(pages, p.Page)
				specializedHit = true
				typeHit = true
			}
		}
	case kindComprehensive:
		pages = append(pages, firstPages(pageCount, 3)...)
		pages = append(pages, middlePages(pageCount, 2)...)
		pages = append(pages, lastPages(pageCount, 2)...)
	default:
		pages = firstPages(pageCount, minTargetPages)
		for _, p := range profiles {
			if p.Kind == domain.PageCoverage || p.HasAmounts {
				pages = append(pages, p.Page)
			}
		}
	}

	pages = clampPages(pages, pageCount)

	conf := baseConfidence
	if specializedHit {
		conf += specializedPageBonus
	}
	if typeHit {
		conf += typeMatchBonus
	}
	if conf > 1.0 {
		conf = 1.0
	}

	return domain.PageMapping{
		FieldID:     f.FieldID,
		TargetPages: pages,
		Reasoning:   fmt.Sprintf("%s field: %d candidate pages from classified profile", kind, len(pages)),
		Confidence:  conf,
	}
}

// heuristicMapping is the position-only fallback used when no page
// profile is available.
func heuristicMapping(f domain.FieldRequest, pageCount int) domain.PageMapping {
	kind := classifyField(f)

	var pages []int
	switch kind {
	case kindSignature:
		pages = lastPages(pageCount, minTargetPages)
	case kindExclusion:
		pages = middlePages(pageCount, minTargetPages)
	case kindComprehensive:
		pages = append(pages, firstPages(pageCount, 3)...)
		pages = append(pages, middlePages(pageCount, 2)...)
		pages = append(pages, lastPages(pageCount, 2)...)
	default:
		pages = firstPages(pageCount, minTargetPages)
	}

	return domain.PageMapping{
		FieldID:     f.FieldID,
		TargetPages: clampPages(pages, pageCount),
		Reasoning:   fmt.Sprintf("%s field: position-only heuristic", kind),
		Confidence:  heuristicConfidence,
	}
}

func firstPages(pageCount, n int) []int {
	if n > pageCount {
		n = pageCount
	}
	pages := make([]int, 0, n)
	for p := 1; p <= n; p++ {
		pages = append(pages, p)
	}
	return pages
}

func lastPages(pageCount, n int) []int {
	if n > pageCount {
		n = pageCount
	}
	pages := make([]int, 0, n)
	for p := pageCount - n + 1; p <= pageCount; p++ {
		pages = append(pages, p)
	}
	return pages
}

func middlePages(pageCount, n int) []int {
	if n > pageCount {
		n = pageCount
	}
	start := pageCount/2 - n/2
	if start < 1 {
		start = 1
	}
	pages := make([]int, 0, n)
	for p := start; p < start+n && p <= pageCount; p++ {
		pages = append(pages, p)
	}
	return pages
}

// clampPages deduplicates (keeping first-mention order), drops pages
// outside the document, and bounds the list to [minTargetPages..maxTargetPages]
// where the document allows.
func clampPages(pages []int, pageCount int) []int {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > pageCount {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	if len(out) > maxTargetPages {
		out = out[:maxTargetPages]
	}

	// Pad toward minTargetPages with early pages when the rule produced
	// too few candidates.
	for p := 1; len(out) < minTargetPages && p <= pageCount; p++ {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out
}
