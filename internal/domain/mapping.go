package domain

// PageMapping narrows an N-page document to the pages worth examining for one
// field. Produced by page targeting, consumed once per field per document.
type PageMapping struct {
	FieldID     string
	TargetPages []int // 1-based, ordered by relevance
	Reasoning   string
	Confidence  float64
}

// PageKind is the content classification of a document page.
type PageKind string

// Page kind constants.
const (
	PageDeclarations PageKind = "declarations"
	PageCoverage     PageKind = "coverage"
	PageExclusions   PageKind = "exclusions"
	PageSignatures   PageKind = "signatures"
	PageGeneral      PageKind = "general"
)

// PageProfile is the classification of a single page's content.
type PageProfile struct {
	Page          int
	Kind          PageKind
	HasSignatures bool
	HasDates      bool
	HasPolicyIDs  bool
	HasAmounts    bool
	Confidence    float64
	Interpolated  bool
}
