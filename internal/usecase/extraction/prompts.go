package extraction

import (
	"fmt"
	"strings"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// typeInstruction spells out the wire format expected per field type.
func typeInstruction(t domain.FieldType) string {
	switch t {
	case domain.TypeBoolean:
		return fmt.Sprintf("Answer with exactly %s or %s.", domain.AnswerYes, domain.AnswerNo)
	case domain.TypeDate:
		return "Answer with the date in MM-DD-YY format."
	case domain.TypeNumber:
		return "Answer with the numeric value only, no currency symbols or separators."
	case domain.TypeJSON:
		return "Answer with a single JSON object, no prose."
	default:
		return "Answer with the value only, no explanation."
	}
}

// fieldPrompt builds the single-field prompt. enhanced strengthens the
// instructions for the forced-reanalysis pass.
func fieldPrompt(f domain.FieldRequest, enhanced bool) string {
	var sb strings.Builder
	sb.WriteString("You are extracting a field from an insurance claim document.\n\n")
	fmt.Fprintf(&sb, "QUESTION: %s\n", f.Question)
	sb.WriteString(typeInstruction(f.ExpectedType))
	fmt.Fprintf(&sb, " If the document does not contain the answer, respond with exactly %s.\n", domain.NotFound)
	if enhanced {
		sb.WriteString("\nRe-examine carefully: the value may appear in headers, footers, tables, ")
		sb.WriteString("stamps, or handwritten annotations. Check abbreviations and partially ")
		sb.WriteString(fmt.Sprintf("obscured text before answering %s.\n", domain.NotFound))
	}
	return sb.String()
}

// consolidatedPrompt packs several questions into one semicolon-delimited
// answer.
func consolidatedPrompt(fields []domain.FieldRequest, enhanced bool) string {
	var sb strings.Builder
	sb.WriteString("You are extracting several fields from an insurance claim document.\n\n")
	for i, f := range fields {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, f.Question, f.ExpectedType)
	}
	fmt.Fprintf(&sb, "\nAnswer with exactly %d values separated by semicolons, in the order asked. ", len(fields))
	fmt.Fprintf(&sb, "Use %s for any value not present. Booleans are %s or %s; dates are MM-DD-YY.\n",
		domain.NotFound, domain.AnswerYes, domain.AnswerNo)
	if enhanced {
		sb.WriteString("\nRe-examine headers, footers, tables, stamps and handwritten annotations ")
		sb.WriteString("before marking any value as missing.\n")
	}
	return sb.String()
}
