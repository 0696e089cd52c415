package domain

import "strings"

// NotFound is the canonical placeholder for a value not located in the document.
const NotFound = "NOT_FOUND"

// Boolean answer literals used on the wire.
const (
	AnswerYes = "YES"
	AnswerNo  = "NO"
)

// FieldType is the expected answer type of a field.
type FieldType string

// Field type constants.
const (
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeJSON    FieldType = "json"
)

// FieldRequest is one named, typed question to answer from a document.
// Immutable input to an extraction run.
type FieldRequest struct {
	FieldID      string
	Question     string
	ExpectedType FieldType
}

// IsBoolean reports whether the field expects a YES/NO answer.
func (f FieldRequest) IsBoolean() bool { return f.ExpectedType == TypeBoolean }

// Keyword reports whether the field id or question contains the given keyword
// (case-insensitive). Used by page targeting and field grouping rules.
func (f FieldRequest) Keyword(kw string) bool {
	return strings.Contains(strings.ToLower(f.FieldID), kw) ||
		strings.Contains(strings.ToLower(f.Question), kw)
}
