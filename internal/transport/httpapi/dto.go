package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/usecase/extraction"
)

// ErrorCode labels an error response body.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeSessionNotFound  ErrorCode = "session_not_found"
	CodeSessionExpired   ErrorCode = "session_expired"
	CodeEmptyDocument    ErrorCode = "empty_document"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeProviderError    ErrorCode = "provider_error"
	CodeProviderTimeout  ErrorCode = "provider_timeout"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// PagePayload is one document page on the wire. Image is base64 PNG and
// optional; text-only clients omit it.
type PagePayload struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Image  string `json:"image,omitempty"`
}

// FieldPayload is one typed question on the wire.
type FieldPayload struct {
	FieldID  string `json:"field_id"`
	Question string `json:"question"`
	Type     string `json:"type"`
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	FileName  string         `json:"file_name"`
	SizeBytes int64          `json:"size_bytes"`
	Pages     []PagePayload  `json:"pages"`
	Fields    []FieldPayload `json:"fields"`
}

// AnswerPayload is the resolved value for one field.
type AnswerPayload struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Pages      []int   `json:"pages,omitempty"`
}

// UsagePayload reports token consumption for the request.
type UsagePayload struct {
	ModelTokens     int `json:"model_tokens"`
	EmbeddingTokens int `json:"embedding_tokens"`
	ModelCalls      int `json:"model_calls"`
}

// ExtractResponse is the body returned by POST /api/extract.
type ExtractResponse struct {
	Answers      map[string]AnswerPayload `json:"answers"`
	Strategy     string                   `json:"strategy"`
	SessionID    string                   `json:"session_id,omitempty"`
	Confidence   float64                  `json:"confidence"`
	NotFoundRate float64                  `json:"not_found_rate"`
	Usage        UsagePayload             `json:"usage"`
}

var validFieldTypes = map[domain.FieldType]struct{}{
	domain.TypeBoolean: {},
	domain.TypeDate:    {},
	domain.TypeText:    {},
	domain.TypeNumber:  {},
	domain.TypeJSON:    {},
}

func requestFromDTO(req ExtractRequest) (extraction.Request, error) {
	if len(req.Fields) == 0 {
		return extraction.Request{}, errors.New("at least one field is required")
	}
	if len(req.Pages) == 0 {
		return extraction.Request{}, errors.New("at least one page is required")
	}

	pages := make([]domain.Page, len(req.Pages))
	for i, p := range req.Pages {
		number := p.Number
		if number == 0 {
			number = i + 1
		}
		var image []byte
		if p.Image != "" {
			decoded, err := base64.StdEncoding.DecodeString(p.Image)
			if err != nil {
				return extraction.Request{}, fmt.Errorf("page %d: invalid image encoding", number)
			}
			image = decoded
		}
		pages[i] = domain.Page{Number: number, Text: p.Text, Image: image}
	}

	fields := make([]domain.FieldRequest, len(req.Fields))
	seen := make(map[string]struct{}, len(req.Fields))
	for i, f := range req.Fields {
		if f.FieldID == "" {
			return extraction.Request{}, fmt.Errorf("field %d: field_id is required", i)
		}
		if _, dup := seen[f.FieldID]; dup {
			return extraction.Request{}, fmt.Errorf("field %q: duplicate field_id", f.FieldID)
		}
		seen[f.FieldID] = struct{}{}
		if f.Question == "" {
			return extraction.Request{}, fmt.Errorf("field %q: question is required", f.FieldID)
		}
		ft := domain.FieldType(f.Type)
		if f.Type == "" {
			ft = domain.TypeText
		} else if _, ok := validFieldTypes[ft]; !ok {
			return extraction.Request{}, fmt.Errorf("field %q: unknown type %q", f.FieldID, f.Type)
		}
		fields[i] = domain.FieldRequest{FieldID: f.FieldID, Question: f.Question, ExpectedType: ft}
	}

	size := req.SizeBytes
	if size == 0 {
		for _, p := range pages {
			size += int64(len(p.Text) + len(p.Image))
		}
	}

	return extraction.Request{
		Document: domain.Document{
			FileName:  req.FileName,
			SizeBytes: size,
			Pages:     pages,
		},
		Fields: fields,
	}, nil
}

func responseToDTO(res extraction.Result, usage *domain.Usage) ExtractResponse {
	answers := make(map[string]AnswerPayload, len(res.Answers))
	for id, a := range res.Answers {
		answers[id] = AnswerPayload{
			Value:      a.Value,
			Confidence: a.Confidence,
			Method:     a.Method,
			Pages:      a.Pages,
		}
	}

	resp := ExtractResponse{
		Answers:      answers,
		Strategy:     string(res.Strategy),
		SessionID:    res.SessionID,
		Confidence:   res.Confidence,
		NotFoundRate: res.NotFoundRate,
	}
	if usage != nil {
		resp.Usage = UsagePayload{
			ModelTokens:     usage.ModelTokens,
			EmbeddingTokens: usage.EmbeddingTokens,
			ModelCalls:      usage.ModelCalls,
		}
	}
	return resp
}
