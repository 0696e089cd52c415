package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/usecase/extraction"
	healthuc "github.com/alannreyes/uwia-sub001/internal/usecase/health"
)

type stubExtractor struct {
	lastReq extraction.Request
	result  extraction.Result
	tokens  int
}

func (s *stubExtractor) Extract(ctx context.Context, req extraction.Request) extraction.Result {
	s.lastReq = req
	if s.tokens > 0 {
		domain.UsageFromContext(ctx).AddModelTokens(s.tokens)
	}
	return s.result
}

type stubSessions struct {
	deleted []string
	err     error
}

func (s *stubSessions) DeleteSession(_ context.Context, sessionID string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, sessionID)
	return nil
}

type stubHealth struct {
	report healthuc.Report
}

func (s *stubHealth) Check(context.Context) healthuc.Report { return s.report }

func okExtraction() extraction.Result {
	return extraction.Result{
		Answers: map[string]domain.FieldAnswer{
			"policy_number": {
				FieldID:    "policy_number",
				Value:      "POL-4451",
				Confidence: 0.92,
				Method:     "dual-model",
				Pages:      []int{1},
			},
		},
		Strategy:     domain.StrategyDirect,
		Confidence:   0.92,
		NotFoundRate: 0,
	}
}

func newTestServer(ext *stubExtractor, sessions *stubSessions, report healthuc.Report) http.Handler {
	srv := NewServer(ext, sessions, &stubHealth{report: report}, zap.NewNop())
	return srv.Router()
}

func healthyReport() healthuc.Report {
	return healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
	}
}

func extractBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(ExtractRequest{
		FileName:  "claim.pdf",
		SizeBytes: 2 << 20,
		Pages: []PagePayload{
			{Number: 1, Text: "Policy Number: POL-4451"},
			{Number: 2, Text: "Signed by the insured."},
		},
		Fields: []FieldPayload{
			{FieldID: "policy_number", Question: "What is the policy number?", Type: "text"},
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestExtract_OK(t *testing.T) {
	ext := &stubExtractor{result: okExtraction(), tokens: 120}
	handler := newTestServer(ext, &stubSessions{}, healthyReport())

	req := httptest.NewRequest("POST", "/api/extract", bytes.NewReader(extractBody(t)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp ExtractResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	answer, ok := resp.Answers["policy_number"]
	if !ok {
		t.Fatalf("missing policy_number answer: %+v", resp.Answers)
	}
	if answer.Value != "POL-4451" || answer.Method != "dual-model" {
		t.Errorf("answer: got %+v", answer)
	}
	if resp.Strategy != "direct" {
		t.Errorf("strategy: got %q", resp.Strategy)
	}
	if resp.Usage.ModelTokens != 120 || resp.Usage.ModelCalls != 1 {
		t.Errorf("usage: got %+v", resp.Usage)
	}

	if len(ext.lastReq.Document.Pages) != 2 {
		t.Errorf("pages passed to extractor: got %d", len(ext.lastReq.Document.Pages))
	}
	if ext.lastReq.Fields[0].ExpectedType != domain.TypeText {
		t.Errorf("field type: got %q", ext.lastReq.Fields[0].ExpectedType)
	}
}

func TestExtract_InvalidJSON_400(t *testing.T) {
	handler := newTestServer(&stubExtractor{}, &stubSessions{}, healthyReport())

	req := httptest.NewRequest("POST", "/api/extract", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != CodeBadRequest {
		t.Errorf("code: got %s, want %s", errResp.Code, CodeBadRequest)
	}
}

func TestExtract_NoFields_400(t *testing.T) {
	handler := newTestServer(&stubExtractor{}, &stubSessions{}, healthyReport())

	body, _ := json.Marshal(ExtractRequest{
		Pages: []PagePayload{{Number: 1, Text: "text"}},
	})
	req := httptest.NewRequest("POST", "/api/extract", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var errResp ErrorResponse
	_ = json.NewDecoder(rr.Body).Decode(&errResp)
	if errResp.Code != CodeValidationFailed {
		t.Errorf("code: got %s, want %s", errResp.Code, CodeValidationFailed)
	}
}

func TestExtract_UnknownFieldType_400(t *testing.T) {
	handler := newTestServer(&stubExtractor{}, &stubSessions{}, healthyReport())

	body, _ := json.Marshal(ExtractRequest{
		Pages:  []PagePayload{{Number: 1, Text: "text"}},
		Fields: []FieldPayload{{FieldID: "f1", Question: "q", Type: "decimal"}},
	})
	req := httptest.NewRequest("POST", "/api/extract", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestExtract_DuplicateFieldID_400(t *testing.T) {
	handler := newTestServer(&stubExtractor{}, &stubSessions{}, healthyReport())

	body, _ := json.Marshal(ExtractRequest{
		Pages: []PagePayload{{Number: 1, Text: "text"}},
		Fields: []FieldPayload{
			{FieldID: "f1", Question: "q1", Type: "text"},
			{FieldID: "f1", Question: "q2", Type: "text"},
		},
	})
	req := httptest.NewRequest("POST", "/api/extract", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestExtract_BodyTooLarge_413(t *testing.T) {
	srv := NewServer(&stubExtractor{}, &stubSessions{}, &stubHealth{report: healthyReport()}, zap.NewNop()).
		WithMaxBodyBytes(64)
	handler := srv.Router()

	req := httptest.NewRequest("POST", "/api/extract", bytes.NewReader(extractBody(t)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestDeleteSession_OK(t *testing.T) {
	sessions := &stubSessions{}
	handler := newTestServer(&stubExtractor{}, sessions, healthyReport())

	req := httptest.NewRequest("DELETE", "/api/sessions/sess-42", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(sessions.deleted) != 1 || sessions.deleted[0] != "sess-42" {
		t.Errorf("deleted sessions: got %v", sessions.deleted)
	}
}

func TestDeleteSession_NotFound_404(t *testing.T) {
	sessions := &stubSessions{err: domain.ErrSessionNotFound}
	handler := newTestServer(&stubExtractor{}, sessions, healthyReport())

	req := httptest.NewRequest("DELETE", "/api/sessions/missing", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	var errResp ErrorResponse
	_ = json.NewDecoder(rr.Body).Decode(&errResp)
	if errResp.Code != CodeSessionNotFound {
		t.Errorf("code: got %s, want %s", errResp.Code, CodeSessionNotFound)
	}
}

func TestDeleteSession_Expired_410(t *testing.T) {
	sessions := &stubSessions{err: domain.ErrSessionExpired}
	handler := newTestServer(&stubExtractor{}, sessions, healthyReport())

	req := httptest.NewRequest("DELETE", "/api/sessions/old", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusGone {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusGone)
	}
}

func TestHealth_OK(t *testing.T) {
	handler := newTestServer(&stubExtractor{}, &stubSessions{}, healthyReport())

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealth_Degraded_503(t *testing.T) {
	report := healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError},
	}
	handler := newTestServer(&stubExtractor{}, &stubSessions{}, report)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
