package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
)

// Model is an extraction model backed by the Gemini API. Its long context
// and native PDF-page vision make it the usual dual-model partner for
// scanned documents.
type Model struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// Config holds the Gemini model settings.
type Config struct {
	APIKey string
	Model  string
	Logger *zap.Logger
}

// New creates a Gemini extraction model.
func New(ctx context.Context, cfg *Config) (*Model, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Model{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

// ID implements domain.Model.
func (m *Model) ID() string { return "gemini/" + m.model }

// Close releases the underlying client.
func (m *Model) Close() error { return m.client.Close() }

// Extract implements domain.Model.
func (m *Model) Extract(ctx context.Context, in domain.ModelInput) (domain.ModelOutput, error) {
	gm := m.client.GenerativeModel(m.model)
	gm.SetTemperature(0)

	var parts []genai.Part
	if len(in.Image) > 0 {
		parts = []genai.Part{genai.ImageData("png", in.Image), genai.Text(in.Prompt)}
	} else {
		parts = []genai.Part{genai.Text(in.Prompt + "\n\nDOCUMENT:\n" + in.Text)}
	}

	start := time.Now()

	resp, err := gm.GenerateContent(ctx, parts...)

	elapsed := time.Since(start)

	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("gemini", m.model, "error").Inc()
		return domain.ModelOutput{}, parseModelError(err)
	}

	answer, ok := firstText(resp)
	if !ok {
		metrics.ModelRequestsTotal.WithLabelValues("gemini", m.model, "error").Inc()
		return domain.ModelOutput{}, fmt.Errorf("no text candidates in response: %w", domain.ErrMalformedOutput)
	}

	metrics.ModelRequestsTotal.WithLabelValues("gemini", m.model, "success").Inc()
	metrics.ModelRequestDuration.WithLabelValues("gemini", m.model).Observe(elapsed.Seconds())

	var tokens int
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
		metrics.ModelTokensTotal.WithLabelValues("gemini", m.model).Add(float64(tokens))
	}
	domain.UsageFromContext(ctx).AddModelTokens(tokens)

	answer = strings.TrimSpace(answer)
	confidence := 0.85
	switch {
	case answer == "":
		confidence = 0
	case answer == domain.NotFound:
		confidence = 0.3
	}

	return domain.ModelOutput{
		Response:   answer,
		Confidence: confidence,
		TokensUsed: tokens,
		Elapsed:    elapsed,
		ModelID:    m.ID(),
	}, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt), true
		}
	}
	return "", false
}

// parseModelError maps Gemini API errors onto the adapter failure taxonomy.
func parseModelError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini call: %w", domain.ErrModelTimeout)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("gemini API error %d: %s: %w", apiErr.Code, apiErr.Message, domain.ErrModelRateLimited)
		case apiErr.Code >= 500:
			return fmt.Errorf("gemini API error %d: %s: %w", apiErr.Code, apiErr.Message, domain.ErrModelUnavailable)
		default:
			return fmt.Errorf("gemini API error %d: %s: %w", apiErr.Code, apiErr.Message, domain.ErrMalformedOutput)
		}
	}

	return fmt.Errorf("gemini call failed: %w", domain.ErrModelUnavailable)
}
