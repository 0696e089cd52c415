package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
)

// Model is an extraction model using the OpenAI chat completions API.
// Handles both text pages and rendered page images (vision).
type Model struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ModelConfig holds the chat model settings.
type ModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewModel creates an OpenAI-compatible extraction model.
func NewModel(cfg *ModelConfig) *Model {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Model{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// ID implements domain.Model.
func (m *Model) ID() string { return "openai/" + m.model }

// Extract implements domain.Model. No retries here; callers own fallback policy.
func (m *Model) Extract(ctx context.Context, in domain.ModelInput) (domain.ModelOutput, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(in.Image) > 0 {
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: in.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(in.Image),
					Detail: openai.ImageURLDetailHigh,
				},
			},
		}
	} else {
		msg.Content = in.Prompt + "\n\nDOCUMENT:\n" + in.Text
	}

	start := time.Now()

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: 0,
	})

	elapsed := time.Since(start)

	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("openai", m.model, "error").Inc()
		return domain.ModelOutput{}, parseModelError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.ModelRequestsTotal.WithLabelValues("openai", m.model, "error").Inc()
		return domain.ModelOutput{}, fmt.Errorf("no choices in response: %w", domain.ErrMalformedOutput)
	}

	metrics.ModelRequestsTotal.WithLabelValues("openai", m.model, "success").Inc()
	metrics.ModelRequestDuration.WithLabelValues("openai", m.model).Observe(elapsed.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.ModelTokensTotal.WithLabelValues("openai", m.model).Add(float64(resp.Usage.TotalTokens))
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	domain.UsageFromContext(ctx).AddModelTokens(resp.Usage.TotalTokens)

	return domain.ModelOutput{
		Response:   answer,
		Confidence: ResponseConfidence(answer, string(resp.Choices[0].FinishReason)),
		TokensUsed: resp.Usage.TotalTokens,
		Elapsed:    elapsed,
		ModelID:    m.ID(),
	}, nil
}

// ResponseConfidence derives a coarse confidence from the response shape.
// The chat API exposes no calibrated scores, so the heuristic rewards a
// clean, complete answer and penalizes empty or truncated ones.
func ResponseConfidence(answer, finishReason string) float64 {
	switch {
	case answer == "":
		return 0
	case answer == domain.NotFound:
		return 0.3
	case finishReason == "length":
		return 0.5 // truncated mid-answer
	default:
		return 0.85
	}
}

// parseModelError maps provider errors onto the adapter failure taxonomy.
func parseModelError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai call: %w", domain.ErrModelTimeout)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("openai API error %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, domain.ErrModelRateLimited)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("openai API error %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, domain.ErrModelUnavailable)
		default:
			return fmt.Errorf("openai API error %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, domain.ErrMalformedOutput)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai request error %d: %w", reqErr.HTTPStatusCode, domain.ErrModelUnavailable)
	}

	return fmt.Errorf("openai call failed: %w", domain.ErrModelUnavailable)
}
