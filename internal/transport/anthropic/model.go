package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
)

// Model is an extraction model backed by the Anthropic messages API. Claude
// handles both text pages and rendered page images, and doubles as the
// arbitration model.
type Model struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// Config holds the Anthropic model settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// New creates an Anthropic extraction model.
func New(cfg *Config) *Model {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &Model{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// ID implements domain.Model.
func (m *Model) ID() string { return "anthropic/" + m.model }

// Extract implements domain.Model.
func (m *Model) Extract(ctx context.Context, in domain.ModelInput) (domain.ModelOutput, error) {
	var content []anthropic.MessageContent
	if len(in.Image) > 0 {
		content = append(content,
			anthropic.NewImageMessageContent(
				anthropic.NewMessageContentSource(anthropic.MessagesContentSourceTypeBase64, "image/png", in.Image),
			),
			anthropic.NewTextMessageContent(in.Prompt),
		)
	} else {
		content = append(content,
			anthropic.NewTextMessageContent(in.Prompt+"\n\nDOCUMENT:\n"+in.Text),
		)
	}

	start := time.Now()

	resp, err := m.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(m.model),
		Messages:  []anthropic.Message{{Role: anthropic.RoleUser, Content: content}},
		MaxTokens: 1024,
	})

	elapsed := time.Since(start)

	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("anthropic", m.model, "error").Inc()
		return domain.ModelOutput{}, parseModelError(err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		metrics.ModelRequestsTotal.WithLabelValues("anthropic", m.model, "error").Inc()
		return domain.ModelOutput{}, fmt.Errorf("no content in response: %w", domain.ErrMalformedOutput)
	}

	metrics.ModelRequestsTotal.WithLabelValues("anthropic", m.model, "success").Inc()
	metrics.ModelRequestDuration.WithLabelValues("anthropic", m.model).Observe(elapsed.Seconds())

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	if tokens > 0 {
		metrics.ModelTokensTotal.WithLabelValues("anthropic", m.model).Add(float64(tokens))
	}
	domain.UsageFromContext(ctx).AddModelTokens(tokens)

	answer := strings.TrimSpace(*resp.Content[0].Text)

	return domain.ModelOutput{
		Response:   answer,
		Confidence: responseConfidence(answer, string(resp.StopReason)),
		TokensUsed: tokens,
		Elapsed:    elapsed,
		ModelID:    m.ID(),
	}, nil
}

func responseConfidence(answer, stopReason string) float64 {
	switch {
	case answer == "":
		return 0
	case answer == domain.NotFound:
		return 0.3
	case stopReason == "max_tokens":
		return 0.5
	default:
		return 0.85
	}
}

// parseModelError maps Anthropic API errors onto the adapter failure taxonomy.
func parseModelError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("anthropic call: %w", domain.ErrModelTimeout)
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch string(apiErr.Type) {
		case "rate_limit_error":
			return fmt.Errorf("anthropic API error: %s: %w", apiErr.Message, domain.ErrModelRateLimited)
		case "overloaded_error", "api_error":
			return fmt.Errorf("anthropic API error: %s: %w", apiErr.Message, domain.ErrModelUnavailable)
		default:
			return fmt.Errorf("anthropic API error: %s: %w", apiErr.Message, domain.ErrMalformedOutput)
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("anthropic request error %d: %w", reqErr.StatusCode, domain.ErrModelUnavailable)
	}

	return fmt.Errorf("anthropic call failed: %w", domain.ErrModelUnavailable)
}
