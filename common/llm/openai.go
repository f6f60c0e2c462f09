package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"basegraph.app/autoreply/common/logger"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const maxLoggedBody = 2048

type openaiClient struct {
	client openai.Client
	model  string
}

func newOpenAIClient(cfg Config) *openaiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &openaiClient{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
			option.WithRequestTimeout(timeout),
			// One synchronous call per attempt; retries belong to the job runner.
			option.WithMaxRetries(0),
		),
		model: model,
	}
}

func (c *openaiClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    convertMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			slog.ErrorContext(ctx, "llm provider returned non-success status",
				"model", c.model,
				"status_code", apiErr.StatusCode,
				"body", logger.Truncate(string(apiErr.DumpResponse(true)), maxLoggedBody))
			return "", nil
		}
		if isTransportError(err) {
			return "", err
		}
		slog.ErrorContext(ctx, "llm provider returned malformed response",
			"model", c.model,
			"error", err)
		return "", nil
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		slog.WarnContext(ctx, "llm response has no choices", "model", c.model, "body", logger.Truncate(resp.RawJSON(), maxLoggedBody))
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

// isTransportError reports failures where no usable HTTP response arrived.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
