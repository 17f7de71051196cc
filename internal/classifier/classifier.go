// Package classifier resolves natural-language commands into structured
// intents using an external chat-completion service.
package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/arcai/arc-server/internal/config"
	"github.com/arcai/arc-server/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// User-presentable failure messages. Raw remote error text must never reach
// the end user.
const (
	msgAPIFailure  = "I apologize, a network error occurred while processing your request. Please try again."
	msgConfigError = "I am not fully configured yet: my language service credentials are missing. Please contact the administrator."
)

// Classifier produces a StructuredIntent for a command plus trailing context.
// Implementations never fail: every failure mode is absorbed into an intent
// with Intent == ERROR and a safe TextResponse.
type Classifier interface {
	Classify(ctx context.Context, command string, history []domain.Turn) domain.StructuredIntent
}

// Client is a Classifier backed by an OpenAI-compatible chat-completion
// endpoint.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a classifier client. If the API credential is absent the client
// is created in a degraded mode where every call reports a config error; the
// rest of the pipeline keeps working.
func New(cfg config.ClassifierConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if cfg.APIKey == "" {
		logger.Warn("Classifier API key missing, all commands will fail fast")
		return c
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	c.api = openai.NewClientWithConfig(apiCfg)
	return c
}

// Classify sends the command and trailing context to the remote model and
// parses its JSON reply. One-shot with a hard timeout; no retries.
func (c *Client) Classify(ctx context.Context, command string, history []domain.Turn) domain.StructuredIntent {
	if c.api == nil {
		return errorIntent(domain.ActionConfigError, msgConfigError)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderUserPrompt(command, history)},
		},
	})
	if err != nil {
		c.logger.Error("Classifier call failed", "error", err, "duration", time.Since(start), "model", c.model)
		return errorIntent(domain.ActionAPIFailure, msgAPIFailure)
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("Classifier returned no choices", "model", c.model)
		return errorIntent(domain.ActionAPIFailure, msgAPIFailure)
	}

	intent, err := parseIntent(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Error("Classifier returned malformed payload", "error", err, "model", c.model)
		return errorIntent(domain.ActionAPIFailure, msgAPIFailure)
	}

	c.logger.Debug("Classifier response",
		"model", c.model,
		"duration", time.Since(start),
		"intent", intent.Intent,
		"action", intent.Action)
	return intent
}

// parseIntent defensively decodes the remote model's textual payload.
func parseIntent(raw string) (domain.StructuredIntent, error) {
	var intent domain.StructuredIntent
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &intent); err != nil {
		return domain.StructuredIntent{}, err
	}
	if strings.TrimSpace(intent.TextResponse) == "" {
		return domain.StructuredIntent{}, errMissingTextResponse
	}
	return intent, nil
}

// stripCodeFences removes a surrounding markdown code fence, which models
// emit even when asked for bare JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func errorIntent(action, text string) domain.StructuredIntent {
	return domain.StructuredIntent{
		Intent:       domain.IntentError,
		Action:       action,
		TextResponse: text,
	}
}
