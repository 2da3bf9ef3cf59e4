package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrUnknownModel is returned for model identifiers outside the
	// enumerated set.
	ErrUnknownModel = errors.New("unknown model")

	// ErrEmptyReply is returned when the API answers with no choices.
	ErrEmptyReply = errors.New("completion returned no choices")
)

// CompletionClient produces a single assistant reply for an ordered message
// sequence. Implementations are synchronous; the caller blocks for the full
// round trip.
type CompletionClient interface {
	Complete(ctx context.Context, credential, model string, temperature float64, messages []domain.Message) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint via
// langchaingo. Credentials are supplied per call because every learner
// brings their own key.
type OpenAIClient struct {
	baseURL string
	timeout time.Duration
}

// NewOpenAIClient creates a completion client against the given base URL.
func NewOpenAIClient(baseURL string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{baseURL: baseURL, timeout: timeout}
}

// Complete sends the full ordered message sequence and returns the single
// assistant reply. No retries; a failed call surfaces to the caller.
func (c *OpenAIClient) Complete(ctx context.Context, credential, model string, temperature float64, messages []domain.Message) (string, error) {
	if !IsSupported(model) {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	client, err := openai.New(
		openai.WithToken(credential),
		openai.WithModel(model),
		openai.WithBaseURL(c.baseURL),
	)
	if err != nil {
		return "", fmt.Errorf("create completion client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := client.GenerateContent(ctx, toContent(messages),
		llms.WithTemperature(ClampTemperature(temperature)))
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func toContent(messages []domain.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		var role llms.ChatMessageType
		switch msg.Role {
		case domain.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case domain.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}
	return content
}
