// Package answer turns a retrieved chunk and a question into a final answer.
package answer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// Prompt is the input to one generation call. User, when set, is sent as the
// user message verbatim instead of the context and question.
type Prompt struct {
	System      string
	Context     string
	Question    string
	User        string
	Model       string
	Temperature float64
}

// UserMessage lays out the retrieved context followed by the question.
func (p Prompt) UserMessage() string {
	if p.User != "" {
		return p.User
	}
	return p.Context + "\n\nQuestion:\n" + p.Question
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Base URLs of the supported OpenAI-compatible providers.
const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// OpenAIConfig configures the chat completion client.
type OpenAIConfig struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIGenerator calls an OpenAI-compatible chat completions API.
type OpenAIGenerator struct {
	client sdk.Client
	model  string
}

// NewOpenAIGenerator creates a generator from cfg. The API key is read from
// the environment variable named by cfg.APIKeyEnv.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := sdk.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	)
	return &OpenAIGenerator{client: client, model: cfg.Model}, nil
}

// Generate sends the system prompt and the context-plus-question message and
// returns the first choice's content.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	model := p.Model
	if model == "" {
		model = g.model
	}
	var msgs []sdk.ChatCompletionMessageParamUnion
	if p.System != "" {
		msgs = append(msgs, sdk.SystemMessage(p.System))
	}
	msgs = append(msgs, sdk.UserMessage(p.UserMessage()))

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(model),
		Messages:    msgs,
		Temperature: sdk.Float(p.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrGeneration)
	}
	logger.Debugw("chat completion", "model", model, "elapsed", time.Since(start).String(), "tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// NoopGenerator answers with the retrieved context verbatim.
type NoopGenerator struct{}

// Generate returns p.Context, or p.User for prompts without context.
func (NoopGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	if p.Context == "" {
		return p.User, nil
	}
	return p.Context, nil
}
