package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultChatModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the provider answers without choices.
var ErrEmptyCompletion = errors.New("chat completion returned no choices")

// NewOpenAIClient builds a client for the OpenAI API or a compatible
// endpoint at baseURL. An empty baseURL keeps the public API.
func NewOpenAIClient(apiKey, baseURL string, h *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	if h != nil {
		cfg.HTTPClient = h
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAI sends a prompt as a single user message to the chat model.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds the OpenAI adapter from the caller's key.
func NewOpenAI(p Params) (LLM, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	model := p.Config.OpenAIChatModel
	if model == "" {
		model = defaultChatModel
	}
	return &OpenAI{
		client: NewOpenAIClient(p.APIKey, p.Config.OpenAIBaseURL, p.HTTPClient),
		model:  model,
	}, nil
}

// Chat returns the content of the first choice.
func (o *OpenAI) Chat(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
