// Package llm defines the chat completion port and its adapters.
package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/pkg/config"
)

// ErrMissingAPIKey is returned when the caller has no key for the provider.
var ErrMissingAPIKey = errors.New("no API key available for LLM")

// LLM turns a prompt into a completion.
type LLM interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Params carries what a factory needs to build an adapter for one caller.
type Params struct {
	APIKey     string
	Config     config.APIConfig
	HTTPClient *http.Client
}

// Factory builds an LLM adapter.
type Factory func(Params) (LLM, error)

// NewRegistry returns the registry of built-in LLM providers.
func NewRegistry() *provider.Registry[Factory] {
	reg := provider.NewRegistry[Factory]("LLM")
	reg.Register("openai", NewOpenAI)
	reg.Register("hf", NewHuggingFace)
	return reg
}
