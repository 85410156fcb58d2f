package mcp

import (
	"errors"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/pkg/config"
)

// ErrMissingFirecrawlKey is returned when the firecrawl server is requested without a key.
var ErrMissingFirecrawlKey = errors.New("no Firecrawl API key set for this user")

// ToolFactory resolves the server spec for one caller.
type ToolFactory func(cfg config.APIConfig, creds domain.Credentials) (ServerSpec, error)

// NewToolRegistry returns the registry of known tool servers.
func NewToolRegistry() *provider.Registry[ToolFactory] {
	reg := provider.NewRegistry[ToolFactory]("tool")
	reg.Register("calculator", calculatorServer)
	reg.Register("firecrawl", firecrawlServer)
	return reg
}

func calculatorServer(cfg config.APIConfig, _ domain.Credentials) (ServerSpec, error) {
	return ServerSpec{Name: "calculator", URL: serverURL(cfg, "calculator")}, nil
}

func firecrawlServer(cfg config.APIConfig, creds domain.Credentials) (ServerSpec, error) {
	key := strings.TrimSpace(creds.Firecrawl)
	if key == "" {
		return ServerSpec{}, ErrMissingFirecrawlKey
	}
	return ServerSpec{
		Name:    "firecrawl",
		URL:     serverURL(cfg, "firecrawl"),
		Headers: map[string]string{"Authorization": "Bearer " + key},
	}, nil
}

func serverURL(cfg config.APIConfig, name string) string {
	return strings.TrimRight(cfg.MCPBaseURL, "/") + "/" + name + "/sse"
}
