package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/macdonc2/llm-app-template/internal/embedding"
	"github.com/macdonc2/llm-app-template/internal/llm"
	"github.com/macdonc2/llm-app-template/internal/mcp"
	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/internal/repository"
	"github.com/macdonc2/llm-app-template/internal/search"
	"github.com/macdonc2/llm-app-template/internal/service/agentsvc"
	"github.com/macdonc2/llm-app-template/internal/service/auth"
	"github.com/macdonc2/llm-app-template/internal/service/providers"
	"github.com/macdonc2/llm-app-template/internal/service/rag"
	"github.com/macdonc2/llm-app-template/internal/service/summarize"
	"github.com/macdonc2/llm-app-template/internal/service/users"
)

// badRequestErrors are client mistakes whose message is safe to echo.
var badRequestErrors = []error{
	auth.ErrEmailTaken,
	auth.ErrInvalidCredentials,
	auth.ErrInvalidInput,
	repository.ErrInvalidArgument,
	llm.ErrMissingAPIKey,
	embedding.ErrMissingAPIKey,
	search.ErrMissingAPIKey,
	providers.ErrMissingAgentKey,
	mcp.ErrMissingFirecrawlKey,
	rag.ErrEmptyQuery,
	summarize.ErrEmptyQuery,
	agentsvc.ErrEmptyQuery,
}

// statusFor maps a service error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var unknown *provider.UnknownError
	if errors.As(err, &unknown) {
		return http.StatusBadRequest, unknown.Error()
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}
	if errors.Is(err, users.ErrNotFound) {
		return http.StatusNotFound, "user not found"
	}
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound, "not found"
	}

	var (
		connErr     *providers.ToolConnectError
		agentErr    *agentsvc.AgentError
		upstreamErr *providers.UpstreamError
	)
	switch {
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable, connErr.Error()
	case errors.As(err, &agentErr):
		return http.StatusServiceUnavailable, agentErr.Error()
	case errors.As(err, &upstreamErr):
		return http.StatusServiceUnavailable, upstreamErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, (&providers.UpstreamError{Err: err}).Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, msg)
}
