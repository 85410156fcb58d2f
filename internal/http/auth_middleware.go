package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/domain"
)

type authContextKey string

const contextKeyUser authContextKey = "llm-app-user"

// access is the privilege a route requires beyond a valid token.
type access int

const (
	accessActive access = iota
	accessVerified
	accessSuperuser
)

type contextSetter interface {
	SetContext(context.Context)
}

// requireUser authenticates the bearer token and enforces level.
func (r *Router) requireUser(level access, allowQueryToken bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, user, ok := r.ensureAuth(w, req, allowQueryToken)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		if !r.checkAccess(w, req, user, level) {
			return
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the bearer token and stores the user in the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request, allowQueryToken bool) (context.Context, *domain.User, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil && allowQueryToken {
		if q := strings.TrimSpace(req.URL.Query().Get("access_token")); q != "" {
			token, err = q, nil
		}
	}
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), nil, false
	}
	user, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyUser, user)
	return ctx, user, true
}

func (r *Router) checkAccess(w http.ResponseWriter, req *http.Request, user *domain.User, level access) bool {
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "inactive user")
		return false
	}
	switch level {
	case accessVerified:
		if !user.IsVerified {
			r.logger.Warn("unverified user refused", "user_id", user.ID, "path", req.URL.Path)
			writeError(w, http.StatusForbidden, "user not verified")
			return false
		}
	case accessSuperuser:
		if !user.IsSuperuser {
			r.logger.Warn("non-superuser refused", "user_id", user.ID, "path", req.URL.Path)
			writeError(w, http.StatusForbidden, "superuser privileges required")
			return false
		}
	}
	return true
}

// userFromContext returns the authenticated user.
func userFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(*domain.User)
	return user, ok && user != nil
}

// currentUser fetches the user or answers 500 when the middleware was skipped.
func (r *Router) currentUser(w http.ResponseWriter, req *http.Request) (*domain.User, bool) {
	user, ok := userFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return user, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
