package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/service/users"
)

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	user, ok := r.currentUser(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, r.users.View(user))
	case http.MethodPatch:
		var payload updateMeRequest
		if err := decodeJSON(req, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := r.users.Update(req.Context(), user, users.UpdateInput{
			Email:        payload.Email,
			Password:     payload.Password,
			OpenAIKey:    payload.OpenAIAPIKey,
			TavilyKey:    payload.TavilyAPIKey,
			FirecrawlKey: payload.FirecrawlAPIKey,
		})
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, r.users.View(updated))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	user, err := r.users.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.users.View(user))
}

func (r *Router) handlePending(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	r.listPage(w, req, r.users.Pending)
}

func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	r.listPage(w, req, r.users.List)
}

// listPage reads limit and offset from the query and renders one page.
func (r *Router) listPage(w http.ResponseWriter, req *http.Request, list func(ctx context.Context, limit, offset int) ([]domain.User, error)) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(req, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := list(req.Context(), limit, offset)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.views(page))
}

func (r *Router) handleApprove(w http.ResponseWriter, req *http.Request) {
	r.adminAction(w, req, r.users.Approve)
}

func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) {
	r.adminAction(w, req, r.users.Verify)
}

func (r *Router) adminAction(w http.ResponseWriter, req *http.Request, action func(ctx context.Context, id string) (*domain.User, error)) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, err := action(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.users.View(user))
}

func (r *Router) views(list []domain.User) []users.View {
	out := make([]users.View, 0, len(list))
	for i := range list {
		out = append(out, r.users.View(&list[i]))
	}
	return out
}

func queryInt(req *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(req.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &queryParamError{name: name}
	}
	return v, nil
}

type queryParamError struct{ name string }

func (e *queryParamError) Error() string {
	return e.name + " must be a non-negative integer"
}
