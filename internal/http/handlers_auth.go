package httpx

import (
	"mime"
	"net/http"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/service/auth"
)

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload registerRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := r.auth.Register(req.Context(), auth.RegisterInput{
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
	writeJSON(w, http.StatusCreated, r.users.View(user))
}

// handleLogin accepts the OAuth2 password form (username, password) or a
// JSON body with email and password.
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var creds loginRequest
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(req, &creds); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		creds.Email = strings.TrimSpace(req.PostForm.Get("username"))
		creds.Password = req.PostForm.Get("password")
		if err := validationError(validate.Struct(&creds)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	_, token, err := r.auth.Login(req.Context(), creds.Email, creds.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   int(token.ExpiresIn.Seconds()),
	})
}
