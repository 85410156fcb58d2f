package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginUsesFormFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/jwt/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "a@example.com", r.PostForm.Get("username"))
		assert.Equal(t, "secret-pass", r.PostForm.Get("password"))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	require.NoError(t, err)
	token, err := cli.Login(context.Background(), "a@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, Token{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 3600}, token)
}

func TestRAGQuerySendsBearerAndTopK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is go", body["query"])
		assert.EqualValues(t, 3, body["top_k"])
		_ = json.NewEncoder(w).Encode(RAGAnswer{Answer: "a language", Contexts: []string{"ctx"}})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	require.NoError(t, err)
	answer, err := cli.RAGQuery(context.Background(), "tok", "what is go", 3)
	require.NoError(t, err)
	assert.Equal(t, "a language", answer.Answer)
	assert.Equal(t, []string{"ctx"}, answer.Contexts)
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"user not verified"}`))
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	require.NoError(t, err)
	_, err = cli.Ask(context.Background(), "tok", "hi")

	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "user not verified", apiErr.Message)
}

func TestListUsersEncodesPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/users", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		_ = json.NewEncoder(w).Encode([]User{{ID: "u1"}})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	require.NoError(t, err)
	users, err := cli.ListUsers(context.Background(), "tok", 10, 20)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
}

func TestPendingUsersPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/pending", r.URL.Path)
		if r.URL.RawQuery == "" {
			_ = json.NewEncoder(w).Encode([]User{{ID: "u1"}, {ID: "u2"}})
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("offset"))
		_ = json.NewEncoder(w).Encode([]User{{ID: "u2"}})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	require.NoError(t, err)
	all, err := cli.PendingUsers(context.Background(), "tok", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	page, err := cli.PendingUsers(context.Background(), "tok", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "u2", page[0].ID)
}

func TestNewAddsScheme(t *testing.T) {
	cli, err := New("api.local:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://api.local:8000", cli.baseURL)
}
