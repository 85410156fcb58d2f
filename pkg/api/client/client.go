package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:8000"

// Client provides typed access to the API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// User reflects API user payloads. Provider keys arrive masked.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	IsActive        bool      `json:"is_active"`
	IsVerified      bool      `json:"is_verified"`
	IsSuperuser     bool      `json:"is_superuser"`
	OpenAIAPIKey    string    `json:"openai_api_key,omitempty"`
	TavilyAPIKey    string    `json:"tavily_api_key,omitempty"`
	FirecrawlAPIKey string    `json:"firecrawl_api_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RegisterInput is the signup payload.
type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	TavilyAPIKey    string `json:"tavily_api_key,omitempty"`
	FirecrawlAPIKey string `json:"firecrawl_api_key,omitempty"`
}

// Register creates an account. New accounts need admin approval before login.
func (c *Client) Register(ctx context.Context, input RegisterInput) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, "/auth/register", input, "", &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login exchanges credentials for a bearer token using the form flow.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	form := url.Values{"username": {email}, "password": {password}}
	var token Token
	if err := c.do(ctx, http.MethodPost, "/auth/jwt/login", form, "", &token); err != nil {
		return Token{}, err
	}
	return token, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateInput carries the fields to change. Nil fields are left alone and an
// empty key clears it.
type UpdateInput struct {
	Email           *string `json:"email,omitempty"`
	Password        *string `json:"password,omitempty"`
	OpenAIAPIKey    *string `json:"openai_api_key,omitempty"`
	TavilyAPIKey    *string `json:"tavily_api_key,omitempty"`
	FirecrawlAPIKey *string `json:"firecrawl_api_key,omitempty"`
}

// UpdateMe patches the authenticated user.
func (c *Client) UpdateMe(ctx context.Context, token string, input UpdateInput) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodPatch, "/users/me", input, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// PendingUsers pages through accounts awaiting approval. The server
// returns at most 500 users per page.
func (c *Client) PendingUsers(ctx context.Context, token string, limit, offset int) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, pagePath("/admin/pending", limit, offset), nil, token, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListUsers pages through all accounts.
func (c *Client) ListUsers(ctx context.Context, token string, limit, offset int) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, pagePath("/admin/users", limit, offset), nil, token, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func pagePath(path string, limit, offset int) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// Approve activates a user.
func (c *Client) Approve(ctx context.Context, token, userID string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, "/admin/approve/"+url.PathEscape(userID), nil, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Verify marks a user as verified.
func (c *Client) Verify(ctx context.Context, token, userID string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, "/admin/verify/"+url.PathEscape(userID), nil, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Ingest stores documents in the retrieval corpus.
func (c *Client) Ingest(ctx context.Context, token string, documents []string) ([]int64, error) {
	var resp struct {
		IDs []int64 `json:"ids"`
	}
	body := map[string][]string{"documents": documents}
	if err := c.do(ctx, http.MethodPost, "/admin/documents", body, token, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// RAGAnswer is the retrieval-augmented answer.
type RAGAnswer struct {
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// RAGQuery asks a question against the stored corpus.
func (c *Client) RAGQuery(ctx context.Context, token, query string, topK int) (RAGAnswer, error) {
	var answer RAGAnswer
	if err := c.do(ctx, http.MethodPost, "/rag/query", queryBody(query, topK), token, &answer); err != nil {
		return RAGAnswer{}, err
	}
	return answer, nil
}

// SearchResult is one web search context.
type SearchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

// Summary is the web search summary.
type Summary struct {
	Summary       string         `json:"summary"`
	ExpandedQuery string         `json:"expanded_query"`
	Contexts      []SearchResult `json:"contexts"`
}

// Summarize runs web search and summarizes the results.
func (c *Client) Summarize(ctx context.Context, token, query string, topK int) (Summary, error) {
	var summary Summary
	if err := c.do(ctx, http.MethodPost, "/tavily/summarize", queryBody(query, topK), token, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Ask runs the tool-using agent and returns its final answer.
func (c *Client) Ask(ctx context.Context, token, query string) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	body := map[string]string{"query": query}
	if err := c.do(ctx, http.MethodPost, "/agent/ask", body, token, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func queryBody(query string, topK int) map[string]any {
	body := map[string]any{"query": query}
	if topK > 0 {
		body["top_k"] = topK
	}
	return body
}
