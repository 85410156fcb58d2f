package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/macdonc2/llm-app-template/internal/domain"
)

const (
	tavilyMaxAttempts = 5
	tavilyBackoffBase = time.Second
	tavilyBackoffCap  = 8 * time.Second
)

// StatusError is a non-2xx answer from the search API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily search failed (%d): %s", e.Status, e.Body)
}

// Tavily calls POST {base}/search with bearer auth.
type Tavily struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      *slog.Logger
	backoffBase time.Duration
	maxAttempts int
}

// TavilyOption customises the adapter.
type TavilyOption func(*Tavily)

// WithHTTPClient overrides the tuned default client.
func WithHTTPClient(h *http.Client) TavilyOption {
	return func(t *Tavily) {
		if h != nil {
			t.httpClient = h
		}
	}
}

// WithBackoff overrides the retry schedule base and attempt count.
func WithBackoff(base time.Duration, attempts int) TavilyOption {
	return func(t *Tavily) {
		if base > 0 {
			t.backoffBase = base
		}
		if attempts > 0 {
			t.maxAttempts = attempts
		}
	}
}

// NewTavily builds the adapter for one caller's key.
func NewTavily(baseURL, apiKey string, logger *slog.Logger, opts ...TavilyOption) (*Tavily, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tavily{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      strings.TrimSpace(apiKey),
		httpClient:  defaultTavilyClient(),
		logger:      logger,
		backoffBase: tavilyBackoffBase,
		maxAttempts: tavilyMaxAttempts,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func defaultTavilyClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   5,
	}
	return &http.Client{Transport: transport, Timeout: 90 * time.Second}
}

// Search retries transport failures and non-2xx answers with capped
// exponential backoff (1s, 2s, 4s, 8s) and returns the last error once the
// attempts run out.
func (t *Tavily) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	backoff := retry.NewExponential(t.backoffBase)
	backoff = retry.WithCappedDuration(t.backoffBase*(tavilyBackoffCap/tavilyBackoffBase), backoff)
	backoff = retry.WithMaxRetries(uint64(t.maxAttempts-1), backoff)

	var (
		results []domain.SearchResult
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, err := t.searchOnce(ctx, query, topK)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			t.logger.Warn("tavily search attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		results = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Tavily) searchOnce(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "max_results": topK})
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var data struct {
		Results []struct {
			Title      string  `json:"title"`
			URL        string  `json:"url"`
			Content    string  `json:"content"`
			RawContent *string `json:"raw_content"`
			Score      float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(data.Results))
	for _, r := range data.Results {
		raw := r.Content
		if r.RawContent != nil && *r.RawContent != "" {
			raw = *r.RawContent
		}
		results = append(results, domain.SearchResult{Title: r.Title, URL: r.URL, RawContent: raw, Score: r.Score})
	}
	return results, nil
}
