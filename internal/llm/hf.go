package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const hfMaxLength = 200

// HuggingFace calls the hosted Inference API text-generation task.
type HuggingFace struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHuggingFace builds the adapter for HF_MODEL_NAME. The server token is
// used when set; otherwise the caller's key is forwarded.
func NewHuggingFace(p Params) (LLM, error) {
	model := strings.TrimSpace(p.Config.HFModelName)
	if model == "" {
		return nil, errors.New("hf model name required")
	}
	base := strings.TrimRight(strings.TrimSpace(p.Config.HFBaseURL), "/")
	if base == "" {
		base = "https://api-inference.huggingface.co"
	}
	token := strings.TrimSpace(p.Config.HFAPIToken)
	if token == "" {
		token = strings.TrimSpace(p.APIKey)
	}
	if token == "" {
		return nil, ErrMissingAPIKey
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HuggingFace{
		endpoint:   base + "/models/" + url.PathEscape(model),
		token:      token,
		httpClient: client,
	}, nil
}

// Chat returns generated_text of the first output.
func (h *HuggingFace) Chat(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"inputs":     prompt,
		"parameters": map[string]any{"max_length": hfMaxLength},
	})
	if err != nil {
		return "", fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("hf inference failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var outputs []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&outputs); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(outputs) == 0 {
		return "", errors.New("hf inference returned no outputs")
	}
	return outputs[0].GeneratedText, nil
}
