package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foyer-ai/foyer/internal/config"
)

// SidecarClient talks to the LLM sidecar's HTTP API. The automated gates
// chat through it and approved corrections are committed through it.
// It is safe for concurrent use.
type SidecarClient struct {
	baseURL    string
	gateUserID string
	httpClient *http.Client
}

// NewSidecarClient constructs a client from the llm_sidecar config block.
func NewSidecarClient(cfg config.LLMSidecarConfig) *SidecarClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SidecarClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		gateUserID: cfg.GateUserID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Chat sends a gate prompt as the configured gate user and returns the
// assistant response text.
func (c *SidecarClient) Chat(ctx context.Context, message string) (string, error) {
	payload := map[string]string{
		"user_id": c.gateUserID,
		"message": message,
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/chat", payload, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// MemoryAdd commits content to the memory store and returns the new memory
// id.
func (c *SidecarClient) MemoryAdd(ctx context.Context, userID, content, source string, metadata map[string]any) (string, error) {
	payload := map[string]any{
		"user_id":  userID,
		"content":  content,
		"source":   source,
		"metadata": metadata,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/memory/add", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("llm sidecar: memory add returned no id")
	}
	return resp.ID, nil
}

// Reachable reports whether the sidecar's health endpoint answers 200.
func (c *SidecarClient) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// postJSON sends a JSON POST and decodes a JSON response.
func (c *SidecarClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llm sidecar: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm sidecar: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm sidecar: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("llm sidecar: %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llm sidecar: decode response: %w", err)
	}
	return nil
}
