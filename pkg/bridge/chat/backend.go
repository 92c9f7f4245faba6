package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QueryClient asks the answer backend's /query endpoint a question.
type QueryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewQueryClient(baseURL string, httpClient *http.Client) *QueryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &QueryClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

func (c *QueryClient) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Ask posts the question and returns the backend's answer text, which may be
// empty when the backend answered without one.
func (c *QueryClient) Ask(ctx context.Context, question string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("query backend url is not configured")
	}

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return "", fmt.Errorf("query backend error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return decoded.Answer, nil
}
