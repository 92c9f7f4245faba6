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

// HTTPResponder posts answers back to the chat platform's reply endpoint.
type HTTPResponder struct {
	replyURL   string
	httpClient *http.Client
}

func NewHTTPResponder(replyURL string, httpClient *http.Client) *HTTPResponder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPResponder{
		replyURL:   strings.TrimSpace(replyURL),
		httpClient: httpClient,
	}
}

func (r *HTTPResponder) Reply(ctx context.Context, threadID, text string) error {
	if r == nil || r.replyURL == "" {
		return fmt.Errorf("chat reply url is not configured")
	}

	body, err := json.Marshal(map[string]string{
		"threadId": threadID,
		"text":     text,
	})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.replyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return fmt.Errorf("chat reply error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
