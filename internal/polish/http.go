package polish

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

// HTTP polishes text through a JSON endpoint that accepts
// {"message", "mode"} and answers {"polished_message"}.
type HTTP struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTP creates an endpoint-backed Polisher. apiKey may be empty.
func NewHTTP(endpoint, apiKey string) *HTTP {
	return &HTTP{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Polish implements Polisher.
func (h *HTTP) Polish(ctx context.Context, text, mode string) (string, error) {
	if mode == "" {
		mode = DefaultMode
	}
	data, err := json.Marshal(map[string]string{"message": text, "mode": mode})
	if err != nil {
		return "", fmt.Errorf("polish: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("polish: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("polish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("polish: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Polished string `json:"polished_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("polish: decode: %w", err)
	}
	return clean(out.Polished)
}
