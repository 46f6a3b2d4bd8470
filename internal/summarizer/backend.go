package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend calls a hosted summarization model (HuggingFace inference API
// shape): the request carries the text plus fixed output length bounds, the
// response is a list with one summary_text entry.
type HTTPBackend struct {
	endpoint  string
	apiKey    string
	maxLength int
	minLength int
	client    *http.Client
}

// NewHTTPBackend creates a summarization backend client. The client is built
// once at startup and shared read-only across requests.
func NewHTTPBackend(endpoint, apiKey string, maxLength, minLength int, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{
		endpoint:  endpoint,
		apiKey:    apiKey,
		maxLength: maxLength,
		minLength: minLength,
		client:    &http.Client{Timeout: timeout},
	}
}

type summarizeRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters summarizeParameters `json:"parameters"`
}

type summarizeParameters struct {
	MaxLength int `json:"max_length"`
	MinLength int `json:"min_length"`
}

type summarizeResponse struct {
	SummaryText string `json:"summary_text"`
}

// SummarizeText sends one window to the model and returns its summary.
func (b *HTTPBackend) SummarizeText(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(summarizeRequest{
		Inputs: text,
		Parameters: summarizeParameters{
			MaxLength: b.maxLength,
			MinLength: b.minLength,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var out []summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return out[0].SummaryText, nil
}
