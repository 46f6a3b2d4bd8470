package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// OpenAIProvider makes a single blocking call to an audio-transcriptions
// endpoint with a request-level timeout. Any non-success response or network
// failure is returned with the remote diagnostic preserved verbatim.
type OpenAIProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewOpenAIProvider creates a synchronous remote provider.
func NewOpenAIProvider(endpoint, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type openAIResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the audio as multipart form data and returns the text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", p.model); err != nil {
		return "", &Error{Backend: "openai", Cause: err}
	}
	fw, err := mw.CreateFormFile("file", "audio"+extensionFor(mimeType))
	if err != nil {
		return "", &Error{Backend: "openai", Cause: err}
	}
	if _, err := fw.Write(audio); err != nil {
		return "", &Error{Backend: "openai", Cause: err}
	}
	if err := mw.Close(); err != nil {
		return "", &Error{Backend: "openai", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return "", &Error{Backend: "openai", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &Error{Backend: "openai", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &Error{Backend: "openai", Cause: fmt.Errorf("http %d: %s", resp.StatusCode, string(b))}
	}
	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Backend: "openai", Cause: fmt.Errorf("decode response: %w", err)}
	}
	return out.Text, nil
}
