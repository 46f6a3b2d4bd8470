package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// AssemblyAIProvider speaks the two-phase job protocol: upload the audio,
// submit a transcript job, then poll its status at a fixed interval until the
// job completes or errors, bounded by an overall timeout. The poll loop checks
// caller cancellation every iteration; it never spins unbounded.
type AssemblyAIProvider struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollTimeout  time.Duration
	client       *http.Client
}

// NewAssemblyAIProvider creates an async job-polling provider.
func NewAssemblyAIProvider(baseURL, apiKey string, pollInterval, pollTimeout time.Duration) *AssemblyAIProvider {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Minute
	}
	return &AssemblyAIProvider{
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptJob struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued, processing, completed, error
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe uploads the audio, submits a job and polls it to completion.
func (p *AssemblyAIProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	uploadURL, err := p.upload(ctx, audio)
	if err != nil {
		return "", &Error{Backend: "assemblyai", Cause: err}
	}
	jobID, err := p.submit(ctx, uploadURL)
	if err != nil {
		return "", &Error{Backend: "assemblyai", Cause: err}
	}
	return p.poll(ctx, jobID)
}

func (p *AssemblyAIProvider) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := p.do(req, &out); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return out.UploadURL, nil
}

func (p *AssemblyAIProvider) submit(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var job transcriptJob
	if err := p.do(req, &job); err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	if job.ID == "" {
		return "", errors.New("submit job: empty job id")
	}
	return job.ID, nil
}

// errJobPending signals the poll operation should run again after the interval.
var errJobPending = errors.New("job still processing")

func (p *AssemblyAIProvider) poll(ctx context.Context, jobID string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	var text string
	operation := func() error {
		req, err := http.NewRequestWithContext(pollCtx, http.MethodGet, p.baseURL+"/transcript/"+jobID, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", p.apiKey)

		var job transcriptJob
		if err := p.do(req, &job); err != nil {
			return backoff.Permanent(err)
		}
		switch job.Status {
		case "completed":
			text = job.Text
			return nil
		case "error":
			return backoff.Permanent(fmt.Errorf("job error: %s", job.Error))
		default:
			return errJobPending
		}
	}

	// Fixed-interval polling; WithContext stops the loop on cancellation or
	// when the overall budget runs out.
	b := backoff.WithContext(backoff.NewConstantBackOff(p.pollInterval), pollCtx)
	if err := backoff.Retry(operation, b); err != nil {
		if ctx.Err() != nil {
			// Caller cancelled; stop promptly, do not dress it up as a backend error.
			return "", ctx.Err()
		}
		if pollCtx.Err() != nil || errors.Is(err, errJobPending) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, p.pollTimeout)
		}
		return "", &Error{Backend: "assemblyai", Cause: err}
	}
	return text, nil
}

func (p *AssemblyAIProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
