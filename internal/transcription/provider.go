// Package transcription converts audio bytes to text through one of three
// interchangeable backends: a local whisper model, a synchronous remote API,
// or an asynchronous submit-then-poll job API.
package transcription

import (
	"context"
	"errors"
	"fmt"

	"github.com/classcribe/backend/config"
)

// ErrTimeout means a job-polling backend exhausted its overall time budget.
var ErrTimeout = errors.New("transcription timed out")

// Error wraps a backend failure with the backend's own diagnostic preserved.
type Error struct {
	Backend string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription failed (%s): %v", e.Backend, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Provider transcribes audio to text. Implementations are constructed once at
// startup, hold no per-call mutable state, and are safe for concurrent use.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// New selects the backend configured at startup. The choice is made once;
// request handling never branches on backend kind.
func New(cfg config.TranscriptionConfig) (Provider, error) {
	switch cfg.Backend {
	case "whisper":
		return NewWhisperProvider(cfg.WhisperBin, cfg.WhisperModel), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.RequestTimeout), nil
	case "assemblyai":
		return NewAssemblyAIProvider(cfg.AssemblyAIEndpoint, cfg.AssemblyAIAPIKey, cfg.PollInterval, cfg.PollTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}
