package transcription

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// WhisperProvider runs a local whisper.cpp style binary over the audio.
// No network timeout semantics apply; the call is bounded only by inference
// time and the caller's context.
type WhisperProvider struct {
	bin       string
	modelPath string
}

// NewWhisperProvider creates a local-model provider.
func NewWhisperProvider(bin, modelPath string) *WhisperProvider {
	return &WhisperProvider{bin: bin, modelPath: modelPath}
}

// Transcribe writes the audio to a temp file and invokes the model binary.
func (p *WhisperProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	tmp, err := os.CreateTemp("", "whisper-*"+extensionFor(mimeType))
	if err != nil {
		return "", &Error{Backend: "whisper", Cause: fmt.Errorf("stage audio: %w", err)}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return "", &Error{Backend: "whisper", Cause: fmt.Errorf("stage audio: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return "", &Error{Backend: "whisper", Cause: fmt.Errorf("stage audio: %w", err)}
	}

	cmd := exec.CommandContext(ctx, p.bin,
		"--model", p.modelPath,
		"--file", tmp.Name(),
		"--no-timestamps",
		"--output-txt", "false",
	)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", &Error{Backend: "whisper", Cause: fmt.Errorf("model error: %s", strings.TrimSpace(string(ee.Stderr)))}
		}
		return "", &Error{Backend: "whisper", Cause: err}
	}
	return strings.TrimSpace(string(out)), nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
