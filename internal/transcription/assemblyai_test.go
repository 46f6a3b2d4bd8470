package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/classcribe/backend/config"
)

// fakeJobServer mimics the upload/submit/poll protocol. completeAfter controls
// how many status polls report "processing" before "completed".
func fakeJobServer(t *testing.T, completeAfter int, finalStatus, text string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/audio-123"})
	})
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["audio_url"] == "" {
			http.Error(w, "bad submit", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(transcriptJob{ID: "job-1", Status: "queued"})
	})
	mux.HandleFunc("GET /transcript/job-1", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		job := transcriptJob{ID: "job-1", Status: "processing"}
		if int(n) > completeAfter {
			job.Status = finalStatus
			job.Text = text
			if finalStatus == "error" {
				job.Error = "audio unreadable"
			}
		}
		json.NewEncoder(w).Encode(job)
	})
	return httptest.NewServer(mux), &polls
}

func TestAssemblyAIPollsUntilComplete(t *testing.T) {
	srv, polls := fakeJobServer(t, 2, "completed", "hello from the lecture")
	defer srv.Close()

	p := NewAssemblyAIProvider(srv.URL, "key", 10*time.Millisecond, time.Second)
	text, err := p.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hello from the lecture" {
		t.Errorf("text = %q", text)
	}
	if polls.Load() < 3 {
		t.Errorf("polls = %d, want at least 3", polls.Load())
	}
}

func TestAssemblyAIJobError(t *testing.T) {
	srv, _ := fakeJobServer(t, 0, "error", "")
	defer srv.Close()

	p := NewAssemblyAIProvider(srv.URL, "key", 10*time.Millisecond, time.Second)
	_, err := p.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	if err == nil {
		t.Fatal("Transcribe() should fail when job reports error")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error %v should be *transcription.Error", err)
	}
	if !strings.Contains(terr.Error(), "audio unreadable") {
		t.Errorf("error %v should carry the remote diagnostic", terr)
	}
}

func TestAssemblyAIPollTimeout(t *testing.T) {
	// Job never completes; the poll loop must terminate on the overall budget.
	srv, _ := fakeJobServer(t, 1<<30, "completed", "")
	defer srv.Close()

	p := NewAssemblyAIProvider(srv.URL, "key", 10*time.Millisecond, 60*time.Millisecond)
	_, err := p.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Transcribe() error = %v, want ErrTimeout", err)
	}
}

func TestAssemblyAIObservesCancellation(t *testing.T) {
	srv, _ := fakeJobServer(t, 1<<30, "completed", "")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewAssemblyAIProvider(srv.URL, "key", 20*time.Millisecond, 10*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := p.Transcribe(ctx, []byte("audio"), "audio/wav")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Transcribe() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancellation")
	}
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("model") != "whisper-1" {
			http.Error(w, "missing model", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "synchronous transcript"})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "whisper-1", time.Second)
	text, err := p.Transcribe(context.Background(), []byte("audio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "synchronous transcript" {
		t.Errorf("text = %q", text)
	}
}

func TestOpenAIProviderCarriesRemoteDiagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "whisper-1", time.Second)
	_, err := p.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error %v should carry the remote diagnostic verbatim", err)
	}
}

func testConfig() config.TranscriptionConfig {
	return config.TranscriptionConfig{
		WhisperBin:         "whisper-cli",
		WhisperModel:       "models/test.bin",
		OpenAIEndpoint:     "https://example.test/transcriptions",
		OpenAIAPIKey:       "sk-test",
		OpenAIModel:        "whisper-1",
		RequestTimeout:     time.Second,
		AssemblyAIEndpoint: "https://example.test/v2",
		AssemblyAIAPIKey:   "key",
		PollInterval:       time.Second,
		PollTimeout:        time.Minute,
	}
}

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"whisper", false},
		{"openai", false},
		{"assemblyai", false},
		{"", true},
		{"deepgram", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := testConfig()
			cfg.Backend = tt.backend
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
		})
	}
}
