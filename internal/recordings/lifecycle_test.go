package recordings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classcribe/backend/internal/models"
	"github.com/classcribe/backend/internal/transcription"
)

// fakeStore is an in-memory Store with the same compare-and-swap semantics as
// the SQL repository: a transition only lands if the current status matches.
type fakeStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Recording
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]*models.Recording)}
}

func (f *fakeStore) Create(_ context.Context, rec *models.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uuid.New()
	rec.Status = models.StatusUploaded
	rec.CreatedAt = time.Now()
	clone := *rec
	f.rows[rec.ID] = &clone
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Recording
	for _, rec := range f.rows {
		if rec.UserID == userID {
			list = append(list, *rec)
		}
	}
	return list, nil
}

func (f *fakeStore) cas(id, userID uuid.UUID, from, to models.Status) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.UserID != userID || rec.Status != from {
		return nil, errStale
	}
	rec.Status = to
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) BeginTranscription(_ context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	return f.cas(id, userID, models.StatusUploaded, models.StatusTranscribing)
}

func (f *fakeStore) BeginSummarization(_ context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	return f.cas(id, userID, models.StatusTranscribed, models.StatusSummarizing)
}

func (f *fakeStore) CompleteTranscription(_ context.Context, id, userID uuid.UUID, transcript string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.UserID != userID || rec.Status != models.StatusTranscribing {
		return errStale
	}
	now := time.Now()
	rec.Status = models.StatusTranscribed
	rec.Transcript = &transcript
	rec.TranscribedAt = &now
	return nil
}

func (f *fakeStore) CompleteSummarization(_ context.Context, id, userID uuid.UUID, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.UserID != userID || rec.Status != models.StatusSummarizing {
		return errStale
	}
	now := time.Now()
	rec.Status = models.StatusSummarized
	rec.Summary = &summary
	rec.SummarizedAt = &now
	return nil
}

func (f *fakeStore) Fail(_ context.Context, id, userID uuid.UUID, cause models.RecordingError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.UserID != userID || rec.Status.Terminal() {
		return errStale
	}
	rec.Status = models.StatusFailed
	rec.Error = &cause
	return nil
}

type fakeBlobs struct{}

func (fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	return []byte("audio-bytes-for-" + key), nil
}

// countingProvider counts backend invocations; optional err/delay simulate
// failures and slow backends.
type countingProvider struct {
	calls atomic.Int32
	err   error
	delay time.Duration
	text  string
}

func (p *countingProvider) Transcribe(ctx context.Context, _ []byte, _ string) (string, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	if p.text != "" {
		return p.text, nil
	}
	return "the lecture transcript", nil
}

type countingSummarizer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSummarizer) Summarize(_ context.Context, text string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return "summary of: " + text[:min(20, len(text))], nil
}

func newTestService(store Store, p transcription.Provider, s TextSummarizer) *Service {
	return NewService(store, fakeBlobs{}, p, s, time.Second, time.Second, nil)
}

func createUploaded(t *testing.T, store *fakeStore, userID uuid.UUID) uuid.UUID {
	t.Helper()
	rec := &models.Recording{
		UserID:     userID,
		CourseCode: "CS101",
		Title:      "Lecture 1",
		AudioKey:   "recordings/u/lecture1.wav",
		ByteSize:   2 * 1024 * 1024,
		FileType:   "wav",
		MIMEType:   "audio/wav",
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec.ID
}

func TestTranscribeHappyPath(t *testing.T) {
	store := newFakeStore()
	provider := &countingProvider{}
	svc := newTestService(store, provider, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	rec, err := svc.Transcribe(context.Background(), id, userID)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if rec.Status != models.StatusTranscribed {
		t.Errorf("status = %s, want transcribed", rec.Status)
	}
	if rec.Transcript == nil || *rec.Transcript == "" {
		t.Error("transcript should be set")
	}
	if rec.TranscribedAt == nil {
		t.Error("transcribed_at should be stamped")
	}
	if provider.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", provider.calls.Load())
	}
}

func TestTranscribeIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	provider := &countingProvider{}
	svc := newTestService(store, provider, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	first, err := svc.Transcribe(context.Background(), id, userID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Transcribe(context.Background(), id, userID)
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if *first.Transcript != *second.Transcript {
		t.Error("replay should return the stored transcript")
	}
	if provider.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want exactly 1 across both invocations", provider.calls.Load())
	}
}

func TestTranscribeConcurrentSingleInvocation(t *testing.T) {
	store := newFakeStore()
	provider := &countingProvider{delay: 50 * time.Millisecond}
	svc := newTestService(store, provider, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Transcribe(context.Background(), id, userID)
		}(i)
	}
	wg.Wait()

	if provider.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want exactly 1", provider.calls.Load())
	}
	var winners, busy int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInProgress):
			busy++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners < 1 {
		t.Error("at least the winning caller should succeed")
	}
	// Losers observe the eventual result by re-reading.
	rec, err := svc.Get(context.Background(), id, userID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.StatusTranscribed {
		t.Errorf("final status = %s, want transcribed", rec.Status)
	}
}

func TestTranscribeNotOwnedLooksAbsent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &countingProvider{}, &countingSummarizer{})
	owner := uuid.New()
	id := createUploaded(t, store, owner)

	_, err := svc.Transcribe(context.Background(), id, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for another user's recording", err)
	}
}

func TestTranscribeFailureCapturesCause(t *testing.T) {
	store := newFakeStore()
	provider := &countingProvider{err: &transcription.Error{Backend: "openai", Cause: fmt.Errorf("http 500: upstream exploded")}}
	svc := newTestService(store, provider, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	if _, err := svc.Transcribe(context.Background(), id, userID); err == nil {
		t.Fatal("Transcribe() should surface the backend failure")
	}

	rec, err := svc.Get(context.Background(), id, userID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if rec.Error == nil {
		t.Fatal("failure cause should be recorded")
	}
	if rec.Error.Stage != "transcription" {
		t.Errorf("error stage = %q, want transcription", rec.Error.Stage)
	}
	if !strings.Contains(rec.Error.Message, "upstream exploded") {
		t.Errorf("error message %q should carry the backend diagnostic", rec.Error.Message)
	}
	if rec.Transcript != nil {
		t.Error("transcript must stay null on failure")
	}
}

func TestTranscribeTimeoutFailsRecording(t *testing.T) {
	store := newFakeStore()
	provider := &countingProvider{err: fmt.Errorf("%w after 5m0s", transcription.ErrTimeout)}
	svc := newTestService(store, provider, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	_, err := svc.Transcribe(context.Background(), id, userID)
	if !errors.Is(err, transcription.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	rec, _ := svc.Get(context.Background(), id, userID)
	if rec.Status != models.StatusFailed || rec.Error == nil {
		t.Error("timed-out recording should be failed with a recorded cause")
	}
}

func TestSummarizeHappyPathAfterTranscribe(t *testing.T) {
	store := newFakeStore()
	sum := &countingSummarizer{}
	svc := newTestService(store, &countingProvider{}, sum)
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	if _, err := svc.Transcribe(context.Background(), id, userID); err != nil {
		t.Fatal(err)
	}
	rec, err := svc.Summarize(context.Background(), id, userID)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if rec.Status != models.StatusSummarized {
		t.Errorf("status = %s, want summarized", rec.Status)
	}
	if rec.Summary == nil || *rec.Summary == "" {
		t.Error("summary should be set")
	}
	if rec.SummarizedAt == nil {
		t.Error("summarized_at should be stamped")
	}
	if sum.calls.Load() != 1 {
		t.Errorf("summarizer calls = %d, want 1", sum.calls.Load())
	}
}

func TestSummarizeWithoutTranscript(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &countingProvider{}, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	_, err := svc.Summarize(context.Background(), id, userID)
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("error = %v, want ErrNoTranscript for an uploaded-only recording", err)
	}
}

func TestSummarizeIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	sum := &countingSummarizer{}
	svc := newTestService(store, &countingProvider{}, sum)
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	if _, err := svc.Transcribe(context.Background(), id, userID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Summarize(context.Background(), id, userID); err != nil {
		t.Fatal(err)
	}
	rec, err := svc.Summarize(context.Background(), id, userID)
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if rec.Status != models.StatusSummarized {
		t.Errorf("status = %s, want summarized", rec.Status)
	}
	if sum.calls.Load() != 1 {
		t.Errorf("summarizer calls = %d, want exactly 1", sum.calls.Load())
	}
}

func TestSummarizeFailureCapturesCause(t *testing.T) {
	store := newFakeStore()
	sum := &countingSummarizer{err: errors.New("model loading")}
	svc := newTestService(store, &countingProvider{}, sum)
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	if _, err := svc.Transcribe(context.Background(), id, userID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Summarize(context.Background(), id, userID); err == nil {
		t.Fatal("Summarize() should surface the backend failure")
	}

	rec, _ := svc.Get(context.Background(), id, userID)
	if rec.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if rec.Error == nil || rec.Error.Stage != "summarization" {
		t.Errorf("error = %+v, want summarization stage cause", rec.Error)
	}
	if rec.Summary != nil {
		t.Error("summary must stay null on failure")
	}
}

func TestFailedRecordingIsTerminal(t *testing.T) {
	store := newFakeStore()
	provider := &countingProvider{err: errors.New("boom")}
	svc := newTestService(store, provider, &countingSummarizer{})
	userID := uuid.New()
	id := createUploaded(t, store, userID)

	_, _ = svc.Transcribe(context.Background(), id, userID)

	_, err := svc.Transcribe(context.Background(), id, userID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("transcribe after failure: error = %v, want ErrInvalidTransition", err)
	}
	_, err = svc.Summarize(context.Background(), id, userID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("summarize after failure: error = %v, want ErrInvalidTransition", err)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1 (no re-run from failed)", provider.calls.Load())
	}
}
