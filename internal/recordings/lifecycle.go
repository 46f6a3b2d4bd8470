package recordings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classcribe/backend/internal/models"
	"github.com/classcribe/backend/internal/transcription"
)

// Store is the persistence surface the lifecycle drives. *Repository is the
// production implementation.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Recording, error)
	BeginTranscription(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error)
	BeginSummarization(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error)
	CompleteTranscription(ctx context.Context, id, userID uuid.UUID, transcript string) error
	CompleteSummarization(ctx context.Context, id, userID uuid.UUID, summary string) error
	Fail(ctx context.Context, id, userID uuid.UUID, cause models.RecordingError) error
}

// BlobStore fetches stored audio back for the pipeline.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// TextSummarizer condenses a transcript.
type TextSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Service owns the recording state machine: which transitions are legal, how
// failures are captured, and how re-invocations short-circuit. At most one
// backend call runs per recording per stage; the compare-and-swap transitions
// in the store decide the winner and everybody else re-reads.
type Service struct {
	store      Store
	blobs      BlobStore
	provider   transcription.Provider
	summarizer TextSummarizer
	logger     *zap.Logger

	transcribeTimeout time.Duration
	summarizeTimeout  time.Duration
}

// NewService creates the lifecycle service. Expensive collaborators (provider,
// summarizer, blob store) are built once at startup and shared read-only.
func NewService(store Store, blobs BlobStore, provider transcription.Provider, s TextSummarizer,
	transcribeTimeout, summarizeTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:             store,
		blobs:             blobs,
		provider:          provider,
		summarizer:        s,
		logger:            logger,
		transcribeTimeout: transcribeTimeout,
		summarizeTimeout:  summarizeTimeout,
	}
}

// CreateParams carries the validated upload metadata into persistence.
type CreateParams struct {
	UserID     uuid.UUID
	CourseCode string
	Title      string
	AudioKey   string
	ByteSize   int64
	FileType   string
	MIMEType   string
}

// Create persists a new recording in status uploaded.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Recording, error) {
	rec := &models.Recording{
		UserID:     p.UserID,
		CourseCode: p.CourseCode,
		Title:      p.Title,
		AudioKey:   p.AudioKey,
		ByteSize:   p.ByteSize,
		FileType:   p.FileType,
		MIMEType:   p.MIMEType,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return rec, nil
}

// Get returns one owned recording.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	return s.store.GetByID(ctx, id, userID)
}

// List returns the caller's recordings, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Recording, error) {
	return s.store.ListByUser(ctx, userID)
}

// Transcribe runs the transcription stage. If the recording already holds a
// transcript the stored one is returned and the backend is not invoked again;
// if another caller is mid-transcription the caller is told to poll.
func (s *Service) Transcribe(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.BeginTranscription(ctx, id, userID)
	if errors.Is(err, errStale) {
		return s.resolveTranscribeConflict(ctx, id, userID)
	}
	if err != nil {
		return nil, err
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.transcribeTimeout)
	defer cancel()

	text, err := s.runTranscription(stageCtx, rec)
	if err != nil {
		s.captureFailure(id, userID, "transcription", err)
		return nil, err
	}

	if err := s.store.CompleteTranscription(ctx, id, userID, text); err != nil {
		return nil, err
	}
	s.logger.Info("transcription completed",
		zap.String("recording_id", id.String()),
		zap.Int("transcript_chars", len(text)),
	)
	return s.store.GetByID(ctx, id, userID)
}

func (s *Service) runTranscription(ctx context.Context, rec *models.Recording) (string, error) {
	audio, err := s.blobs.Download(ctx, rec.AudioKey)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	return s.provider.Transcribe(ctx, audio, rec.MIMEType)
}

// resolveTranscribeConflict decides what a losing BeginTranscription caller
// sees, based on where the recording actually is.
func (s *Service) resolveTranscribeConflict(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.Status.AtLeast(models.StatusTranscribed):
		// Idempotent replay: the transcript already exists.
		return rec, nil
	case rec.Status == models.StatusTranscribing:
		return nil, ErrInProgress
	default:
		return nil, fmt.Errorf("%w: cannot transcribe from %s", ErrInvalidTransition, rec.Status)
	}
}

// Summarize runs the summarization stage over the stored transcript, with the
// same idempotent-replay and single-winner semantics as Transcribe.
func (s *Service) Summarize(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.BeginSummarization(ctx, id, userID)
	if errors.Is(err, errStale) {
		return s.resolveSummarizeConflict(ctx, id, userID)
	}
	if err != nil {
		return nil, err
	}
	if rec.Transcript == nil {
		// Should be unreachable: transcript is set on entering transcribed.
		s.captureFailure(id, userID, "summarization", errors.New("transcript missing"))
		return nil, ErrNoTranscript
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.summarizeTimeout)
	defer cancel()

	summary, err := s.summarizer.Summarize(stageCtx, *rec.Transcript)
	if err != nil {
		s.captureFailure(id, userID, "summarization", err)
		return nil, err
	}

	if err := s.store.CompleteSummarization(ctx, id, userID, summary); err != nil {
		return nil, err
	}
	s.logger.Info("summarization completed",
		zap.String("recording_id", id.String()),
		zap.Int("summary_chars", len(summary)),
	)
	return s.store.GetByID(ctx, id, userID)
}

func (s *Service) resolveSummarizeConflict(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case models.StatusSummarized:
		return rec, nil
	case models.StatusSummarizing:
		return nil, ErrInProgress
	case models.StatusUploaded, models.StatusTranscribing:
		return nil, ErrNoTranscript
	default:
		return nil, fmt.Errorf("%w: cannot summarize from %s", ErrInvalidTransition, rec.Status)
	}
}

// captureFailure records the cause on the row instead of letting it vanish
// with the request. Uses a detached context so a cancelled caller cannot
// prevent the failure from being persisted.
func (s *Service) captureFailure(id, userID uuid.UUID, stage string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rerr := models.RecordingError{Stage: stage, Message: cause.Error()}
	if err := s.store.Fail(ctx, id, userID, rerr); err != nil && !errors.Is(err, errStale) {
		s.logger.Error("persist failure cause",
			zap.String("recording_id", id.String()),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
	s.logger.Warn("pipeline stage failed",
		zap.String("recording_id", id.String()),
		zap.String("stage", stage),
		zap.Error(cause),
	)
}
