package recordings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classcribe/backend/internal/models"
)

const recordingColumns = `id, user_id, course_code, title, audio_key, byte_size, file_type, mime_type,
	status, transcript, summary, error, created_at, transcribed_at, summarized_at`

// Repository handles recording persistence. All status changes are optimistic
// compare-and-swap updates keyed by (id, user_id, current status), so the
// store remains the single synchronization point across requests and workers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new recording in status uploaded, scoped to its owner.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (id, user_id, course_code, title, audio_key, byte_size, file_type, mime_type, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	rec.Status = models.StatusUploaded
	return r.pool.QueryRow(ctx, q,
		rec.UserID, rec.CourseCode, rec.Title, rec.AudioKey, rec.ByteSize, rec.FileType, rec.MIMEType, rec.Status,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// GetByID returns an owned recording, or ErrNotFound when it is absent or
// belongs to another user.
func (r *Repository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1 AND user_id = $2`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// ListByUser returns the caller's recordings, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// BeginTranscription atomically moves uploaded -> transcribing and returns the
// row. errStale means the precondition did not hold; the caller must re-read.
func (r *Repository) BeginTranscription(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	q := `UPDATE recordings SET status = $3 WHERE id = $1 AND user_id = $2 AND status = $4
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id, userID, models.StatusTranscribing, models.StatusUploaded))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errStale
		}
		return nil, fmt.Errorf("begin transcription: %w", err)
	}
	return rec, nil
}

// BeginSummarization atomically moves transcribed -> summarizing and returns
// the row, transcript included.
func (r *Repository) BeginSummarization(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	q := `UPDATE recordings SET status = $3 WHERE id = $1 AND user_id = $2 AND status = $4
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id, userID, models.StatusSummarizing, models.StatusTranscribed))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errStale
		}
		return nil, fmt.Errorf("begin summarization: %w", err)
	}
	return rec, nil
}

// CompleteTranscription stores the transcript, stamps transcribed_at and moves
// transcribing -> transcribed in one statement.
func (r *Repository) CompleteTranscription(ctx context.Context, id, userID uuid.UUID, transcript string) error {
	const q = `UPDATE recordings SET status = $3, transcript = $4, transcribed_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $5`
	tag, err := r.pool.Exec(ctx, q, id, userID, models.StatusTranscribed, transcript, models.StatusTranscribing)
	if err != nil {
		return fmt.Errorf("complete transcription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errStale
	}
	return nil
}

// CompleteSummarization stores the summary, stamps summarized_at and moves
// summarizing -> summarized in one statement.
func (r *Repository) CompleteSummarization(ctx context.Context, id, userID uuid.UUID, summary string) error {
	const q = `UPDATE recordings SET status = $3, summary = $4, summarized_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $5`
	tag, err := r.pool.Exec(ctx, q, id, userID, models.StatusSummarized, summary, models.StatusSummarizing)
	if err != nil {
		return fmt.Errorf("complete summarization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errStale
	}
	return nil
}

// Fail moves any non-terminal recording to failed and records the cause.
// Failing an already-terminal recording matches no row and returns errStale.
func (r *Repository) Fail(ctx context.Context, id, userID uuid.UUID, cause models.RecordingError) error {
	raw, err := json.Marshal(cause)
	if err != nil {
		return fmt.Errorf("marshal failure cause: %w", err)
	}
	const q = `UPDATE recordings SET status = $3, error = $4
		WHERE id = $1 AND user_id = $2 AND status NOT IN ($5, $6)`
	tag, err := r.pool.Exec(ctx, q, id, userID, models.StatusFailed, raw, models.StatusSummarized, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("fail recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errStale
	}
	return nil
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var rawErr []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.CourseCode, &rec.Title, &rec.AudioKey,
		&rec.ByteSize, &rec.FileType, &rec.MIMEType, &rec.Status,
		&rec.Transcript, &rec.Summary, &rawErr,
		&rec.CreatedAt, &rec.TranscribedAt, &rec.SummarizedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawErr) > 0 {
		var cause models.RecordingError
		if err := json.Unmarshal(rawErr, &cause); err != nil {
			return nil, fmt.Errorf("decode failure cause: %w", err)
		}
		rec.Error = &cause
	}
	return &rec, nil
}
