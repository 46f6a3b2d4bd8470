package recordings

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classcribe/backend/internal/ingest"
	"github.com/classcribe/backend/internal/middleware"
	"github.com/classcribe/backend/pkg/queue"
	"github.com/classcribe/backend/pkg/response"
	"github.com/classcribe/backend/pkg/storage"
)

// Handler handles recording HTTP endpoints.
type Handler struct {
	svc         *Service
	guard       *ingest.Guard
	s3          *storage.S3
	queue       *queue.Queue // optional; nil disables background processing
	autoProcess bool
	logger      *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(svc *Service, guard *ingest.Guard, s3 *storage.S3, q *queue.Queue, autoProcess bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, guard: guard, s3: s3, queue: q, autoProcess: autoProcess, logger: logger}
}

// Upload handles POST /recordings: validate, stage, push to the blob store,
// persist the row in status uploaded, and return immediately. Transcription
// and summarization run later; the client observes them by re-reading.
func (h *Handler) Upload(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	courseCode := c.PostForm("course_code")
	title := c.PostForm("title")
	if err := ingest.ValidateFields(courseCode, title); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "no audio file provided")
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "unreadable audio file")
		return
	}
	defer src.Close()

	staged, err := h.guard.Stage(fileHeader.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidFileType),
			errors.Is(err, ingest.ErrFileTooLarge),
			errors.Is(err, ingest.ErrMissingField):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("stage upload failed", zap.Error(err))
			response.Internal(c, "failed to store upload")
		}
		return
	}
	defer staged.Cleanup()

	key := storage.AudioKey(userID.String(), fileHeader.Filename)
	audio, err := staged.Open()
	if err != nil {
		h.logger.Error("open staged upload failed", zap.Error(err), zap.String("path", staged.Path))
		response.Internal(c, "failed to store upload")
		return
	}
	defer audio.Close()

	if err := h.s3.Upload(c.Request.Context(), key, staged.MIMEType, audio, staged.Size); err != nil {
		h.logger.Error("upload audio to S3 failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to store upload")
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), CreateParams{
		UserID:     userID,
		CourseCode: courseCode,
		Title:      title,
		AudioKey:   key,
		ByteSize:   staged.Size,
		FileType:   staged.Extension,
		MIMEType:   staged.MIMEType,
	})
	if err != nil {
		h.logger.Error("create recording failed", zap.Error(err), zap.String("key", key))
		// Do not leave an orphaned blob behind the missing row.
		if delErr := h.s3.Delete(c.Request.Context(), key); delErr != nil {
			h.logger.Warn("orphaned audio cleanup failed", zap.Error(delErr), zap.String("key", key))
		}
		response.Internal(c, "failed to create recording")
		return
	}

	if h.autoProcess && h.queue != nil {
		if err := h.queue.EnqueueTranscription(c.Request.Context(), queue.TranscriptionPayload{
			RecordingID: rec.ID,
			UserID:      userID,
		}); err != nil {
			h.logger.Warn("enqueue transcription failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		}
	}

	response.Created(c, gin.H{
		"id":        rec.ID,
		"status":    rec.Status,
		"audio_key": rec.AudioKey,
		"file_size": rec.ByteSize,
		"file_type": rec.FileType,
		"mime_type": rec.MIMEType,
	})
}

// Transcribe handles POST /recordings/:id/transcribe. Blocks the calling
// request (and only it) until the stage finishes, replays idempotently, or
// reports a conflict.
func (h *Handler) Transcribe(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	rec, err := h.svc.Transcribe(c.Request.Context(), id, userID)
	if err != nil {
		h.writePipelineError(c, err, "transcription failed")
		return
	}
	response.OK(c, gin.H{"status": rec.Status, "transcription": rec.Transcript})
}

// Summarize handles POST /recordings/:id/summarize.
func (h *Handler) Summarize(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	rec, err := h.svc.Summarize(c.Request.Context(), id, userID)
	if err != nil {
		h.writePipelineError(c, err, "summarization failed")
		return
	}
	response.OK(c, gin.H{"status": rec.Status, "summary": rec.Summary})
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /recordings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to load recording")
		return
	}
	response.OK(c, rec)
}

// GenerateDownloadURL handles GET /recordings/:id/download-url. Returns a
// presigned URL for the caller's own audio object.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		response.Internal(c, "failed to load recording")
		return
	}
	url, err := h.s3.PresignDownloadURL(c.Request.Context(), rec.AudioKey)
	if err != nil {
		h.logger.Error("presign audio download failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(h.s3.PresignExpire().Seconds())})
}

// writePipelineError maps lifecycle errors onto HTTP statuses. Backend
// failures surface as server errors while the captured cause stays on the row.
func (h *Handler) writePipelineError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, ErrNotFound.Error())
	case errors.Is(err, ErrInProgress):
		response.Conflict(c, ErrInProgress.Error())
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNoTranscript):
		response.BadRequest(c, ErrNoTranscript.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Internal(c, fallback)
	}
}
