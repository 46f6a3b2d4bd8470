package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the recording lifecycle state. It only advances forward along the
// transition graph, or to the terminal failed state from any non-terminal state.
type Status string

const (
	StatusUploaded     Status = "uploaded"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusSummarizing  Status = "summarizing"
	StatusSummarized   Status = "summarized"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions may occur from s.
func (s Status) Terminal() bool {
	return s == StatusSummarized || s == StatusFailed
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusFailed {
		return !s.Terminal()
	}
	switch s {
	case StatusUploaded:
		return next == StatusTranscribing
	case StatusTranscribing:
		return next == StatusTranscribed
	case StatusTranscribed:
		return next == StatusSummarizing
	case StatusSummarizing:
		return next == StatusSummarized
	default:
		return false
	}
}

// AtLeast reports whether s has reached stage on the forward path.
// Failed recordings have reached nothing.
func (s Status) AtLeast(stage Status) bool {
	order := map[Status]int{
		StatusUploaded:     0,
		StatusTranscribing: 1,
		StatusTranscribed:  2,
		StatusSummarizing:  3,
		StatusSummarized:   4,
	}
	a, ok1 := order[s]
	b, ok2 := order[stage]
	return ok1 && ok2 && a >= b
}

// RecordingError is the structured failure cause persisted on a failed recording.
type RecordingError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Recording is one uploaded audio file plus its derived transcript, summary and
// pipeline status. Scoped to the uploading user; every read and write is keyed
// by (id, user_id).
type Recording struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	CourseCode string    `json:"course_code"`
	Title      string    `json:"title"`
	AudioKey   string    `json:"audio_key"`
	ByteSize   int64     `json:"file_size"`
	FileType   string    `json:"file_type"`
	MIMEType   string    `json:"mime_type"`
	Status     Status    `json:"status"`

	Transcript *string         `json:"transcript,omitempty"`
	Summary    *string         `json:"summary,omitempty"`
	Error      *RecordingError `json:"error,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	TranscribedAt *time.Time `json:"transcribed_at,omitempty"`
	SummarizedAt  *time.Time `json:"summarized_at,omitempty"`
}
