package recordings

import "errors"

var (
	// ErrNotFound covers both an absent recording and one owned by somebody
	// else; callers can never tell the two apart.
	ErrNotFound = errors.New("recording not found")

	// ErrInProgress means another caller holds the stage transition; the
	// client should poll rather than trigger a second backend call.
	ErrInProgress = errors.New("recording is already being processed")

	// ErrNoTranscript means summarization was requested before a transcript exists.
	ErrNoTranscript = errors.New("recording has no transcript yet")

	// ErrInvalidTransition means the requested operation is not legal from the
	// recording's current status (including anything after the failed terminal).
	ErrInvalidTransition = errors.New("invalid status transition")

	// errStale is the repository-internal signal that a compare-and-swap
	// update matched no row; the caller re-reads to find out why.
	errStale = errors.New("stale status precondition")
)
