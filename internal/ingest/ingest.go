// Package ingest validates and stages uploaded audio before it enters the pipeline.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidFileType means the file extension is not in the allow-list.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrFileTooLarge means the written file exceeds the configured maximum.
	ErrFileTooLarge = errors.New("file too large")
	// ErrMissingField means a required upload field is absent or blank.
	ErrMissingField = errors.New("missing required field")
)

// AllowedExtensions maps permitted audio extensions to their MIME types.
var AllowedExtensions = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"mp4":  "video/mp4", // video with an audio track
}

// StagedFile is a validated upload written to a scoped temp location.
// Callers must defer Cleanup; it is safe to call more than once.
type StagedFile struct {
	Path      string
	Size      int64
	Extension string
	MIMEType  string
}

// Open returns the staged file for reading.
func (f *StagedFile) Open() (*os.File, error) {
	return os.Open(f.Path)
}

// Cleanup removes the staged temp file.
func (f *StagedFile) Cleanup() {
	if f.Path != "" {
		_ = os.Remove(f.Path)
		f.Path = ""
	}
}

// Guard enforces upload type and size policy and stages files to disk.
type Guard struct {
	maxFileSize int64
	tempDir     string // empty = os.TempDir()
}

// NewGuard creates an ingest guard with the given size limit in bytes.
func NewGuard(maxFileSize int64, tempDir string) *Guard {
	return &Guard{maxFileSize: maxFileSize, tempDir: tempDir}
}

// Extension returns the lowercase extension of fileName without the dot.
func Extension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return strings.TrimPrefix(ext, ".")
}

// MIMETypeFor returns the allow-listed MIME type for fileName, or false if the
// extension is not permitted.
func MIMETypeFor(fileName string) (string, bool) {
	mime, ok := AllowedExtensions[Extension(fileName)]
	return mime, ok
}

// ValidateFields rejects blank course code or title. Values are trimmed before checking.
func ValidateFields(courseCode, title string) error {
	if strings.TrimSpace(courseCode) == "" {
		return fmt.Errorf("%w: course_code", ErrMissingField)
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	return nil
}

// Stage validates fileName against the allow-list and writes body to a temp
// file. The size check runs after the write; the declared size from the client
// cannot be trusted. On any error the temp file is already removed; on success
// the caller owns cleanup via StagedFile.Cleanup.
func (g *Guard) Stage(fileName string, body io.Reader) (*StagedFile, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("%w: audio", ErrMissingField)
	}
	mime, ok := MIMETypeFor(fileName)
	if !ok {
		return nil, fmt.Errorf("%w: %q (allowed: %s)", ErrInvalidFileType, Extension(fileName), allowedList())
	}

	tmp, err := os.CreateTemp(g.tempDir, "upload-*."+Extension(fileName))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	// Cap the copy one byte past the limit so oversized streams are not
	// written to disk in full before being rejected.
	written, err := io.Copy(tmp, io.LimitReader(body, g.maxFileSize+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if written == 0 {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: audio", ErrMissingField)
	}
	if written > g.maxFileSize {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: max %d bytes", ErrFileTooLarge, g.maxFileSize)
	}

	return &StagedFile{
		Path:      tmp.Name(),
		Size:      written,
		Extension: Extension(fileName),
		MIMEType:  mime,
	}, nil
}

func allowedList() string {
	exts := make([]string, 0, len(AllowedExtensions))
	for ext := range AllowedExtensions {
		exts = append(exts, ext)
	}
	return strings.Join(exts, ", ")
}
