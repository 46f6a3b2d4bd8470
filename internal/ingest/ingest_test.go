package ingest

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestMIMETypeForAllowList(t *testing.T) {
	tests := []struct {
		fileName string
		wantMIME string
	}{
		{"lecture.wav", "audio/wav"},
		{"lecture.mp3", "audio/mpeg"},
		{"lecture.m4a", "audio/mp4"},
		{"lecture.aac", "audio/aac"},
		{"lecture.ogg", "audio/ogg"},
		{"lecture.flac", "audio/flac"},
		{"lecture.mp4", "video/mp4"},
		{"LECTURE.WAV", "audio/wav"}, // case-insensitive
	}
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			mime, ok := MIMETypeFor(tt.fileName)
			if !ok {
				t.Fatalf("MIMETypeFor(%q) not allowed, want %q", tt.fileName, tt.wantMIME)
			}
			if mime != tt.wantMIME {
				t.Errorf("MIMETypeFor(%q) = %q, want %q", tt.fileName, mime, tt.wantMIME)
			}
		})
	}

	for _, name := range []string{"notes.txt", "malware.exe", "lecture.webm", "noextension", "lecture."} {
		if _, ok := MIMETypeFor(name); ok {
			t.Errorf("MIMETypeFor(%q) allowed, want rejected", name)
		}
	}
}

func TestStageRejectsDisallowedExtension(t *testing.T) {
	g := NewGuard(1024, t.TempDir())
	_, err := g.Stage("slides.pdf", strings.NewReader("data"))
	if !errors.Is(err, ErrInvalidFileType) {
		t.Errorf("Stage() error = %v, want ErrInvalidFileType", err)
	}
}

func TestStageRejectsOversizedAndLeavesNoResidue(t *testing.T) {
	dir := t.TempDir()
	g := NewGuard(10, dir)

	_, err := g.Stage("big.wav", strings.NewReader(strings.Repeat("x", 11)))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Stage() error = %v, want ErrFileTooLarge", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files after rejection", len(entries))
	}
}

func TestStageRejectsEmptyAudio(t *testing.T) {
	g := NewGuard(1024, t.TempDir())
	if _, err := g.Stage("silent.wav", strings.NewReader("")); !errors.Is(err, ErrMissingField) {
		t.Errorf("Stage() error = %v, want ErrMissingField", err)
	}
	if _, err := g.Stage("  ", strings.NewReader("data")); !errors.Is(err, ErrMissingField) {
		t.Errorf("Stage() error = %v, want ErrMissingField for blank file name", err)
	}
}

func TestStageMeasuresActualSize(t *testing.T) {
	g := NewGuard(1024, t.TempDir())
	staged, err := g.Stage("clip.mp3", strings.NewReader("123456"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer staged.Cleanup()

	if staged.Size != 6 {
		t.Errorf("Size = %d, want 6", staged.Size)
	}
	if staged.Extension != "mp3" {
		t.Errorf("Extension = %q, want mp3", staged.Extension)
	}
	if staged.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %q, want audio/mpeg", staged.MIMEType)
	}
	if _, err := os.Stat(staged.Path); err != nil {
		t.Errorf("staged file missing: %v", err)
	}
}

func TestCleanupRemovesFileAndIsIdempotent(t *testing.T) {
	g := NewGuard(1024, t.TempDir())
	staged, err := g.Stage("clip.ogg", strings.NewReader("data"))
	if err != nil {
		t.Fatal(err)
	}
	path := staged.Path
	staged.Cleanup()
	staged.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("staged file still exists after Cleanup")
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name       string
		courseCode string
		title      string
		wantErr    bool
	}{
		{"both present", "CS101", "Lecture 1", false},
		{"blank course", "   ", "Lecture 1", true},
		{"empty title", "CS101", "", true},
		{"whitespace title", "CS101", "\t\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFields(tt.courseCode, tt.title)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFields() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingField) {
				t.Errorf("error %v should wrap ErrMissingField", err)
			}
		})
	}
}
