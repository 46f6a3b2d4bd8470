// Package summarizer condenses transcripts through a summarization backend,
// splitting long text into bounded windows so each call stays inside the
// model's context budget.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Error wraps a backend failure during summarization.
type Error struct {
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("summarization failed: %v", e.Cause) }

func (e *Error) Unwrap() error { return e.Cause }

// Backend produces a bounded-length summary of one piece of text.
type Backend interface {
	SummarizeText(ctx context.Context, text string) (string, error)
}

// Summarizer splits long transcripts into contiguous character windows and
// summarizes them independently, in original order.
type Summarizer struct {
	backend             Backend
	chunkBudget         int
	minMeaningfulLength int
}

// New creates a chunked summarizer. chunkBudget is the window size in
// characters; windows shorter than minMeaningfulLength after trimming are
// skipped rather than summarized.
func New(backend Backend, chunkBudget, minMeaningfulLength int) *Summarizer {
	return &Summarizer{
		backend:             backend,
		chunkBudget:         chunkBudget,
		minMeaningfulLength: minMeaningfulLength,
	}
}

// Chunk is a contiguous slice of the transcript tagged with its position so
// results reassemble in order.
type Chunk struct {
	Index int
	Text  string
}

// Split partitions text into contiguous, non-overlapping windows of exactly
// budget characters; the last window may be shorter. The windows' concatenation
// reconstructs the input exactly. Windows may end mid-sentence; the split is a
// character-offset partition, not a sentence-aware one. The budget counts
// runes, never bytes, so a multi-byte character is never torn across windows.
func Split(text string, budget int) []Chunk {
	runes := []rune(text)
	if budget <= 0 || len(runes) <= budget {
		return []Chunk{{Index: 0, Text: text}}
	}
	chunks := make([]Chunk, 0, (len(runes)+budget-1)/budget)
	for i, off := 0, 0; off < len(runes); i, off = i+1, off+budget {
		end := off + budget
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Index: i, Text: string(runes[off:end])})
	}
	return chunks
}

// Summarize produces a summary of text. Short texts pass through unchanged;
// longer ones are split, summarized per window in original order, and joined
// with a single space. A failure on any window fails the whole call so partial
// summaries never escape.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if utf8.RuneCountInString(text) <= s.chunkBudget {
		if utf8.RuneCountInString(strings.TrimSpace(text)) < s.minMeaningfulLength {
			// Too short to meaningfully compress.
			return text, nil
		}
		out, err := s.backend.SummarizeText(ctx, text)
		if err != nil {
			return "", &Error{Cause: err}
		}
		return out, nil
	}

	var parts []string
	for _, chunk := range Split(text, s.chunkBudget) {
		if utf8.RuneCountInString(strings.TrimSpace(chunk.Text)) < s.minMeaningfulLength {
			continue
		}
		out, err := s.backend.SummarizeText(ctx, chunk.Text)
		if err != nil {
			return "", &Error{Cause: fmt.Errorf("chunk %d: %w", chunk.Index, err)}
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, " "), nil
}
