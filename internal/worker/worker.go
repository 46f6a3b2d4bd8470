// Package worker drives the recording pipeline in the background: it consumes
// transcription and summarization jobs and applies the same lifecycle
// operations the HTTP triggers do, so the store's compare-and-swap transitions
// arbitrate between the two.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classcribe/backend/internal/recordings"
	"github.com/classcribe/backend/internal/summarizer"
	"github.com/classcribe/backend/internal/transcription"
	"github.com/classcribe/backend/pkg/queue"
)

// Pipeline processes recording jobs: transcribe, then summarize.
type Pipeline struct {
	svc    *recordings.Service
	queue  *queue.Queue
	logger *zap.Logger
}

// NewPipeline creates the background pipeline processor.
func NewPipeline(svc *recordings.Service, q *queue.Queue, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{svc: svc, queue: q, logger: logger}
}

// Process executes one job. A nil return means the job is settled, one way or
// the other; an error means a transient fault worth retrying.
func (p *Pipeline) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeTranscribe:
		return p.transcribe(ctx, job)
	case queue.JobTypeSummarize:
		return p.summarize(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Pipeline) transcribe(ctx context.Context, job *queue.Job) error {
	var payload queue.TranscriptionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	_, err := p.svc.Transcribe(ctx, payload.RecordingID, payload.UserID)
	if err != nil {
		if settled := p.classify(err, job); settled {
			return nil
		}
		return fmt.Errorf("transcribe %s: %w", payload.RecordingID, err)
	}

	// Chain straight into summarization so an auto-processed upload ends up
	// fully summarized without another trigger.
	if err := p.queue.EnqueueSummarization(ctx, queue.SummarizationPayload{
		RecordingID: payload.RecordingID,
		UserID:      payload.UserID,
	}); err != nil {
		return fmt.Errorf("enqueue summarization: %w", err)
	}
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, job *queue.Job) error {
	var payload queue.SummarizationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if _, err := p.svc.Summarize(ctx, payload.RecordingID, payload.UserID); err != nil {
		if settled := p.classify(err, job); settled {
			return nil
		}
		return fmt.Errorf("summarize %s: %w", payload.RecordingID, err)
	}
	return nil
}

// classify reports whether err settles the job. Lifecycle conflicts mean some
// other caller already owns or finished the stage; backend failures are
// already captured on the row and the failed state is terminal, so a retry
// could never succeed.
func (p *Pipeline) classify(err error, job *queue.Job) bool {
	var terr *transcription.Error
	var serr *summarizer.Error
	switch {
	case errors.Is(err, recordings.ErrInProgress),
		errors.Is(err, recordings.ErrNotFound),
		errors.Is(err, recordings.ErrNoTranscript),
		errors.Is(err, recordings.ErrInvalidTransition):
		p.logger.Info("job settled without work", zap.String("job_id", job.ID), zap.Error(err))
		return true
	case errors.As(err, &terr), errors.As(err, &serr), errors.Is(err, transcription.ErrTimeout):
		p.logger.Warn("job failed terminally", zap.String("job_id", job.ID), zap.Error(err))
		return true
	default:
		return false
	}
}

// Run starts the worker loop: dequeue, process, retry transient failures.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
