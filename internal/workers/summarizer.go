package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/queue"
	"github.com/strideapp/stride/internal/services/ai"
)

// SummaryGenerator is the slice of the summary service the worker needs
type SummaryGenerator interface {
	Generate(ctx context.Context, userID, goalID uuid.UUID, force bool) (*models.Goal, error)
}

// Summarizer processes retrospective generation jobs from the queue
type Summarizer struct {
	summaries SummaryGenerator
	jobQueue  queue.JobQueue // For re-enqueueing jobs with delays
	logger    *zap.Logger
}

// NewSummarizer creates a new summarizer worker
func NewSummarizer(summaries SummaryGenerator, jobQueue queue.JobQueue, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		summaries: summaries,
		jobQueue:  jobQueue,
		logger:    logger,
	}
}

// Run consumes jobs until ctx is cancelled or the delivery stream closes
func (w *Summarizer) Run(ctx context.Context, jobs queue.JobQueue, prefetch int) error {
	msgChan, errChan, err := jobs.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errChan:
			if !ok {
				return nil
			}
			w.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Error("job_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessJob handles a single message: generate the summary, then ack, retry
// with backoff, or dead-letter depending on the failure class
func (w *Summarizer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if job.IsExpired() {
		w.logger.Info("job_expired",
			zap.String("job_id", job.ID.String()),
			zap.Timep("not_after", job.NotAfter),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack expired job: %w", ackErr)
		}
		return nil
	}

	if job.Type != queue.JobTypeSummaryGeneration {
		_ = msg.Nack(false) // Unknown job type, send to DLQ
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	if job.GoalID == nil {
		_ = msg.Nack(false)
		return fmt.Errorf("goal_id is required for summary job %s", job.ID)
	}

	_, err := w.summaries.Generate(ctx, job.UserID, *job.GoalID, false)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		w.logger.Info("summary_generated",
			zap.String("goal_id", job.GoalID.String()),
			zap.String("job_id", job.ID.String()),
		)
		return nil
	}

	switch goal.CodeOf(err) {
	case goal.CodeNotFound, goal.CodeInvalidState, goal.CodePreconditionFailed, goal.CodeValidationFailed:
		// Permanent for this job: the goal is gone, active again via a data
		// fix, already summarized, or too sparse. Drop without retry.
		w.logger.Info("summary_job_dropped",
			zap.String("goal_id", job.GoalID.String()),
			zap.String("reason", err.Error()),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack dropped job: %w", ackErr)
		}
		return nil
	default:
		return w.retryOrDeadLetter(ctx, msg, job, err)
	}
}

// retryOrDeadLetter re-enqueues a transient failure with backoff, or sends
// the message to the DLQ once retries are exhausted
func (w *Summarizer) retryOrDeadLetter(ctx context.Context, msg queue.MessageInterface, job *queue.Job, cause error) error {
	if !job.CanRetry() {
		w.logger.Warn("summary_job_dead_lettered",
			zap.String("job_id", job.ID.String()),
			zap.Int("retries", job.RetryCount),
			zap.Error(cause),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			return fmt.Errorf("failed to dead-letter job: %w", nackErr)
		}
		return cause
	}

	retryDelay := ai.GetRetryDelay(cause, job.RetryCount)
	notBefore := time.Now().Add(retryDelay)

	retryJob := &queue.Job{
		ID:         job.ID,
		Type:       job.Type,
		UserID:     job.UserID,
		GoalID:     job.GoalID,
		NotBefore:  &notBefore,
		NotAfter:   job.NotAfter,
		CreatedAt:  job.CreatedAt,
		RetryCount: job.RetryCount + 1,
		MaxRetries: job.MaxRetries,
	}

	if w.jobQueue == nil {
		// No queue access: cannot schedule a delayed retry, dead-letter
		// instead of spinning on immediate redelivery.
		if nackErr := msg.Nack(false); nackErr != nil {
			return fmt.Errorf("failed to dead-letter job without queue: %w", nackErr)
		}
		return cause
	}

	if enqueueErr := w.jobQueue.Enqueue(ctx, retryJob); enqueueErr != nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Error("failed_to_dead_letter_after_enqueue_failure", zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue job %s: %w", job.ID, enqueueErr)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job after re-enqueue: %w", ackErr)
	}

	w.logger.Info("summary_job_retry_scheduled",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry", retryJob.RetryCount),
		zap.Time("not_before", notBefore),
		zap.Error(cause),
	)
	return nil
}
