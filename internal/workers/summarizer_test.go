package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/queue"
)

type fakeMessage struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

func (m *fakeMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *fakeMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return nil
}

func (m *fakeMessage) GetJob() *queue.Job { return m.job }

type fakeGenerator struct {
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, _, goalID uuid.UUID, _ bool) (*models.Goal, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &models.Goal{ID: goalID}, nil
}

type captureQueue struct {
	jobs []*queue.Job
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) Consume(_ context.Context, _ int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *captureQueue) Close() error { return nil }

func (q *captureQueue) HealthCheck(_ context.Context) error { return nil }

func summaryJob() *queue.Job {
	goalID := uuid.New()
	return queue.NewJob(queue.JobTypeSummaryGeneration, uuid.New(), &goalID)
}

func TestProcessJob_Success(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	w := NewSummarizer(gen, &captureQueue{}, nil)
	msg := &fakeMessage{job: summaryJob()}

	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if !msg.acked || msg.nacked {
		t.Errorf("message state acked=%v nacked=%v, want acked only", msg.acked, msg.nacked)
	}
	if gen.calls != 1 {
		t.Errorf("Generate calls = %d, want 1", gen.calls)
	}
}

func TestProcessJob_ExpiredSkipsGeneration(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	w := NewSummarizer(gen, &captureQueue{}, nil)

	job := summaryJob()
	past := time.Now().Add(-time.Minute)
	job.NotAfter = &past
	msg := &fakeMessage{job: job}

	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if !msg.acked {
		t.Error("expired job should be acked")
	}
	if gen.calls != 0 {
		t.Errorf("Generate calls = %d, want 0 for expired job", gen.calls)
	}
}

func TestProcessJob_UnknownTypeDeadLetters(t *testing.T) {
	t.Parallel()

	w := NewSummarizer(&fakeGenerator{}, &captureQueue{}, nil)
	job := summaryJob()
	job.Type = "unrelated"
	msg := &fakeMessage{job: job}

	if err := w.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown job type")
	}
	if !msg.nacked || msg.requeued {
		t.Errorf("message state nacked=%v requeued=%v, want dead-lettered", msg.nacked, msg.requeued)
	}
}

func TestProcessJob_PermanentFailuresAreDropped(t *testing.T) {
	t.Parallel()

	permanent := []error{
		goal.NotFound(goal.ErrGoalNotFound),
		goal.InvalidState(goal.ErrGoalStillActive),
		goal.Precondition(goal.ErrSummaryExists),
		goal.Precondition(goal.ErrNotEnoughEntries),
	}
	for _, cause := range permanent {
		q := &captureQueue{}
		w := NewSummarizer(&fakeGenerator{err: cause}, q, nil)
		msg := &fakeMessage{job: summaryJob()}

		if err := w.ProcessJob(context.Background(), msg); err != nil {
			t.Errorf("%v: ProcessJob = %v, want nil", cause, err)
		}
		if !msg.acked {
			t.Errorf("%v: permanent failure should ack", cause)
		}
		if len(q.jobs) != 0 {
			t.Errorf("%v: permanent failure must not re-enqueue", cause)
		}
	}
}

func TestProcessJob_TransientFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	q := &captureQueue{}
	cause := goal.External(errors.New("upstream 500"))
	w := NewSummarizer(&fakeGenerator{err: cause}, q, nil)
	msg := &fakeMessage{job: summaryJob()}

	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if !msg.acked {
		t.Error("original message should be acked after re-enqueue")
	}
	if len(q.jobs) != 1 {
		t.Fatalf("re-enqueued jobs = %d, want 1", len(q.jobs))
	}
	retry := q.jobs[0]
	if retry.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", retry.RetryCount)
	}
	if retry.NotBefore == nil || !retry.NotBefore.After(time.Now()) {
		t.Errorf("NotBefore = %v, want a future backoff time", retry.NotBefore)
	}
}

func TestProcessJob_ExhaustedRetriesDeadLetter(t *testing.T) {
	t.Parallel()

	q := &captureQueue{}
	w := NewSummarizer(&fakeGenerator{err: goal.External(errors.New("still down"))}, q, nil)

	job := summaryJob()
	job.RetryCount = job.MaxRetries
	msg := &fakeMessage{job: job}

	if err := w.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("expected error when retries are exhausted")
	}
	if !msg.nacked || msg.requeued {
		t.Errorf("message state nacked=%v requeued=%v, want dead-lettered", msg.nacked, msg.requeued)
	}
	if len(q.jobs) != 0 {
		t.Error("exhausted job must not be re-enqueued")
	}
}

func TestProcessJob_EnqueueFailureDeadLetters(t *testing.T) {
	t.Parallel()

	q := &captureQueue{err: errors.New("broker unavailable")}
	w := NewSummarizer(&fakeGenerator{err: goal.External(errors.New("flaky"))}, q, nil)
	msg := &fakeMessage{job: summaryJob()}

	if err := w.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("expected error when re-enqueue fails")
	}
	if !msg.nacked || msg.requeued {
		t.Errorf("message state nacked=%v requeued=%v, want dead-lettered", msg.nacked, msg.requeued)
	}
}
