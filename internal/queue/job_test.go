package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	goalID := uuid.New()
	job := NewJob(JobTypeSummaryGeneration, userID, &goalID)

	if job.ID == uuid.Nil {
		t.Error("job ID should be generated")
	}
	if job.Type != JobTypeSummaryGeneration {
		t.Errorf("Type = %s, want %s", job.Type, JobTypeSummaryGeneration)
	}
	if job.UserID != userID {
		t.Errorf("UserID = %s, want %s", job.UserID, userID)
	}
	if job.GoalID == nil || *job.GoalID != goalID {
		t.Errorf("GoalID = %v, want %s", job.GoalID, goalID)
	}
	if job.RetryCount != 0 || job.MaxRetries != 3 {
		t.Errorf("retry counters = %d/%d, want 0/3", job.RetryCount, job.MaxRetries)
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no window", want: true},
		{name: "not before in past", notBefore: &past, want: true},
		{name: "not before in future", notBefore: &future, want: false},
		{name: "not after in future", notAfter: &future, want: true},
		{name: "not after in past", notAfter: &past, want: false},
		{name: "inside window", notBefore: &past, notAfter: &future, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := NewJob(JobTypeSummaryGeneration, uuid.New(), nil)
			job.NotBefore = tt.notBefore
			job.NotAfter = tt.notAfter
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeSummaryGeneration, uuid.New(), nil)
	if job.IsExpired() {
		t.Error("job without NotAfter should never expire")
	}

	past := time.Now().Add(-time.Minute)
	job.NotAfter = &past
	if !job.IsExpired() {
		t.Error("job past NotAfter should be expired")
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeSummaryGeneration, uuid.New(), nil)
	for i := 0; i < job.MaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("CanRetry() = false at retry %d of %d", i, job.MaxRetries)
		}
		job.IncrementRetry()
	}
	if job.CanRetry() {
		t.Error("CanRetry() should be false once retries are exhausted")
	}
}
