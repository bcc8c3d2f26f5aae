package ratelimit

import (
	"context"
	"testing"
)

func TestNewMemoryLimiter_InvalidRate(t *testing.T) {
	t.Parallel()
	if _, err := NewMemoryLimiter("not-a-rate"); err == nil {
		t.Error("expected error for malformed rate")
	}
}

func TestMemoryLimiter_CheckAndConsume(t *testing.T) {
	t.Parallel()
	l, err := NewMemoryLimiter("2-H")
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.CheckAndConsume(ctx, "user-a")
		if err != nil {
			t.Fatalf("CheckAndConsume %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := l.CheckAndConsume(ctx, "user-a")
	if err != nil {
		t.Fatalf("CheckAndConsume over limit: %v", err)
	}
	if res.Allowed {
		t.Error("third request within the hour should be limited")
	}

	// Keys are independent.
	other, err := l.CheckAndConsume(ctx, "user-b")
	if err != nil {
		t.Fatalf("CheckAndConsume other key: %v", err)
	}
	if !other.Allowed {
		t.Error("a different key must not share the budget")
	}
}
