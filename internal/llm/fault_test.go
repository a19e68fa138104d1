package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func judgeReq() *CompletionRequest {
	return &CompletionRequest{
		Model:     "mock-model",
		Messages:  []Message{{Role: RoleUser, Content: "score this query"}},
		MaxTokens: 100,
	}
}

func fixedMock(content string) *MockProvider {
	return NewMockProvider([]*CompletionResponse{{Content: content, Model: "mock-model"}}, nil)
}

func TestFaultInjectorPassthrough(t *testing.T) {
	fi := NewFaultInjectorWithSeed(fixedMock(`{"score": 0.9}`), FaultConfig{}, 42)

	resp, err := fi.Complete(context.Background(), judgeReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"score": 0.9}` {
		t.Fatalf("expected passthrough content, got %q", resp.Content)
	}
	if fi.Name() != "fault:mock" {
		t.Errorf("Name: got %q, want %q", fi.Name(), "fault:mock")
	}
}

func TestFaultInjectorErrorRate(t *testing.T) {
	tests := []struct {
		rate     float64
		wantFail bool
	}{
		{1.0, true},
		{0.0, false},
	}
	for _, tt := range tests {
		fi := NewFaultInjectorWithSeed(fixedMock("ok"), FaultConfig{ErrorRate: tt.rate}, 42)
		for i := range 10 {
			_, err := fi.Complete(context.Background(), judgeReq())
			if (err != nil) != tt.wantFail {
				t.Fatalf("rate %.1f call %d: err = %v, wantFail %v", tt.rate, i, err, tt.wantFail)
			}
			if err != nil && !errors.Is(err, ErrInjectedFault) {
				t.Fatalf("rate %.1f call %d: got %v, want ErrInjectedFault", tt.rate, i, err)
			}
		}
	}
}

func TestFaultInjectorLatencyJitterBounded(t *testing.T) {
	fi := NewFaultInjectorWithSeed(fixedMock("ok"), FaultConfig{LatencyJitter: 100 * time.Millisecond}, 1)

	start := time.Now()
	if _, err := fi.Complete(context.Background(), judgeReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("elapsed %v exceeds jitter ceiling of 100ms plus overhead", elapsed)
	}
}

func TestFaultInjectorContentCorruption(t *testing.T) {
	original := `{"score": 0.75, "explanation": "joins the right tables"}`
	shared := &CompletionResponse{Content: original}
	fi := NewFaultInjectorWithSeed(NewMockProvider([]*CompletionResponse{shared}, nil), FaultConfig{ContentCorruption: true}, 99)

	resp, err := fi.Complete(context.Background(), judgeReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content == original {
		t.Fatal("expected content to be corrupted, but it matches original")
	}
	if len([]rune(resp.Content)) != len([]rune(original)) {
		t.Fatalf("corrupted length %d != original length %d", len(resp.Content), len(original))
	}
	if shared.Content != original {
		t.Error("corruption mutated the inner provider's response")
	}
}

func TestFaultInjectorTimeout(t *testing.T) {
	fi := NewFaultInjectorWithSeed(fixedMock("ok"), FaultConfig{TimeoutAfter: 10 * time.Millisecond}, 42)

	start := time.Now()
	_, err := fi.Complete(context.Background(), judgeReq())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("expected at least 10ms delay, got %v", elapsed)
	}
}

func TestFaultInjectorTimeoutHonorsCancel(t *testing.T) {
	fi := NewFaultInjectorWithSeed(fixedMock("ok"), FaultConfig{TimeoutAfter: time.Minute}, 42)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fi.Complete(ctx, judgeReq())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFaultInjectorInnerError(t *testing.T) {
	inner := NewMockProvider(nil, []error{errors.New("inner failure")})
	fi := NewFaultInjectorWithSeed(inner, FaultConfig{}, 42)

	_, err := fi.Complete(context.Background(), judgeReq())
	if err == nil || err.Error() != "inner failure" {
		t.Fatalf("expected inner error to propagate, got %v", err)
	}
}

func TestFaultInjectorRecoveredByRetries(t *testing.T) {
	fi := NewFaultInjectorWithSeed(fixedMock(`{"score": 1}`), FaultConfig{ErrorRate: 0.5}, 7)
	rl, err := NewRateLimitedProvider(fi, RateLimiterConfig{
		RequestsPerMinute: 6000,
		Burst:             100,
		MaxRetries:        20,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRateLimitedProvider: %v", err)
	}

	for i := range 5 {
		if _, err := rl.Complete(context.Background(), judgeReq()); err != nil {
			t.Fatalf("call %d: expected retries to absorb injected faults, got %v", i, err)
		}
	}
}
