package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/push"
)

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := New(DefaultConfig("test"), zap.NewNop())
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_AllowsRequestsWhenClosed(t *testing.T) {
	cb := New(DefaultConfig("test"), zap.NewNop())
	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 3, RecoveryTimeout: 1 * time.Second}, zap.NewNop())
	for i := 0; i < 3; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 5 * time.Second}, zap.NewNop())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("should reject when open")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond}, zap.NewNop())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("should allow probe after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ClosesOnSuccessfulProbe(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond}, zap.NewNop())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed after probe success, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ReopensOnFailedProbe(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond}, zap.NewNop())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen after probe failure, got %s", cb.GetState())
	}
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) Send(ctx context.Context, batch *push.Batch) (*push.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &push.Response{Provider: s.Name(), Delivered: len(batch.Endpoints)}, nil
}

func (s *stubSender) Name() string { return "stub" }

func testBatch() *push.Batch {
	return &push.Batch{
		ProjectID: uuid.New(),
		Kind:      "check_in_reminder",
		Title:     "Time to check in",
		Endpoints: []push.Endpoint{{Token: "ep-1"}},
	}
}

func TestProtectedSender_PassesThrough(t *testing.T) {
	stub := &stubSender{}
	p := NewProtectedSender(stub, New(DefaultConfig("push"), zap.NewNop()), zap.NewNop())

	resp, err := p.Send(context.Background(), testBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", resp.Delivered)
	}
	if p.Name() != "stub" {
		t.Errorf("Name should delegate, got %s", p.Name())
	}
}

func TestProtectedSender_FailsFastWhenOpen(t *testing.T) {
	stub := &stubSender{err: errors.New("provider down")}
	p := NewProtectedSender(stub, New(Config{Name: "push", MaxFailures: 2, RecoveryTimeout: time.Minute}, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := p.Send(ctx, testBatch()); err == nil {
			t.Fatal("expected provider error")
		}
	}

	callsBefore := stub.calls
	_, err := p.Send(ctx, testBatch())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if stub.calls != callsBefore {
		t.Error("open circuit must not reach the provider")
	}
}
