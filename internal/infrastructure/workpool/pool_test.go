package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestSubmitRunsTask(t *testing.T) {
	p := New(2, 8, newTestLogger())
	defer p.Close()

	var ran atomic.Int32
	if err := p.Submit(context.Background(), func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for ran.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ran.Load() != 1 {
		t.Error("task never ran")
	}
}

func TestSubmitWaitReturnsTaskError(t *testing.T) {
	p := New(1, 1, newTestLogger())
	defer p.Close()

	want := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected task error, got %v", err)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	p := New(1, 1, newTestLogger())
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("handler bug")
	})
	if err == nil {
		t.Error("panicking task should surface an error, not kill the worker")
	}

	// The worker must still be alive.
	if err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("pool unusable after panic: %v", err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1, 1, newTestLogger())
	p.Close()

	if err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	if err := p.SubmitWait(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}

	// Double close is safe.
	p.Close()
}

func TestCancelledContextSkipsTask(t *testing.T) {
	p := New(1, 1, newTestLogger())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.SubmitWait(ctx, func(ctx context.Context) error {
		t.Error("task body must not run with a cancelled context")
		return nil
	})
	if err == nil {
		t.Error("expected a context error")
	}
}
