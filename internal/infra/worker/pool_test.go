//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	t.Run("should run submitted tasks", func(t *testing.T) {
		p := NewPool(2, 4, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		defer p.Stop()

		var n atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			if err := p.Submit(ctx, func(ctx context.Context) error {
				defer wg.Done()
				n.Add(1)
				return nil
			}); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
		wg.Wait()
		if n.Load() != 10 {
			t.Errorf("expected 10 tasks, ran %d", n.Load())
		}
	})

	t.Run("should survive task errors and panics", func(t *testing.T) {
		p := NewPool(1, 4, nil)
		ctx := context.Background()
		p.Start(ctx)
		defer p.Stop()

		done := make(chan struct{})
		_ = p.Submit(ctx, func(ctx context.Context) error { return errors.New("boom") })
		_ = p.Submit(ctx, func(ctx context.Context) error { panic("kaboom") })
		_ = p.Submit(ctx, func(ctx context.Context) error { close(done); return nil })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not recover")
		}
	})

	t.Run("should reject nil tasks and submissions after stop", func(t *testing.T) {
		p := NewPool(1, 1, nil)
		if err := p.Submit(context.Background(), nil); !errors.Is(err, ErrNilTask) {
			t.Errorf("expected ErrNilTask, got %v", err)
		}
		p.Start(context.Background())
		p.Stop()
		if err := p.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
			t.Errorf("expected ErrPoolStopped, got %v", err)
		}
	})

	t.Run("should honour ctx while the queue is full", func(t *testing.T) {
		p := NewPool(1, 1, nil) // not started: nothing drains the queue
		_ = p.Submit(context.Background(), func(context.Context) error { return nil })
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := p.Submit(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
