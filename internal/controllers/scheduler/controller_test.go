package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var passes int32

	c, err := NewController(ctx, &wg, 20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&passes, 1)
		return errors.New("spool unreadable")
	}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StartController(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&passes) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated passes, got %d", atomic.LoadInt32(&passes))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	wg.Wait()

	after := atomic.LoadInt32(&passes)
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&passes); got > after+1 {
		t.Errorf("job kept running after cancellation: %d -> %d", after, got)
	}
}

func TestSchedulerRejectsZeroInterval(t *testing.T) {
	if _, err := NewController(context.Background(), &sync.WaitGroup{}, 0, nil, zap.NewNop().Sugar()); err == nil {
		t.Error("expected an error for a zero interval")
	}
}
