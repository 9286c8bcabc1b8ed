package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingTarget struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTarget) AutoCancelLateReservations(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1, c.err
}

func (c *countingTarget) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSweeperRunsImmediatelyAndOnTicks(t *testing.T) {
	target := &countingTarget{}
	sweeper := NewSweeper(target, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	waitFor(t, time.Second, func() bool { return target.count() >= 3 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}

func TestSweeperKeepsGoingAfterFailure(t *testing.T) {
	target := &countingTarget{err: errors.New("db unavailable")}
	sweeper := NewSweeper(target, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	waitFor(t, time.Second, func() bool { return target.count() >= 2 })
}
