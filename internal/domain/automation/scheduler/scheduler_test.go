package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingProcessor struct {
	ticks atomic.Int32
}

func (c *countingProcessor) ProcessTick(ctx context.Context) error {
	c.ticks.Add(1)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerTicksOnInterval(t *testing.T) {
	p := &countingProcessor{}
	s := New(p, 10*time.Millisecond, discardLogger())

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	// Immediate tick on start plus at least two interval ticks.
	if got := p.ticks.Load(); got < 3 {
		t.Fatalf("ticks = %d, want at least 3", got)
	}
}

func TestWakeTriggersImmediateTick(t *testing.T) {
	p := &countingProcessor{}
	s := New(p, time.Hour, discardLogger())

	s.Start(context.Background())
	defer s.Stop()

	// Wait out the startup tick.
	deadline := time.Now().Add(time.Second)
	for p.ticks.Load() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("startup tick never ran")
		}
		time.Sleep(time.Millisecond)
	}

	s.Wake()
	deadline = time.Now().Add(time.Second)
	for p.ticks.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("wake did not trigger a tick")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&countingProcessor{}, time.Hour, discardLogger())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
