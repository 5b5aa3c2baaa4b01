package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndList(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:        "noop",
		Description: "does nothing",
		Interval:    time.Hour,
		Fn:          func(ctx context.Context) error { return nil },
	})

	items := s.List()
	require.Len(t, items, 1)
	assert.Equal(t, "noop", items[0].Name)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.NotNil(t, items[0].NextDate)
}

func TestRunUpdatesState(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.Register(Job{
		Name:     "once",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			defer close(done)
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background(), "once"))
	<-done

	assert.Error(t, s.Run(context.Background(), "missing"))
}

// Exercises the scheduler loop and List concurrently; the race detector
// verifies every NextRunAt access is guarded.
func TestListIsSafeWhileRunning(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:     "tick",
		Interval: time.Millisecond,
		Fn:       func(ctx context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.List()
			}
		}()
	}
	wg.Wait()
}
