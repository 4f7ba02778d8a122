package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNames(t *testing.T) {
	r := NewRegistry(Deps{})
	names := r.Names()
	assert.Equal(t, []string{
		TaskDailyScrape,
		TaskDetectShifts,
		TaskMarketReport,
		TaskHealthCheck,
		TaskParseNewFilings,
		TaskRecomputeProfiles,
		TaskStaleDataCheck,
	}, names)
}

func TestRunUnknownTask(t *testing.T) {
	r := NewRegistry(Deps{})
	_, err := r.Run(context.Background(), "no_such_task")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTask))
}

func TestRunSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	r := &Registry{
		tasks: map[string]Func{
			"slow": func(ctx context.Context) (map[string]any, error) {
				close(started)
				<-release
				return map[string]any{"done": true}, nil
			},
		},
		running: map[string]bool{},
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Run(context.Background(), "slow")
		assert.NoError(t, err)
	}()

	<-started
	_, err := r.Run(context.Background(), "slow")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	close(release)
	wg.Wait()

	// After completion the task is runnable again.
	done := make(chan struct{})
	r.tasks["slow"] = func(ctx context.Context) (map[string]any, error) {
		close(done)
		return nil, nil
	}
	_, err = r.Run(context.Background(), "slow")
	assert.NoError(t, err)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run after the first invocation finished")
	}
}

func TestRunPopulatesResult(t *testing.T) {
	r := &Registry{
		tasks: map[string]Func{
			"noop": func(ctx context.Context) (map[string]any, error) {
				return map[string]any{"n": 1}, nil
			},
		},
		running: map[string]bool{},
	}
	res, err := r.Run(context.Background(), "noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", res.Task)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]any{"n": 1}, res.Summary)
}
