package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-gxip/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManager_StartAndStop(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), logger.GetLogger())

	var iterations atomic.Int32
	require.NoError(mgr.Start("loop", func(ctx context.Context) bool {
		iterations.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(time.Millisecond):
		}
		return true
	}))

	require.Eventually(func() bool { return iterations.Load() > 3 }, time.Second, time.Millisecond)
	require.Equal(1, mgr.TaskCount())

	mgr.Stop()
	mgr.Wait()
	require.Equal(0, mgr.TaskCount())

	require.Error(mgr.Start("late", func(context.Context) bool { return false }))
}

func TestManager_TaskEndsOnFalse(t *testing.T) {
	mockLogger := logger.NewMockLogger().Permissive()

	mgr := NewManager(context.Background(), mockLogger)

	require.NoError(t, mgr.Start("once", func(context.Context) bool { return false }))
	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())

	mockLogger.AssertCalled(t, "Debug", "start task", []any{"name", "once"})
	mockLogger.AssertNotCalled(t, "Error", mock.Anything, mock.Anything)
}

func TestManager_PanicDoesNotEndTask(t *testing.T) {
	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return()
	mockLogger.On("Error", mock.Anything, mock.Anything).Return()

	mgr := NewManager(context.Background(), mockLogger)
	defer func() {
		mgr.Stop()
		mgr.Wait()
	}()

	var calls atomic.Int32
	require.NoError(t, mgr.Start("panicky", func(context.Context) bool {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return calls.Load() < 3
	}))

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return mgr.TaskCount() == 0 }, time.Second, time.Millisecond)

	mockLogger.AssertCalled(t, "Error", "panic in task", []any{"name", "panicky", "panic", "boom"})
	mockLogger.AssertNumberOfCalls(t, "Error", 1)
	mockLogger.AssertNotCalled(t, "Warn", mock.Anything, mock.Anything)
}

func TestManager_StartInterval(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), nil)
	defer func() {
		mgr.Stop()
		mgr.Wait()
	}()

	var ticks atomic.Int32
	fn := func(context.Context) bool {
		ticks.Add(1)
		return true
	}

	require.NoError(mgr.StartInterval("tick", fn, 5*time.Millisecond, true))
	require.Error(mgr.StartInterval("tick", fn, 5*time.Millisecond, false))
	require.Error(mgr.StartInterval("bad", fn, 0, false))

	require.Eventually(func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(mgr.StopInterval("tick"))
	require.Error(mgr.StopInterval("tick"))

	require.Eventually(func() bool { return mgr.TaskCount() == 0 }, time.Second, time.Millisecond)
}
