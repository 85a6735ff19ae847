// Package task supervises the long-lived goroutines of the gateway: one per session
// server, the transaction listener, the control-channel listener and the herald loop.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gxip/logger"
)

// Func is one iteration of a task loop. It returns false to end the task.
// The context is canceled when the manager stops.
type Func func(ctx context.Context) bool

// Manager manages the lifecycle of the goroutines started through it.
//
// A panic inside an iteration is recovered and logged and the loop continues with the
// next iteration, so a fault in one session never takes the process down.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	_ = mgr.Start("chcp_listener", func(ctx context.Context) bool {
//	    listener.ServeOnce(ctx)
//	    return true
//	})
//
//	_ = mgr.StartInterval("herald", func(ctx context.Context) bool {
//	    heralder.Tick()
//	    return true
//	}, 2*time.Second, true)
//
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    logger.Logger
	count     atomic.Int32
	intervals sync.Map // map[string]*intervalTask
}

type intervalTask struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (it *intervalTask) halt() {
	it.once.Do(func() {
		it.ticker.Stop()
		close(it.stop)
	})
}

// NewManager creates a Manager whose tasks stop when ctx is canceled or Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start runs fn repeatedly in a new goroutine until it returns false or the manager stops.
func (mgr *Manager) Start(name string, fn Func) error {
	if err := mgr.ctx.Err(); err != nil {
		return fmt.Errorf("start %s: task manager already stopped", name)
	}

	mgr.logger.Debug("start task", "name", name)
	mgr.launch(name, func() {
		for {
			select {
			case <-mgr.ctx.Done():
				return
			default:
			}

			if !mgr.callWithRecover(name, fn) {
				return
			}
		}
	})

	return nil
}

// StartInterval runs fn every interval in a new goroutine. If runNow is true fn also runs
// once immediately. The task ends when fn returns false, the manager stops, or
// StopInterval is called.
func (mgr *Manager) StartInterval(name string, fn Func, interval time.Duration, runNow bool) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}
	if err := mgr.ctx.Err(); err != nil {
		return fmt.Errorf("start %s: task manager already stopped", name)
	}

	it := &intervalTask{ticker: time.NewTicker(interval), stop: make(chan struct{})}
	if _, loaded := mgr.intervals.LoadOrStore(name, it); loaded {
		it.ticker.Stop()
		return fmt.Errorf("interval task %s already exists", name)
	}

	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "run_now", runNow)
	mgr.launch(name, func() {
		defer func() {
			it.halt()
			mgr.intervals.CompareAndDelete(name, it)
		}()

		if runNow && !mgr.callWithRecover(name, fn) {
			return
		}

		for {
			select {
			case <-mgr.ctx.Done():
				return
			case <-it.stop:
				return
			case <-it.ticker.C:
				if !mgr.callWithRecover(name, fn) {
					return
				}
			}
		}
	})

	return nil
}

// StopInterval stops the interval task with the given name.
func (mgr *Manager) StopInterval(name string) error {
	val, ok := mgr.intervals.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("interval task %s not found", name)
	}

	if it, ok := val.(*intervalTask); ok {
		it.halt()
	}

	return nil
}

// Stop signals all running tasks to terminate.
func (mgr *Manager) Stop() {
	mgr.intervals.Range(func(_, value any) bool {
		if it, ok := value.(*intervalTask); ok {
			it.halt()
		}
		return true
	})
	mgr.cancel()
}

// Wait waits for all tasks to terminate.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) launch(name string, body func()) {
	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()
}

// callWithRecover runs one iteration with panic protection. A recovered panic keeps the
// task alive.
func (mgr *Manager) callWithRecover(name string, fn Func) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = true
		}
	}()

	return fn(mgr.ctx)
}
