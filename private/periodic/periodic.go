// Copyright 2024 RelayGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package periodic provides a mechanism to run tasks on a fixed schedule.
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/relaygate/relaygate/pkg/log"
)

// Task is a runnable task.
type Task interface {
	// Run executes the task once. The context is canceled when the runner is
	// killed or the per-run timeout expires.
	Run(context.Context)
	// Name returns the task name for logging.
	Name() string
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	TaskFn   func(context.Context)
}

func (t TaskFunc) Run(ctx context.Context) { t.TaskFn(ctx) }
func (t TaskFunc) Name() string            { return t.TaskName }

// Runner runs a task periodically.
type Runner struct {
	task         Task
	ticker       *time.Ticker
	timeout      time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	loopFinished chan struct{}
	ctx          context.Context
	cancelF      context.CancelFunc
	trigger      chan struct{}
}

// Start runs the task periodically with the given period. Each run is bounded
// by timeout. The first run happens after one period, use TriggerRun to run
// earlier.
func Start(task Task, period, timeout time.Duration) *Runner {
	ctx, cancelF := context.WithCancel(context.Background())
	ctx = log.CtxWith(ctx, log.New("task", task.Name()))
	r := &Runner{
		task:         task,
		ticker:       time.NewTicker(period),
		timeout:      timeout,
		stop:         make(chan struct{}),
		loopFinished: make(chan struct{}),
		ctx:          ctx,
		cancelF:      cancelF,
		trigger:      make(chan struct{}),
	}
	go func() {
		defer log.HandlePanic()
		r.runLoop()
	}()
	return r
}

// Stop stops the periodic execution and waits for an ongoing run to finish.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.loopFinished
}

// Kill is like Stop, but it also cancels the context of an ongoing run.
func (r *Runner) Kill() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	r.cancelF()
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.loopFinished
}

// TriggerRun triggers an immediate run of the task. It blocks until the run is
// scheduled or the runner is stopped.
func (r *Runner) TriggerRun() {
	select {
	case <-r.stop:
	case r.trigger <- struct{}{}:
	}
}

func (r *Runner) runLoop() {
	defer close(r.loopFinished)
	defer r.cancelF()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			r.onTick()
		case <-r.trigger:
			r.onTick()
		}
	}
}

func (r *Runner) onTick() {
	select {
	case <-r.ctx.Done():
	default:
		ctx, cancelF := context.WithTimeout(r.ctx, r.timeout)
		defer cancelF()
		r.task.Run(ctx)
	}
}
