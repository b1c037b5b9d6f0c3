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

package periodic_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaygate/relaygate/private/periodic"
)

func task(name string, fn func(context.Context)) periodic.Task {
	return periodic.TaskFunc{TaskName: name, TaskFn: fn}
}

func TestPeriodicExecution(t *testing.T) {
	cnt := make(chan struct{})
	fn := task("test_task", func(ctx context.Context) {
		cnt <- struct{}{}
	})
	want := 5
	p := time.Duration(want) * 20 * time.Millisecond
	r := periodic.Start(fn, p, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		v := 0
		for {
			select {
			case <-cnt:
				v++
				if v == want {
					return
				}
			case <-time.After(5 * p):
				panic(fmt.Sprintf("timed out while waiting %d run", v))
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for runs")
	}
	err := runWithTimeout(r.Stop, 2*time.Second)
	assert.NoError(t, err, "r.Stop() action timed out")
}

func TestKillExitsLongRunningFunc(t *testing.T) {
	done, errChan := make(chan struct{}), make(chan error, 1)
	p := 10 * time.Millisecond
	fn := task("test_task", func(ctx context.Context) {
		close(done)
		select { // Simulate long work by blocking on the done channel.
		case <-ctx.Done():
			// Happy path r.Kill() cancels context
		case <-time.After(4 * p):
			t.Errorf("goroutine took too long to finish")
		}
		errChan <- ctx.Err()
	})
	r := periodic.Start(fn, p, time.Hour)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first run")
	}
	err := runWithTimeout(r.Kill, time.Second)
	assert.NoError(t, err)

	select {
	case err := <-errChan:
		assert.Equal(t, context.Canceled, err, "Context should have been canceled")
	case <-time.After(5 * p):
		t.Fatalf("time out while waiting on err")
	}
}

func TestTriggerNow(t *testing.T) {
	want := 10
	cnt := make(chan struct{}, 50)
	fn := task("test_task", func(ctx context.Context) {
		cnt <- struct{}{}
	})
	p := 10 * time.Millisecond
	r := periodic.Start(fn, p, 3*p)
	defer r.Stop()

	select {
	case <-cnt:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out while waiting on first run")
	}
	for i := 0; i < want; i++ {
		err := runWithTimeout(r.TriggerRun, time.Second)
		assert.NoError(t, err)
	}
}

func TestStopTwiceIsSafe(t *testing.T) {
	r := periodic.Start(task("noop", func(context.Context) {}),
		time.Hour, time.Hour)
	r.Stop()
	assert.NoError(t, runWithTimeout(r.Kill, time.Second))
}

func runWithTimeout(f func(), t time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
		return nil
	case <-time.After(t):
		return fmt.Errorf("timed out after %v", t)
	}
}
