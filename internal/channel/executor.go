/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package channel

import (
	"sync"

	"github.com/lighthousemq/connectcore/internal/goroutine"
)

// Executor is the single-worker serial task queue backing one channel.
// Every handler invocation and every extension-callback continuation for
// a channel is posted here, so the channel's attribute bag is only ever
// touched from one goroutine at a time.
type Executor struct {
	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewExecutor starts the executor's worker goroutine. queueSize bounds how
// many pending tasks may be buffered before Post blocks.
func NewExecutor(queueSize int) *Executor {
	e := &Executor{
		tasks: make(chan func(), queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	goroutine.Go(e.run)
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.quit:
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn to run on the executor's single worker goroutine, in
// order relative to every other Post call. Safe to call from any
// goroutine, including from within a task already running on e. After
// Stop, Post drops fn: a continuation that outlives its channel must not
// touch channel state, and a dropped task is exactly that.
func (e *Executor) Post(fn func()) {
	select {
	case <-e.quit:
		return
	default:
	}
	select {
	case e.tasks <- fn:
	case <-e.quit:
	}
}

// Stop drains the already-queued tasks and stops the worker. Idempotent.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
	<-e.done
}
