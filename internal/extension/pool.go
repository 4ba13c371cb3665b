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

// Package extension implements the bounded task queue extension
// authenticators and authorizers run on, and the contracts the admission
// core fans out against.
package extension

import "github.com/panjf2000/ants/v2"

// TaskPool is the bounded, shared task-executor pool: extension tasks
// run here, not on any channel's executor, and their completions hop
// back onto the originating channel's executor.
type TaskPool struct {
	pool *ants.PoolWithFunc
}

// NewTaskPool returns a TaskPool with the given capacity. Submissions
// past capacity fail fast (ants.WithNonblocking) rather than queueing
// unboundedly or blocking the caller.
func NewTaskPool(size int) (*TaskPool, error) {
	pool, err := ants.NewPoolWithFunc(size, func(i interface{}) {
		if fn, ok := i.(func()); ok {
			fn()
		}
	}, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &TaskPool{pool: pool}, nil
}

// Submit attempts to run fn on the pool. It returns false iff the pool
// is at capacity; the caller is responsible for crediting the refused
// task as a no-op CONTINUE verdict.
func (t *TaskPool) Submit(fn func()) bool {
	return t.pool.Invoke(fn) == nil
}

// Release waits for running tasks to finish and frees the pool's workers.
func (t *TaskPool) Release() {
	t.pool.Release()
}
