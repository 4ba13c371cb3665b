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

// Package shared holds the invalidation hook for the shared-subscription
// cache consulted after session persistence. Subscription matching lives
// outside this repository, so only the hook and a call-counting
// implementation for tests ship here.
package shared

import "sync"

// CacheInvalidator is consulted by the session installer once a session
// has been persisted, to drop any stale shared-subscription routing for
// the client identifier that just (re)connected.
type CacheInvalidator interface {
	Invalidate(clientID string)
}

// CountingInvalidator counts invalidations per client identifier, enough
// to assert "invalidated exactly once per takeover" in tests without a
// real shared-subscription cache behind it.
type CountingInvalidator struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCountingInvalidator returns an empty CountingInvalidator.
func NewCountingInvalidator() *CountingInvalidator {
	return &CountingInvalidator{counts: map[string]int{}}
}

func (c *CountingInvalidator) Invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[clientID]++
}

// Count returns how many times clientID has been invalidated.
func (c *CountingInvalidator) Count(clientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[clientID]
}
