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

package connectflow

import (
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/future"
	"github.com/lighthousemq/connectcore/internal/metrics"
)

// MaxTakeoverRetries bounds the takeover retry loop. It is a safety net
// against a lost completion: the explicit await on the prior channel's
// disconnect future does the real work.
const MaxTakeoverRetries = 100

// Arbiter serializes concurrent CONNECTs and takeovers sharing a client
// identifier behind a fixed-width striped lock.
type Arbiter struct {
	registry *channel.Registry
	stripes  []sync.Mutex
	eventLog *eventlog.Log
}

// NewArbiter returns an Arbiter with 16 stripes per unit of available
// parallelism.
func NewArbiter(registry *channel.Registry, eventLog *eventlog.Log) *Arbiter {
	n := 16 * runtime.GOMAXPROCS(0)
	if n < 16 {
		n = 16
	}
	return &Arbiter{registry: registry, stripes: make([]sync.Mutex, n), eventLog: eventLog}
}

func (a *Arbiter) stripe(clientID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return &a.stripes[h.Sum32()%uint32(len(a.stripes))]
}

// Takeover returns a future that completes once any prior channel
// sharing clientID is fully gone, immediately if there was none to begin
// with.
func (a *Arbiter) Takeover(clientID string) *future.Future {
	return a.attempt(clientID, 0)
}

func (a *Arbiter) attempt(clientID string, retry int) *future.Future {
	mu := a.stripe(clientID)
	mu.Lock()

	prior, ok := a.registry.Get(clientID)
	if !ok {
		// case 1: no prior channel.
		mu.Unlock()
		return future.Completed(nil, nil)
	}

	if prior.MarkTakenOver() {
		// case 2: prior channel exists and was not yet being taken over.
		mu.Unlock()
		a.eventLog.Takeover(clientID)
		metrics.Takeovers.Inc()
		prior.Close(nil)
		return prior.DisconnectFuture
	}

	// case 3: already being taken over by another attempt. Every Channel
	// is constructed with a DisconnectFuture up front (channel.New), so a
	// prior channel that never fully connected still has one; chain on it
	// unconditionally.
	if retry >= MaxTakeoverRetries {
		// case 4: retries exhausted, force displace by waiting out
		// whichever takeover is already in flight instead of spinning
		// further.
		mu.Unlock()
		return prior.DisconnectFuture
	}

	priorDone := prior.DisconnectFuture
	mu.Unlock()

	result := future.New()
	priorDone.OnComplete(func(_ interface{}, _ error) {
		next := a.attempt(clientID, retry+1)
		next.OnComplete(func(v interface{}, err error) {
			result.Complete(v, err)
		})
	})
	return result
}
