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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbiter_NoPriorChannel(t *testing.T) {
	registry := channel.NewRegistry()
	a := NewArbiter(registry, eventlog.New())

	fut := a.Takeover("c1")
	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("expected already-complete future")
	}
}

func TestArbiter_DisplacesPriorChannel(t *testing.T) {
	registry := channel.NewRegistry()
	a := NewArbiter(registry, eventlog.New())

	priorExec := channel.NewExecutor(4)
	t.Cleanup(priorExec.Stop)
	prior := channel.New(priorExec, nil, packet.Version5)
	registry.Persist("c1", prior)

	fut := a.Takeover("c1")
	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("takeover never completed")
	}
	assert.True(t, prior.TakenOver())
}

func TestArbiter_ConcurrentTakeoversLinearize(t *testing.T) {
	registry := channel.NewRegistry()
	a := NewArbiter(registry, eventlog.New())

	priorExec := channel.NewExecutor(4)
	t.Cleanup(priorExec.Stop)
	prior := channel.New(priorExec, nil, packet.Version5)
	registry.Persist("c1", prior)

	var wg sync.WaitGroup
	var completions int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fut := a.Takeover("c1")
			_, _ = fut.Wait()
			atomic.AddInt32(&completions, 1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 8, completions)
	assert.True(t, prior.TakenOver())
}

func TestArbiter_RetriesExhaustedForcesDisplace(t *testing.T) {
	registry := channel.NewRegistry()
	a := NewArbiter(registry, eventlog.New())

	priorExec := channel.NewExecutor(4)
	t.Cleanup(priorExec.Stop)
	prior := channel.New(priorExec, nil, packet.Version5)
	registry.Persist("c1", prior)
	require.True(t, prior.MarkTakenOver()) // already mid-takeover by someone else

	fut := a.attempt("c1", MaxTakeoverRetries)
	select {
	case <-fut.Done():
		t.Fatal("future should not resolve before the in-flight takeover's disconnect future does")
	case <-time.After(50 * time.Millisecond):
	}

	prior.Close(nil) // the in-flight takeover finally completes
	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("exhausted-retries path should resolve once the prior disconnect future does")
	}
}
