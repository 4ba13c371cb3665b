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

	"github.com/lighthousemq/connectcore/internal/packet"
)

// Event is anything routed through a Pipeline: an inbound packet or an
// internal event like ConnectAccepted. Events replace direct
// handler-to-handler calls, so handlers never hold references to each
// other.
type Event interface{}

// Stage handles one Event as it passes through a Pipeline, returning true
// to let it continue to the next stage or false to stop propagation.
type Stage interface {
	Name() string
	HandleEvent(p *Pipeline, evt Event) (propagate bool)
}

// Pipeline is the ordered, named list of stages one channel's inbound
// packets and internal events are dispatched through. Mutation and
// Dispatch normally happen on the owning channel's executor; the mutex
// keeps the stage list safe for the few callers (tests, teardown) that
// touch it from outside.
type Pipeline struct {
	mu     sync.Mutex
	stages []Stage
}

// NewPipeline returns an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddFirst installs s at the head of the pipeline.
func (p *Pipeline) AddFirst(s Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append([]Stage{s}, p.stages...)
}

// AddLast installs s at the tail of the pipeline.
func (p *Pipeline) AddLast(s Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, s)
}

// Remove removes the first stage named name, if present. Idempotent: a
// second Remove of the same name is a no-op.
func (p *Pipeline) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.stages {
		if s.Name() == name {
			p.stages = append(p.stages[:i], p.stages[i+1:]...)
			return
		}
	}
}

// Has reports whether a stage named name is currently installed.
func (p *Pipeline) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stages {
		if s.Name() == name {
			return true
		}
	}
	return false
}

// Dispatch runs evt through the stage list in order, stopping as soon as
// a stage returns false.
func (p *Pipeline) Dispatch(evt Event) {
	p.mu.Lock()
	stages := make([]Stage, len(p.stages))
	copy(stages, p.stages)
	p.mu.Unlock()

	for _, s := range stages {
		if !s.HandleEvent(p, evt) {
			return
		}
	}
}

// FuncStage adapts a plain function to Stage, for small stateless stages
// like the second-CONNECT guard.
type FuncStage struct {
	StageName string
	Fn        func(p *Pipeline, evt Event) bool
}

func (f *FuncStage) Name() string { return f.StageName }
func (f *FuncStage) HandleEvent(p *Pipeline, evt Event) bool {
	return f.Fn(p, evt)
}

// ConnectAccepted re-fires an admitted CONNECT through the pipeline once
// the CONNACK write completed, so downstream stages can initialize from
// it. A distinct type from *packet.Connect so the second-CONNECT guard
// does not swallow it.
type ConnectAccepted struct {
	Connect        *packet.Connect
	SessionPresent bool
}
