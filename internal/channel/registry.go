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

import "github.com/bytedance/gopkg/collection/skipmap"

// Registry is the client identifier to live channel mapping: insertion
// occurs only after a successful takeover, removal on channel close, and
// get/insert-absent must be linearizable. skipmap.StringMap gives a
// lock-free concurrent map satisfying that without hand-rolling a
// sharded map.
type Registry struct {
	m *skipmap.StringMap
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{m: skipmap.NewString()}
}

// Get returns the live channel for clientID, if any.
func (r *Registry) Get(clientID string) (*Channel, bool) {
	v, ok := r.m.Load(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Channel), true
}

// StoreAbsentOrLoad inserts ch under clientID iff no channel is currently
// registered for it, returning the channel now on file (ch itself on a
// fresh insert, the existing one on a race) and whether ch won the
// insert. Keeps at most one live channel per client identifier.
func (r *Registry) StoreAbsentOrLoad(clientID string, ch *Channel) (actual *Channel, inserted bool) {
	v, loaded := r.m.LoadOrStore(clientID, ch)
	return v.(*Channel), !loaded
}

// Persist unconditionally installs ch as the live channel for clientID,
// called by the session installer once the takeover arbiter has
// guaranteed any prior channel is gone.
func (r *Registry) Persist(clientID string, ch *Channel) {
	r.m.Store(clientID, ch)
}

// Remove drops clientID's entry iff it still maps to ch, so a channel
// that lost a takeover race never evicts its displacer's registration.
func (r *Registry) Remove(clientID string, ch *Channel) {
	if v, ok := r.m.Load(clientID); ok && v.(*Channel) == ch {
		r.m.Delete(clientID)
	}
}

// Len returns the number of live channels currently registered.
func (r *Registry) Len() int {
	return r.m.Len()
}
