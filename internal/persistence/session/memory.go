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

package session

import (
	"context"
	"sync"
)

// record is what MemoryStore keeps on file per client identifier.
type record struct {
	expiryInterval uint32
}

// MemoryStore is the process-lifetime default SessionStore. No
// durability requirement applies to the default backend, so a sync.Map
// holds the records.
type MemoryStore struct {
	sessions sync.Map // client id -> *record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Exists(_ context.Context, clientID string) (bool, error) {
	_, ok := m.sessions.Load(clientID)
	return ok, nil
}

func (m *MemoryStore) StartPersistence(_ context.Context, clientID string, sessionExists bool, effectiveExpiry uint32) (bool, error) {
	m.sessions.Store(clientID, &record{expiryInterval: effectiveExpiry})
	return sessionExists, nil
}

func (m *MemoryStore) InvalidateSharedCache(string) {}
