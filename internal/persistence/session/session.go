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

// Package session persists client sessions behind a pluggable Store
// resolved by configured Type.
package session

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownType is returned by Open for an unrecognized Type.
var ErrUnknownType = errors.New("session: unknown store type")

// Store is what the admission core needs from session persistence.
type Store interface {
	// Exists reports whether a prior session is on file for clientID.
	Exists(ctx context.Context, clientID string) (bool, error)
	// StartPersistence persists the session record (whether a prior
	// session exists, the effective clamped expiry) and returns once
	// persistence completes, reporting the session-present flag for
	// CONNACK.
	StartPersistence(ctx context.Context, clientID string, sessionExists bool, effectiveExpiry uint32) (sessionPresent bool, err error)
	// InvalidateSharedCache invalidates the shared-subscription cache for
	// clientID; subscription matching itself lives outside this
	// repository.
	InvalidateSharedCache(clientID string)
}

// Type selects a Store implementation.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// Open constructs a Store for typ. addr/password are only used by
// TypeRedis.
func Open(typ Type, addr, password string, db int) (Store, error) {
	switch typ {
	case TypeMemory, "":
		return Singleflight(NewMemoryStore()), nil
	case TypeRedis:
		return Singleflight(NewRedisStore(addr, password, db)), nil
	default:
		return nil, ErrUnknownType
	}
}

// singleflightStore wraps a Store so concurrent duplicate Exists lookups
// for the same client identifier collapse into one round-trip to the
// backing store (e.g. a retried takeover racing the session installer
// for the same id).
type singleflightStore struct {
	Store
	group singleflight.Group
}

// Singleflight wraps s with duplicate-Exists collapsing.
func Singleflight(s Store) Store {
	return &singleflightStore{Store: s}
}

func (s *singleflightStore) Exists(ctx context.Context, clientID string) (bool, error) {
	v, err, _ := s.group.Do(clientID, func() (interface{}, error) {
		return s.Store.Exists(ctx, clientID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
