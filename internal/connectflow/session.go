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
	"context"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/persistence/session"
	"github.com/lighthousemq/connectcore/internal/persistence/shared"
)

// SessionInstaller registers the admitted channel, clamps session
// expiry, and drives session persistence. It runs only after the
// takeover arbiter's future resolves.
type SessionInstaller struct {
	registry         *channel.Registry
	store            session.Store
	sharedCache      shared.CacheInvalidator
	eventLog         *eventlog.Log
	maxSessionExpiry uint32
}

// NewSessionInstaller returns a SessionInstaller over the channel
// registry, session store, shared-subscription cache invalidator, and
// event log.
func NewSessionInstaller(registry *channel.Registry, store session.Store, sharedCache shared.CacheInvalidator, eventLog *eventlog.Log, maxSessionExpiry uint32) *SessionInstaller {
	return &SessionInstaller{registry: registry, store: store, sharedCache: sharedCache, eventLog: eventLog, maxSessionExpiry: maxSessionExpiry}
}

// Install registers ch, resolves session existence (clean start forces
// session-present to false), and starts persistence, invoking done with
// the session-present outcome once persistence completes. done always
// runs on ch.Executor.
func (si *SessionInstaller) Install(ctx context.Context, ch *channel.Channel, nc *NormalizedConnect, done func(sessionPresent bool, err error)) {
	clientID := string(nc.ClientID)
	si.registry.Persist(clientID, ch)

	effectiveExpiry := nc.SessionExpiryInterval
	if si.maxSessionExpiry > 0 && effectiveExpiry > si.maxSessionExpiry {
		effectiveExpiry = si.maxSessionExpiry
	}
	ch.SessionExpiryInterval = effectiveExpiry

	if nc.CleanStart {
		si.persist(ctx, ch, clientID, false, effectiveExpiry, func(_ bool, err error) {
			done(false, err)
		})
		return
	}

	exists, err := si.store.Exists(ctx, clientID)
	if err != nil {
		done(false, err)
		return
	}
	si.persist(ctx, ch, clientID, exists, effectiveExpiry, done)
}

func (si *SessionInstaller) persist(ctx context.Context, ch *channel.Channel, clientID string, sessionExists bool, effectiveExpiry uint32, done func(bool, error)) {
	go func() {
		present, err := si.store.StartPersistence(ctx, clientID, sessionExists, effectiveExpiry)
		ch.Executor.Post(func() {
			if err != nil {
				done(false, err)
				return
			}
			si.store.InvalidateSharedCache(clientID)
			si.sharedCache.Invalidate(clientID)
			si.eventLog.ClientConnected(ch)
			done(present, nil)
		})
	}()
}
