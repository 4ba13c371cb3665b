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

package session_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/lighthousemq/connectcore/internal/persistence/session"
	"github.com/lighthousemq/connectcore/internal/persistence/session/mock_session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		typ     session.Type
		wantErr error
	}{
		{name: "memory", typ: session.TypeMemory},
		{name: "empty defaults to memory", typ: ""},
		{name: "redis", typ: session.TypeRedis},
		{name: "unknown", typ: "etcd", wantErr: session.ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := session.Open(tt.typ, "localhost:6379", "", 0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}

func TestSingleflightDelegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	backing := mock_session.NewMockStore(ctrl)
	backing.EXPECT().Exists(gomock.Any(), "c1").Return(true, nil).Times(1)
	backing.EXPECT().StartPersistence(gomock.Any(), "c1", true, uint32(60)).Return(true, nil).Times(1)
	backing.EXPECT().InvalidateSharedCache("c1").Times(1)

	store := session.Singleflight(backing)

	exists, err := store.Exists(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, exists)

	present, err := store.StartPersistence(context.Background(), "c1", true, 60)
	require.NoError(t, err)
	assert.True(t, present)

	store.InvalidateSharedCache("c1")
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	exists, err := store.Exists(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, exists)

	present, err := store.StartPersistence(ctx, "c1", false, 60)
	require.NoError(t, err)
	assert.False(t, present, "session-present echoes whether a session existed before this connect")

	exists, err = store.Exists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, exists)
}
