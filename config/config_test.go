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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestMqttValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Mqtt)
		wantErr bool
	}{
		{name: "default ok", mutate: func(*Mqtt) {}},
		{name: "qos above 2", mutate: func(m *Mqtt) { m.MaximumQoS = 3 }, wantErr: true},
		{name: "zero client id length", mutate: func(m *Mqtt) { m.MaxClientIDLength = 0 }, wantErr: true},
		{name: "bad delivery mode", mutate: func(m *Mqtt) { m.DeliveryMode = "twice" }, wantErr: true},
		{name: "grace factor below one", mutate: func(m *Mqtt) { m.KeepAliveFactor = 0.5 }, wantErr: true},
		{name: "bad store type", mutate: func(m *Mqtt) { m.SessionStoreType = "etcd" }, wantErr: true},
		{name: "inflight above queue", mutate: func(m *Mqtt) { m.MaxInflight = 10; m.MaxQueueMessages = 5 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Default().Mqtt
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt:
  max_client_id_length: 23
  max_keepalive: 120
  deny_unauthenticated_connections: true
  session_store_type: memory
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 23, c.Mqtt.MaxClientIDLength)
	assert.EqualValues(t, 120, c.Mqtt.MaxKeepAlive)
	assert.True(t, c.Mqtt.DenyUnauthenticatedConnections)
	// Unnamed options keep their defaults.
	assert.EqualValues(t, 1.5, c.Mqtt.KeepAliveFactor)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  maximum_qos: 7\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
