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
	"testing"

	"github.com/lighthousemq/connectcore/config"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/xerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Mqtt {
	return &config.Mqtt{
		MaxClientIDLength:        8,
		MaxSessionExpiryInterval: 3600,
		MaxMessageExpiryInterval: 100,
		MaximumQoS:               1,
		RetainAvailable:          false,
		ReceiveMax:               32,
		MaxKeepAlive:             60,
	}
}

func newValidator(cfg *config.Mqtt) *Validator {
	return NewValidator(cfg, func() []byte { return []byte("assigned-id") })
}

func TestValidator_IdentifierLength(t *testing.T) {
	v := newValidator(testConfig())

	nc, err := v.Normalize(&packet.Connect{Version: packet.Version5, ClientId: []byte("12345678")})
	require.Nil(t, err)
	assert.Equal(t, "12345678", string(nc.ClientID))

	_, err = v.Normalize(&packet.Connect{Version: packet.Version5, ClientId: []byte("123456789")})
	require.NotNil(t, err)
	assert.Equal(t, code.ClientIdentifierNotValid, err.V5Reason)
	assert.ErrorIs(t, err, xerror.ErrClientIDTooLong)
}

func TestValidator_AssignsEmptyIdentifier(t *testing.T) {
	v := newValidator(testConfig())

	nc, err := v.Normalize(&packet.Connect{Version: packet.Version5, ClientId: nil})
	require.Nil(t, err)
	assert.True(t, nc.ClientIDAssigned)
	assert.Equal(t, "assigned-id", string(nc.ClientID))
}

func TestValidator_WillWildcardRejected(t *testing.T) {
	v := newValidator(testConfig())

	_, err := v.Normalize(&packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{WillFlag: true},
		WillTopic:    []byte("a/#/b"),
	})
	require.NotNil(t, err)
	assert.Equal(t, code.TopicNameInvalid, err.V5Reason)
	assert.ErrorIs(t, err, xerror.ErrWillTopicWildcard)
}

func TestValidator_WillPlusWildcardRejected(t *testing.T) {
	v := newValidator(testConfig())

	_, err := v.Normalize(&packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{WillFlag: true},
		WillTopic:    []byte("a/+/b"),
	})
	require.NotNil(t, err)
	assert.Equal(t, code.TopicNameInvalid, err.V5Reason)
}

func TestValidator_WillQoSAboveMax(t *testing.T) {
	v := newValidator(testConfig())

	_, err := v.Normalize(&packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{WillFlag: true, WillQoS: 2},
		WillTopic:    []byte("a/b"),
	})
	require.NotNil(t, err)
	assert.Equal(t, code.QoSNotSupported, err.V5Reason)
}

func TestValidator_WillRetainDisabled(t *testing.T) {
	v := newValidator(testConfig())

	_, err := v.Normalize(&packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{WillFlag: true, WillRetain: true},
		WillTopic:    []byte("a/b"),
	})
	require.NotNil(t, err)
	assert.Equal(t, code.RetainNotSupported, err.V5Reason)
}

func TestValidator_WillAccepted(t *testing.T) {
	v := newValidator(testConfig())

	nc, err := v.Normalize(&packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{WillFlag: true, WillQoS: 1},
		WillTopic:    []byte("a/b"),
	})
	require.Nil(t, err)
	assert.True(t, nc.HasWill)
	assert.Equal(t, "a/b", string(nc.WillTopic))
}

func TestValidator_MessageExpiryCapped(t *testing.T) {
	v := newValidator(testConfig())
	expiry := uint32(500)

	nc, err := v.Normalize(&packet.Connect{
		Version:        packet.Version5,
		ClientId:       []byte("c1"),
		ConnectFlags:   packet.ConnectFlags{WillFlag: true},
		WillTopic:      []byte("a/b"),
		WillProperties: &packet.WillProperties{MessageExpiryInterval: &expiry},
	})
	require.Nil(t, err)
	assert.Equal(t, uint32(100), nc.WillMessageExpiryInterval)
}

func TestValidator_DefaultFillIdempotence(t *testing.T) {
	v := newValidator(testConfig())

	ncUnset, err := v.Normalize(&packet.Connect{Version: packet.Version5, ClientId: []byte("c1")})
	require.Nil(t, err)

	sei, rm, tam, mps, rri, rpi := uint32(0), uint16(32), uint16(0), uint32(0), false, true
	ncSet, err := v.Normalize(&packet.Connect{
		Version:  packet.Version5,
		ClientId: []byte("c1"),
		Properties: &packet.ConnectProperties{
			SessionExpiryInterval:      &sei,
			ReceiveMaximum:             &rm,
			TopicAliasMaximum:          &tam,
			MaximumPacketSize:          &mps,
			RequestResponseInformation: &rri,
			RequestProblemInformation:  &rpi,
		},
	})
	require.Nil(t, err)

	assert.Equal(t, ncUnset.SessionExpiryInterval, ncSet.SessionExpiryInterval)
	assert.Equal(t, ncUnset.ReceiveMaximum, ncSet.ReceiveMaximum)
	assert.Equal(t, ncUnset.TopicAliasMaximum, ncSet.TopicAliasMaximum)
	assert.Equal(t, ncUnset.RequestResponseInformation, ncSet.RequestResponseInformation)
	assert.Equal(t, ncUnset.RequestProblemInformation, ncSet.RequestProblemInformation)
}
