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
	"github.com/lighthousemq/connectcore/config"
	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/topicalias"
)

// ConnackBuilder builds v3 and v5 CONNACKs from server configuration and
// the normalized CONNECT, recording the decisions (effective keep-alive,
// outbound packet cap, alias slot table) on the channel as it goes.
type ConnackBuilder struct {
	cfg   *config.Mqtt
	alias *topicalias.Limiter
}

// NewConnackBuilder returns a ConnackBuilder reading server caps from cfg
// and reserving topic-alias slots from alias.
func NewConnackBuilder(cfg *config.Mqtt, alias *topicalias.Limiter) *ConnackBuilder {
	return &ConnackBuilder{cfg: cfg, alias: alias}
}

// Error builds a failure CONNACK. It never mutates ch beyond what the
// caller already decided (the channel is about to close).
func (b *ConnackBuilder) Error(ch *channel.Channel, reasonCode code.Code, reasonString string) *packet.Connack {
	ack := &packet.Connack{Version: ch.Version, Code: reasonCode}
	if packet.IsVersion3(ch.Version) {
		return ack
	}
	ack.ReasonString = []byte(reasonString)
	return ack
}

// Success builds the success CONNACK for ch. On v3 the CONNACK is one of
// the two fixed accepted messages (session present or not); the clamped
// keep-alive and session-expiry still land on the channel, there is just
// no way to tell a 3.x client about them on the wire. On v5 the server's
// capability set, clamps and overrides are advertised explicitly.
func (b *ConnackBuilder) Success(ch *channel.Channel, nc *NormalizedConnect, sessionPresent bool) *packet.Connack {
	ack := &packet.Connack{Version: ch.Version, Code: code.Success, SessionPresent: sessionPresent}

	effectiveKeepAlive := nc.KeepAlive
	override := false
	switch {
	case nc.KeepAlive == 0 && !b.cfg.KeepAliveAllowZero:
		effectiveKeepAlive = b.cfg.MaxKeepAlive
		override = true
	case b.cfg.MaxKeepAlive > 0 && nc.KeepAlive > b.cfg.MaxKeepAlive:
		effectiveKeepAlive = b.cfg.MaxKeepAlive
		override = true
	}
	ch.ConnectKeepAlive = effectiveKeepAlive

	if packet.IsVersion3(ch.Version) {
		return ack
	}

	ack.ReceiveMaximum = b.cfg.ReceiveMax
	ack.MaximumQoS = b.cfg.MaximumQoS
	ack.RetainAvailable = b.cfg.RetainAvailable
	ack.SubscriptionIdentifierAvailable = b.cfg.SubscriptionIDAvailable
	ack.WildcardSubscriptionAvailable = b.cfg.WildcardAvailable
	ack.SharedSubscriptionAvailable = b.cfg.SharedSubAvailable
	ack.MaximumPacketSize = b.cfg.MaxPacketSize

	if b.cfg.MaxSessionExpiryInterval > 0 && nc.SessionExpiryInterval > b.cfg.MaxSessionExpiryInterval {
		clamped := b.cfg.MaxSessionExpiryInterval
		ack.SessionExpiryInterval = &clamped
	}

	if nc.ClientIDAssigned {
		ack.AssignedClientIdentifier = []byte(ch.ClientID)
	}

	if override {
		ka := effectiveKeepAlive
		ack.ServerKeepAlive = &ka
	}

	if b.cfg.TopicAliasEnabled && b.cfg.TopicAliasMax > 0 && b.alias.AliasesAvailable() {
		if b.alias.InitUsage(int(b.cfg.TopicAliasMax)) {
			tam := b.cfg.TopicAliasMax
			ack.TopicAliasMaximum = &tam
			ch.TopicAliasMapping = make([]string, tam)
		}
	}

	if nc.MaxPacketSize != nil {
		ch.MaxPacketSizeSend = *nc.MaxPacketSize
	}

	// Drained, not copied: once on the CONNACK they are no longer pending
	// on the channel.
	ack.UserProperties = ch.AuthUserProperties
	ch.AuthUserProperties = nil
	return ack
}
