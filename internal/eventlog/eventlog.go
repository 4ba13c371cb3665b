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

// Package eventlog emits one structured record per admission outcome over
// internal/xlog, rather than free-text log lines scattered through the
// admission code.
package eventlog

import (
	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/xlog"
	"go.uber.org/zap"
)

// Log is the event sink the admission core reports through. A zero value
// is not usable; use New.
type Log struct {
	log *xlog.Log
}

// New returns a Log backed by a "eventlog"-tagged module logger.
func New() *Log {
	return &Log{log: xlog.LoggerModule("eventlog")}
}

// ClientConnected records a successful admission.
func (l *Log) ClientConnected(ch *channel.Channel) {
	l.log.Info("client connected",
		zap.String("client_id", ch.ClientID),
		zap.Bool("client_id_assigned", ch.ClientIDAssigned),
		zap.Uint8("version", uint8(ch.Version)),
	)
}

// ClientDisconnected records a channel's close, successful or not.
func (l *Log) ClientDisconnected(ch *channel.Channel, reason string) {
	l.log.Info("client disconnected",
		zap.String("client_id", ch.ClientID),
		zap.String("reason", reason),
	)
}

// ServerDisconnect records a fatal admission failure that produced a
// CONNACK error and closed the channel, carrying the CONNECT's
// user-properties alongside the reason.
func (l *Log) ServerDisconnect(ch *channel.Channel, reasonCode code.Code, reasonString string, userProps []packet.UserProperty) {
	props := make([]string, 0, len(userProps))
	for _, up := range userProps {
		props = append(props, string(up.Key)+"="+string(up.Value))
	}
	l.log.Info("server disconnect",
		zap.String("client_id", ch.ClientID),
		zap.String("reason_code", reasonCode.String()),
		zap.String("reason_string", reasonString),
		zap.Strings("user_properties", props),
	)
}

// AuthFailed records an authenticator FAILURE verdict that denied
// admission.
func (l *Log) AuthFailed(ch *channel.Channel, reasonCode code.Code, reasonString string) {
	l.log.Warn("auth failed",
		zap.String("client_id", ch.ClientID),
		zap.String("reason_code", reasonCode.String()),
		zap.String("reason_string", reasonString),
	)
}

// Takeover records a displaced channel.
func (l *Log) Takeover(clientID string) {
	l.log.Info("another client connected with the same client id", zap.String("client_id", clientID))
}
