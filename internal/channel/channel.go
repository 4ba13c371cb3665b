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

// Package channel holds the per-connection attribute bag and the
// client-id to channel registry.
package channel

import (
	"io"
	"sync/atomic"

	"github.com/lighthousemq/connectcore/internal/future"
	"github.com/lighthousemq/connectcore/internal/packet"
	"go.opentelemetry.io/otel/trace"
)

// Permissions is the outcome of authentication/authorization: the set of
// topic permissions an authenticated client holds. The extension runtime
// is the real producer; the broker only carries whatever it returns.
type Permissions struct {
	Default bool // true for the built-in default-permissions evaluator
	// Deny patterns are checked before Allow; nil/empty Allow with
	// Default=false denies everything.
	Allow []string
	Deny  []string
}

// Channel is the per-connection attribute bag, created on CONNECT and
// destroyed on disconnect. All fields except TakenOver are owned by
// Executor and must only be mutated from tasks posted to it; TakenOver
// is set from the takeover arbiter, which may run on a different
// channel's goroutine entirely, so it alone is atomic.
type Channel struct {
	Executor *Executor
	Conn     io.Closer

	ClientID         string
	ClientIDAssigned bool
	Version          packet.Version

	// RemoteAddr is the peer's network address, captured at accept time
	// and immutable afterwards.
	RemoteAddr string

	takenOver int32 // atomic; see doc comment above

	// DisconnectFuture fires exactly once, after this channel's close
	// completes.
	DisconnectFuture *future.Future

	Authenticated      bool
	AuthBypassed       bool
	AuthMethod         []byte
	AuthPermissions    *Permissions
	AuthUserProperties []packet.UserProperty

	// PreventLWT is true from admission until will-authorization passes.
	PreventLWT bool

	ClientReceiveMaximum  uint16
	MaxPacketSizeSend     uint32
	ConnectKeepAlive      uint16
	SessionExpiryInterval uint32
	TopicAliasMapping     []string

	RequestResponseInformation bool
	RequestProblemInformation  bool

	ConnectMessage *packet.Connect

	// TraceSpan covers this CONNECT's admission and ends once the CONNACK
	// is written or the channel fails fatally.
	TraceSpan     trace.Span
	MetricsLabels MetricsLabels
}

// MetricsLabels tags the Prometheus counters this channel's admission
// contributes to.
type MetricsLabels struct {
	ProtocolVersion string
	Transport       string // "tcp" or "websocket"
}

// New returns a freshly admitted Channel. clientID may be empty until the
// Validator assigns one.
func New(exec *Executor, conn io.Closer, version packet.Version) *Channel {
	return &Channel{
		Executor:                  exec,
		Conn:                      conn,
		Version:                   version,
		DisconnectFuture:          future.New(),
		PreventLWT:                true,
		RequestProblemInformation: true,
	}
}

// TakenOver reports whether this channel is being displaced by a newer
// connection sharing its client identifier.
func (c *Channel) TakenOver() bool {
	return atomic.LoadInt32(&c.takenOver) != 0
}

// MarkTakenOver sets TakenOver, returning false if it was already set (so
// the Takeover Arbiter closes each displaced channel exactly once).
func (c *Channel) MarkTakenOver() bool {
	return atomic.CompareAndSwapInt32(&c.takenOver, 0, 1)
}

// Close closes the underlying connection and completes DisconnectFuture.
// Idempotent: a channel already closed completes its future again is a
// no-op since Future.Complete only fires once.
func (c *Channel) Close(reason error) {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
	c.DisconnectFuture.Complete(nil, reason)
}
