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

package packet

import (
	"bytes"
	"io"

	"github.com/lighthousemq/connectcore/internal/code"
)

// Connack is the CONNACK control packet that closes out admission.
// v3.1/v3.1.1 only ever populates Code and SessionPresent; the rest of
// the fields are v5 CONNACK properties and are nil/zero on v3.
type Connack struct {
	Version        Version
	Code           code.Code
	SessionPresent bool

	// v5 server-capability fields, always present on a v5 CONNACK.
	ReceiveMaximum                  uint16
	MaximumQoS                      byte
	RetainAvailable                 bool
	SubscriptionIdentifierAvailable bool
	WildcardSubscriptionAvailable   bool
	SharedSubscriptionAvailable     bool
	MaximumPacketSize               uint32

	// v5 optional fields; nil/empty means "omitted" on the wire.
	SessionExpiryInterval    *uint32 // present only when the server clamped it
	AssignedClientIdentifier []byte // present iff the server assigned the id
	ServerKeepAlive          *uint16 // present only when the server overrode keep-alive
	TopicAliasMaximum        *uint16 // present only when aliasing has headroom
	ReasonString             []byte
	UserProperties           []UserProperty
}

// Encode writes the CONNACK to w, choosing the v3 two-byte body or the
// full v5 property-bearing body based on a.Version.
func (a *Connack) Encode(w io.Writer) error {
	body := &bytes.Buffer{}
	if a.SessionPresent {
		body.WriteByte(1)
	} else {
		body.WriteByte(0)
	}

	if IsVersion3(a.Version) {
		body.WriteByte(byte(a.Code.ToV3()))
	} else {
		body.WriteByte(byte(a.Code))
		if err := encodeProperties(body, a.properties()); err != nil {
			return err
		}
	}

	fh := &FixedHeader{PacketType: CONNACK, Flags: FixedHeaderFlagReserved}
	return encode(fh, body, w)
}

func (a *Connack) properties() []rawProperty {
	var out []rawProperty
	out = append(out, rawProperty{id: propReceiveMaximum, u16: a.ReceiveMaximum})
	out = append(out, rawProperty{id: propMaximumQoS, u32: uint32(a.MaximumQoS)})
	out = append(out, rawProperty{id: propRetainAvailable, b: a.RetainAvailable})
	out = append(out, rawProperty{id: propSubscriptionIDAvailable, b: a.SubscriptionIdentifierAvailable})
	out = append(out, rawProperty{id: propWildcardSubAvailable, b: a.WildcardSubscriptionAvailable})
	out = append(out, rawProperty{id: propSharedSubAvailable, b: a.SharedSubscriptionAvailable})
	out = append(out, rawProperty{id: propMaximumPacketSize, u32: a.MaximumPacketSize})
	if a.SessionExpiryInterval != nil {
		out = append(out, rawProperty{id: propSessionExpiryInterval, u32: *a.SessionExpiryInterval})
	}
	if a.AssignedClientIdentifier != nil {
		out = append(out, rawProperty{id: propAssignedClientIdentifier, bytes: a.AssignedClientIdentifier})
	}
	if a.ServerKeepAlive != nil {
		out = append(out, rawProperty{id: propServerKeepAlive, u16: *a.ServerKeepAlive})
	}
	if a.TopicAliasMaximum != nil {
		out = append(out, rawProperty{id: propTopicAliasMaximum, u16: *a.TopicAliasMaximum})
	}
	if a.ReasonString != nil {
		out = append(out, rawProperty{id: propReasonString, bytes: a.ReasonString})
	}
	for _, up := range a.UserProperties {
		out = append(out, rawProperty{id: propUserProperty, up: up})
	}
	return out
}
