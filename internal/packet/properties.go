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

	"github.com/lighthousemq/connectcore/internal/xerror"
)

// rawProperty is one decoded MQTT v5 property: an identifier plus its
// already-decoded value, tagged by which field of it is populated.
type rawProperty struct {
	id    byte
	u16   uint16
	u32   uint32
	b     bool
	bytes []byte
	up    UserProperty
}

// decodeProperties reads a v5 property list: a variable byte integer
// length, followed by that many bytes of identifier+value pairs.
func decodeProperties(buf *bytes.Buffer) ([]rawProperty, error) {
	length, err := readVarInt(buf)
	if err != nil {
		return nil, xerror.ErrMalformed
	}
	if length == 0 {
		return nil, nil
	}
	section := buf.Next(int(length))
	if len(section) != int(length) {
		return nil, xerror.ErrMalformed
	}
	r := bytes.NewReader(section)

	var props []rawProperty
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, xerror.ErrMalformed
		}
		switch id {
		case propSessionExpiryInterval, propMaximumPacketSize, propWillDelayInterval, propMessageExpiryInterval:
			v, err := readUint32From(r)
			if err != nil {
				return nil, xerror.ErrMalformed
			}
			props = append(props, rawProperty{id: id, u32: v})
		case propReceiveMaximum, propTopicAliasMaximum:
			v, err := readUint16From(r)
			if err != nil {
				return nil, xerror.ErrMalformed
			}
			props = append(props, rawProperty{id: id, u16: v})
		case propRequestResponseInformation, propRequestProblemInformation:
			v, err := r.ReadByte()
			if err != nil {
				return nil, xerror.ErrMalformed
			}
			props = append(props, rawProperty{id: id, b: v != 0})
		case propAuthMethod, propAuthData, propContentType, propResponseTopic, propCorrelationData:
			v, err := readStringFrom(r)
			if err != nil {
				return nil, xerror.ErrMalformed
			}
			props = append(props, rawProperty{id: id, bytes: v})
		case propUserProperty:
			key, err := readStringFrom(r)
			if err != nil {
				return nil, xerror.ErrMalformed
			}
			val, err := readStringFrom(r)
			if err != nil {
				return nil, xerror.ErrMalformed
			}
			props = append(props, rawProperty{id: id, up: UserProperty{Key: key, Value: val}})
		default:
			return nil, xerror.ErrMalformed
		}
	}
	return props, nil
}

func readUint32From(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func readUint16From(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func readStringFrom(r io.Reader) ([]byte, error) {
	n, err := readUint16From(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// connectPropertiesOf assembles a ConnectProperties from the raw list
// decodeProperties produced. Unknown properties were already rejected
// during decode, so this is a straight field-by-field copy.
func connectPropertiesOf(raw []rawProperty) *ConnectProperties {
	cp := &ConnectProperties{}
	for _, p := range raw {
		p := p
		switch p.id {
		case propSessionExpiryInterval:
			cp.SessionExpiryInterval = &p.u32
		case propReceiveMaximum:
			cp.ReceiveMaximum = &p.u16
		case propMaximumPacketSize:
			cp.MaximumPacketSize = &p.u32
		case propTopicAliasMaximum:
			cp.TopicAliasMaximum = &p.u16
		case propRequestResponseInformation:
			cp.RequestResponseInformation = &p.b
		case propRequestProblemInformation:
			cp.RequestProblemInformation = &p.b
		case propAuthMethod:
			cp.AuthMethod = p.bytes
		case propAuthData:
			cp.AuthData = p.bytes
		case propUserProperty:
			cp.UserProperties = append(cp.UserProperties, p.up)
		}
	}
	return cp
}

// willPropertiesOf assembles a WillProperties from decodeProperties' raw list.
func willPropertiesOf(raw []rawProperty) *WillProperties {
	wp := &WillProperties{}
	for _, p := range raw {
		p := p
		switch p.id {
		case propWillDelayInterval:
			wp.WillDelayInterval = &p.u32
		case propMessageExpiryInterval:
			wp.MessageExpiryInterval = &p.u32
		case propContentType:
			wp.ContentType = p.bytes
		case propResponseTopic:
			wp.ResponseTopic = p.bytes
		case propCorrelationData:
			wp.CorrelationData = p.bytes
		case propUserProperty:
			wp.UserProperties = append(wp.UserProperties, p.up)
		}
	}
	return wp
}

// encodePropertiesOf flattens a ConnectProperties back into a raw list for
// encoding. nil pointer fields are omitted, matching "unset" on the wire.
func encodePropertiesOf(cp *ConnectProperties) []rawProperty {
	if cp == nil {
		return nil
	}
	var out []rawProperty
	if cp.SessionExpiryInterval != nil {
		out = append(out, rawProperty{id: propSessionExpiryInterval, u32: *cp.SessionExpiryInterval})
	}
	if cp.ReceiveMaximum != nil {
		out = append(out, rawProperty{id: propReceiveMaximum, u16: *cp.ReceiveMaximum})
	}
	if cp.MaximumPacketSize != nil {
		out = append(out, rawProperty{id: propMaximumPacketSize, u32: *cp.MaximumPacketSize})
	}
	if cp.TopicAliasMaximum != nil {
		out = append(out, rawProperty{id: propTopicAliasMaximum, u16: *cp.TopicAliasMaximum})
	}
	if cp.RequestResponseInformation != nil {
		out = append(out, rawProperty{id: propRequestResponseInformation, b: *cp.RequestResponseInformation})
	}
	if cp.RequestProblemInformation != nil {
		out = append(out, rawProperty{id: propRequestProblemInformation, b: *cp.RequestProblemInformation})
	}
	if cp.AuthMethod != nil {
		out = append(out, rawProperty{id: propAuthMethod, bytes: cp.AuthMethod})
	}
	if cp.AuthData != nil {
		out = append(out, rawProperty{id: propAuthData, bytes: cp.AuthData})
	}
	for _, up := range cp.UserProperties {
		out = append(out, rawProperty{id: propUserProperty, up: up})
	}
	return out
}

// encodeWillPropertiesOf flattens a WillProperties back into a raw list.
func encodeWillPropertiesOf(wp *WillProperties) []rawProperty {
	if wp == nil {
		return nil
	}
	var out []rawProperty
	if wp.WillDelayInterval != nil {
		out = append(out, rawProperty{id: propWillDelayInterval, u32: *wp.WillDelayInterval})
	}
	if wp.MessageExpiryInterval != nil {
		out = append(out, rawProperty{id: propMessageExpiryInterval, u32: *wp.MessageExpiryInterval})
	}
	if wp.ContentType != nil {
		out = append(out, rawProperty{id: propContentType, bytes: wp.ContentType})
	}
	if wp.ResponseTopic != nil {
		out = append(out, rawProperty{id: propResponseTopic, bytes: wp.ResponseTopic})
	}
	if wp.CorrelationData != nil {
		out = append(out, rawProperty{id: propCorrelationData, bytes: wp.CorrelationData})
	}
	for _, up := range wp.UserProperties {
		out = append(out, rawProperty{id: propUserProperty, up: up})
	}
	return out
}

// encodeProperties writes a raw property list as a variable byte integer
// length followed by identifier+value pairs, appending it to buf.
func encodeProperties(buf *bytes.Buffer, props []rawProperty) error {
	body := &bytes.Buffer{}
	for _, p := range props {
		body.WriteByte(p.id)
		switch p.id {
		case propSessionExpiryInterval, propMaximumPacketSize, propWillDelayInterval, propMessageExpiryInterval:
			writeUint32(body, p.u32)
		case propReceiveMaximum, propTopicAliasMaximum:
			writeUint16(body, p.u16)
		case propRequestResponseInformation, propRequestProblemInformation,
			propRetainAvailable, propWildcardSubAvailable, propSubscriptionIDAvailable, propSharedSubAvailable:
			if p.b {
				body.WriteByte(1)
			} else {
				body.WriteByte(0)
			}
		case propMaximumQoS:
			body.WriteByte(byte(p.u32))
		case propServerKeepAlive:
			writeUint16(body, p.u16)
		case propAuthMethod, propAuthData, propContentType, propResponseTopic, propCorrelationData,
			propAssignedClientIdentifier, propReasonString:
			b, _, err := UTF8EncodedStrings(p.bytes)
			if err != nil {
				return err
			}
			body.Write(b)
		case propUserProperty:
			k, _, err := UTF8EncodedStrings(p.up.Key)
			if err != nil {
				return err
			}
			v, _, err := UTF8EncodedStrings(p.up.Value)
			if err != nil {
				return err
			}
			body.Write(k)
			body.Write(v)
		}
	}
	if err := writeVarInt(buf, uint32(body.Len())); err != nil {
		return err
	}
	_, err := buf.Write(body.Bytes())
	return err
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
