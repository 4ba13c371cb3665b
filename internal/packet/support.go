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

	"github.com/lighthousemq/connectcore/internal/binary"
	"github.com/lighthousemq/connectcore/internal/xerror"
)

// Version is the MQTT protocol level carried in CONNECT.
type Version byte

const (
	Version31  Version = 3
	Version311 Version = 4
	Version5   Version = 5
)

var version2protocolName = map[Version][]byte{
	Version31:  []byte("MQIsdp"),
	Version311: []byte("MQTT"),
	Version5:   []byte("MQTT"),
}

// IsVersion3 reports whether v is a 3.x protocol level.
func IsVersion3(v Version) bool {
	return v == Version31 || v == Version311
}

// PacketType identifies the kind of a fixed header.
type PacketType byte

const (
	_ PacketType = iota
	CONNECT
	CONNACK
)

// FixedHeaderFlagReserved is the only legal flags nibble for CONNECT.
const FixedHeaderFlagReserved byte = 0x00

// FixedHeader is the 1-4 byte MQTT fixed header shared by every packet type.
type FixedHeader struct {
	PacketType   PacketType
	Flags        byte
	RemainLength uint32
}

func readUint16(buf *bytes.Buffer) (uint16, error) {
	v, err := binary.ReadUint16(buf)
	if err != nil {
		return 0, xerror.ErrMalformed
	}
	return v, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	_ = binary.WriteUint16(buf, v)
}

// UTF8DecodedStrings reads a length-prefixed UTF-8 string. A buffer too
// short for the length prefix or for the string itself is reported as
// xerror.ErrMalformed whichever value required has.
func UTF8DecodedStrings(required bool, buf *bytes.Buffer) ([]byte, error) {
	n, err := readUint16(buf)
	if err != nil {
		if required {
			return nil, xerror.ErrMalformed
		}
		return nil, err
	}
	b := buf.Next(int(n))
	if len(b) != int(n) {
		return nil, xerror.ErrMalformed
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// UTF8EncodedStrings returns b as a 2-byte length prefix followed by its
// bytes, along with the total encoded length.
func UTF8EncodedStrings(b []byte) ([]byte, int, error) {
	out := bytes.NewBuffer(make([]byte, 0, len(b)+2))
	if err := binary.WriteString(out, b); err != nil {
		return nil, 0, err
	}
	return out.Bytes(), out.Len(), nil
}

// encode writes fh's fixed header (packet type/flags byte plus a variable
// byte integer remaining length) followed by body to w.
func encode(fh *FixedHeader, body *bytes.Buffer, w io.Writer) error {
	first := byte(fh.PacketType)<<4 | (fh.Flags & 0x0F)
	if _, err := w.Write([]byte{first}); err != nil {
		return err
	}
	if err := writeVarInt(w, uint32(body.Len())); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func writeVarInt(w io.Writer, v uint32) error {
	return binary.WriteVarInt(w, v)
}

func readVarInt(r io.Reader) (uint32, error) {
	v, err := binary.ReadVarInt(r)
	if err == io.ErrUnexpectedEOF {
		return 0, xerror.ErrMalformed
	}
	return v, err
}

// ReadFixedHeader reads the fixed header of the next packet from r.
func ReadFixedHeader(r io.Reader) (*FixedHeader, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	remain, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	return &FixedHeader{
		PacketType:   PacketType(b[0] >> 4),
		Flags:        b[0] & 0x0F,
		RemainLength: remain,
	}, nil
}
