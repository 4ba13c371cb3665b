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

// Package code holds the CONNACK reason/return code tables for MQTT
// 3.x and 5.0, and the mapping between them used by the admission core.
package code

// Code is a v5 CONNACK reason code. v3 CONNACK carries a narrower byte
// return code, produced from a Code by ToV3.
type Code byte

const (
	Success                     Code = 0x00
	UnspecifiedError            Code = 0x80
	MalformedPacket             Code = 0x81
	ProtocolError               Code = 0x82
	ImplementationSpecificError Code = 0x83
	UnsupportedProtocolVersion  Code = 0x84
	ClientIdentifierNotValid    Code = 0x85
	BadUsernameOrPassword       Code = 0x86
	NotAuthorized               Code = 0x87
	ServerUnavailable           Code = 0x88
	ServerBusy                  Code = 0x89
	Banned                      Code = 0x8A
	BadAuthenticationMethod     Code = 0x8C
	TopicNameInvalid            Code = 0x90
	PacketTooLarge              Code = 0x95
	QuotaExceeded               Code = 0x97
	RetainNotSupported          Code = 0x9A
	QoSNotSupported             Code = 0x9B
	UseAnotherServer            Code = 0x9C
	ServerMoved                 Code = 0x9D
	ConnectionRateExceeded      Code = 0x9F
)

// V3ReturnCode mirrors the fixed byte CONNACK return codes of MQTT 3.1/3.1.1.
type V3ReturnCode byte

const (
	V3Accepted                    V3ReturnCode = 0x00
	V3UnacceptableProtocolVersion V3ReturnCode = 0x01
	V3IdentifierRejected          V3ReturnCode = 0x02
	V3ServerUnavailable           V3ReturnCode = 0x03
	V3BadUsernameOrPassword       V3ReturnCode = 0x04
	V3NotAuthorized               V3ReturnCode = 0x05
)

// ToV3 maps a v5 reason code onto the nearest v3 return code.
func (c Code) ToV3() V3ReturnCode {
	switch c {
	case Success:
		return V3Accepted
	case UnsupportedProtocolVersion:
		return V3UnacceptableProtocolVersion
	case ClientIdentifierNotValid:
		return V3IdentifierRejected
	case BadUsernameOrPassword:
		return V3BadUsernameOrPassword
	case ServerUnavailable:
		return V3ServerUnavailable
	default:
		// TopicNameInvalid, QoSNotSupported, RetainNotSupported,
		// NotAuthorized, and anything else without a dedicated v3 code all
		// surface as "not authorized" on v3.
		return V3NotAuthorized
	}
}

// String implements fmt.Stringer for log lines.
func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case UnspecifiedError:
		return "unspecified-error"
	case MalformedPacket:
		return "malformed-packet"
	case ProtocolError:
		return "protocol-error"
	case ImplementationSpecificError:
		return "implementation-specific-error"
	case UnsupportedProtocolVersion:
		return "unsupported-protocol-version"
	case ClientIdentifierNotValid:
		return "client-identifier-not-valid"
	case BadUsernameOrPassword:
		return "bad-username-or-password"
	case NotAuthorized:
		return "not-authorized"
	case ServerUnavailable:
		return "server-unavailable"
	case ServerBusy:
		return "server-busy"
	case Banned:
		return "banned"
	case BadAuthenticationMethod:
		return "bad-authentication-method"
	case TopicNameInvalid:
		return "topic-name-invalid"
	case PacketTooLarge:
		return "packet-too-large"
	case QuotaExceeded:
		return "quota-exceeded"
	case RetainNotSupported:
		return "retain-not-supported"
	case QoSNotSupported:
		return "qos-not-supported"
	case UseAnotherServer:
		return "use-another-server"
	case ServerMoved:
		return "server-moved"
	case ConnectionRateExceeded:
		return "connection-rate-exceeded"
	default:
		return "unknown"
	}
}
