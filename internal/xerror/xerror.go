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

// Package xerror holds the sentinel errors produced by the wire layer
// and the admission core.
package xerror

import "errors"

var (
	// ErrMalformed is returned by Decode when a packet violates the fixed
	// wire-format rules (reserved bits set, truncated buffer, and so on).
	ErrMalformed = errors.New("xerror: malformed packet")

	// ErrV3UnacceptableProtocolVersion is returned when a CONNECT names a
	// protocol level lighthouse does not recognize.
	ErrV3UnacceptableProtocolVersion = errors.New("xerror: unacceptable protocol version")

	// ErrV3IdentifierRejected is returned when a v3.1.1 CONNECT carries an
	// empty client identifier without clean-session set ([MQTT-3.1.3-8]).
	ErrV3IdentifierRejected = errors.New("xerror: identifier rejected")

	// ErrClientIDTooLong is returned by the admission Validator when the
	// CONNECT client identifier exceeds the configured maximum length.
	ErrClientIDTooLong = errors.New("xerror: client identifier too long")

	// ErrWillTopicWildcard is returned when a will topic contains '#' or '+'.
	ErrWillTopicWildcard = errors.New("xerror: will topic name invalid")

	// ErrWillQoSNotSupported is returned when a will QoS exceeds the server
	// maximum QoS.
	ErrWillQoSNotSupported = errors.New("xerror: will qos not supported")

	// ErrWillRetainNotSupported is returned when a will carries retain=true
	// but retained messages are disabled server-wide.
	ErrWillRetainNotSupported = errors.New("xerror: will retain not supported")

	// ErrChannelClosed is the reason the server closes a channel with when
	// admission fails, the keep-alive timeout fires, or a malformed or
	// unsupported packet arrives.
	ErrChannelClosed = errors.New("xerror: channel closed")
)
