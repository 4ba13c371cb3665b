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

// Package connectflow implements CONNECT admission and session
// takeover: validation, the authentication fan-out, will authorization,
// the takeover arbiter, session installation, CONNACK building, and the
// pipeline/keep-alive scaffolding they run inside.
package connectflow

import (
	"bytes"

	"github.com/lighthousemq/connectcore/config"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/xerror"
)

// NormalizedConnect is the defaulted, validated view of a CONNECT built
// by Validator.Normalize. The admission core never mutates the decoded
// packet; it works off this fresh value instead.
type NormalizedConnect struct {
	Raw *packet.Connect

	ClientID         []byte
	ClientIDAssigned bool
	CleanStart       bool
	KeepAlive        uint16

	SessionExpiryInterval      uint32
	ReceiveMaximum             uint16
	TopicAliasMaximum          uint16
	MaxPacketSize              *uint32 // nil means unlimited
	RequestResponseInformation bool
	RequestProblemInformation  bool

	HasWill                   bool
	WillTopic                 []byte
	WillMessage               []byte
	WillQoS                   byte
	WillRetain                bool
	WillMessageExpiryInterval uint32
	WillDelayInterval         uint32

	AuthMethod     []byte
	UserProperties []packet.UserProperty
}

// ValidationError is a fatal admission failure carrying the v5 CONNACK
// reason; the wire layer derives the v3 return code from it.
type ValidationError struct {
	V5Reason     code.Code
	ReasonString string
	Err          error
}

func (e *ValidationError) Error() string { return e.ReasonString }
func (e *ValidationError) Unwrap() error { return e.Err }

// Validator fills CONNECT defaults and rejects malformed identifiers and
// wills.
type Validator struct {
	cfg        *config.Mqtt
	assignedID func() []byte
}

// NewValidator returns a Validator reading limits from cfg. assignID
// generates a server-assigned client identifier when CONNECT carries an
// empty one; callers typically pass a UUID generator.
func NewValidator(cfg *config.Mqtt, assignID func() []byte) *Validator {
	return &Validator{cfg: cfg, assignedID: assignID}
}

// Normalize builds a NormalizedConnect from c. A non-nil
// *ValidationError means the CONNECT must be refused with a CONNACK
// error, a server-disconnect event, and a channel close; the caller
// (Flow) is responsible for those side effects, not Normalize.
func (v *Validator) Normalize(c *packet.Connect) (*NormalizedConnect, *ValidationError) {
	nc := &NormalizedConnect{
		Raw:                       c,
		ClientID:                  c.ClientId,
		CleanStart:                c.CleanSession,
		KeepAlive:                 c.KeepAlive,
		RequestProblemInformation: true,
		ReceiveMaximum:            v.cfg.ReceiveMax,
	}

	if v.cfg.MaxClientIDLength > 0 && len(nc.ClientID) > v.cfg.MaxClientIDLength {
		return nil, errIdentifierTooLong
	}
	if len(nc.ClientID) == 0 {
		nc.ClientID = v.assignedID()
		nc.ClientIDAssigned = true
	}

	if c.Version == packet.Version5 && c.Properties != nil {
		p := c.Properties
		if p.SessionExpiryInterval != nil {
			nc.SessionExpiryInterval = *p.SessionExpiryInterval
		}
		if p.ReceiveMaximum != nil {
			nc.ReceiveMaximum = *p.ReceiveMaximum
		}
		if p.MaximumPacketSize != nil {
			mp := *p.MaximumPacketSize
			nc.MaxPacketSize = &mp
		}
		if p.TopicAliasMaximum != nil {
			nc.TopicAliasMaximum = *p.TopicAliasMaximum
		}
		if p.RequestResponseInformation != nil {
			nc.RequestResponseInformation = *p.RequestResponseInformation
		}
		if p.RequestProblemInformation != nil {
			nc.RequestProblemInformation = *p.RequestProblemInformation
		}
		nc.AuthMethod = p.AuthMethod
		nc.UserProperties = p.UserProperties
	}

	if c.WillFlag {
		nc.HasWill = true
		nc.WillTopic = c.WillTopic
		nc.WillMessage = c.WillMessage
		nc.WillQoS = c.WillQoS
		nc.WillRetain = c.WillRetain

		if c.Version == packet.Version5 && c.WillProperties != nil {
			wp := c.WillProperties
			if wp.MessageExpiryInterval != nil {
				nc.WillMessageExpiryInterval = *wp.MessageExpiryInterval
			}
			if wp.WillDelayInterval != nil {
				nc.WillDelayInterval = *wp.WillDelayInterval
			}
		}
		if v.cfg.MaxMessageExpiryInterval > 0 && nc.WillMessageExpiryInterval > v.cfg.MaxMessageExpiryInterval {
			nc.WillMessageExpiryInterval = v.cfg.MaxMessageExpiryInterval
		}

		if bytes.ContainsAny(nc.WillTopic, "#+") {
			return nil, errWillTopicInvalid
		}
		if nc.WillQoS > v.cfg.MaximumQoS {
			return nil, errWillQoSNotSupported
		}
		if nc.WillRetain && !v.cfg.RetainAvailable {
			return nil, errWillRetainNotSupported
		}
	}

	return nc, nil
}

var (
	errIdentifierTooLong      = &ValidationError{V5Reason: code.ClientIdentifierNotValid, ReasonString: "client identifier not valid", Err: xerror.ErrClientIDTooLong}
	errWillTopicInvalid       = &ValidationError{V5Reason: code.TopicNameInvalid, ReasonString: "CONNACK_NOT_AUTHORIZED_WILL_WILDCARD", Err: xerror.ErrWillTopicWildcard}
	errWillQoSNotSupported    = &ValidationError{V5Reason: code.QoSNotSupported, ReasonString: "QoS not supported", Err: xerror.ErrWillQoSNotSupported}
	errWillRetainNotSupported = &ValidationError{V5Reason: code.RetainNotSupported, ReasonString: "retain not supported", Err: xerror.ErrWillRetainNotSupported}
)
