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
	"context"
	"fmt"
	"strings"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/extension"
)

// WillAuthOutcome is the will-authorization verdict for one CONNECT.
type WillAuthOutcome struct {
	Allowed      bool
	ReasonCode   code.Code
	ReasonString string
}

// WillAuthStage decides whether the CONNECT's last will may be published
// on the client's behalf. Only run when the CONNECT carries a will and
// authentication has already succeeded.
type WillAuthStage struct {
	authorizers extension.Authorizers
	// DefaultBehaviorOverridden disables the deny-when-permissions-empty
	// rule applied when an authorizer reaches no explicit decision.
	DefaultBehaviorOverridden bool
}

// NewWillAuthStage returns a WillAuthStage dispatching to authorizers
// when any are registered.
func NewWillAuthStage(authorizers extension.Authorizers) *WillAuthStage {
	return &WillAuthStage{authorizers: authorizers}
}

// Run evaluates will-authorization for ch/nc, invoking done with the
// outcome on ch.Executor.
func (s *WillAuthStage) Run(ctx context.Context, ch *channel.Channel, nc *NormalizedConnect, done func(WillAuthOutcome)) {
	if !s.authorizers.Available() {
		done(s.evaluateDefault(ch, nc))
		return
	}

	s.authorizers.AuthorizeWill(ctx, ch, nc.Raw, func(res extension.WillAuthResult) {
		ch.Executor.Post(func() {
			done(s.reduce(ch, nc, res))
		})
	})
}

func (s *WillAuthStage) reduce(ch *channel.Channel, nc *NormalizedConnect, res extension.WillAuthResult) WillAuthOutcome {
	if res.AckReasonCode != nil {
		if *res.AckReasonCode == code.Success {
			return WillAuthOutcome{Allowed: true}
		}
		// ack denies: the disconnect reason code, when present, takes
		// precedence over the ack reason code.
		reason := *res.AckReasonCode
		if res.DisconnectReasonCode != nil {
			reason = *res.DisconnectReasonCode
		}
		return WillAuthOutcome{ReasonCode: reason, ReasonString: "not authorized"}
	}

	if res.DisconnectReasonCode != nil {
		return WillAuthOutcome{ReasonCode: *res.DisconnectReasonCode, ReasonString: "not authorized"}
	}

	// no explicit decision.
	if permissionsEmpty(ch.AuthPermissions) && !s.DefaultBehaviorOverridden {
		return WillAuthOutcome{ReasonCode: code.NotAuthorized, ReasonString: "not authorized"}
	}
	return s.evaluateDefault(ch, nc)
}

func (s *WillAuthStage) evaluateDefault(ch *channel.Channel, nc *NormalizedConnect) WillAuthOutcome {
	if evaluatePermissions(ch.AuthPermissions, nc) {
		return WillAuthOutcome{Allowed: true}
	}
	return WillAuthOutcome{
		ReasonCode:   code.NotAuthorized,
		ReasonString: fmt.Sprintf("will publish to %q qos=%d retain=%v not authorized", nc.WillTopic, nc.WillQoS, nc.WillRetain),
	}
}

func permissionsEmpty(p *channel.Permissions) bool {
	return p == nil || (!p.Default && len(p.Allow) == 0 && len(p.Deny) == 0)
}

// evaluatePermissions is the default-permissions evaluator: Deny
// patterns checked first, then Allow patterns; Default=true (the
// unauthenticated bypass) allows everything.
func evaluatePermissions(p *channel.Permissions, nc *NormalizedConnect) bool {
	if p == nil {
		return false
	}
	if p.Default {
		return true
	}
	topic := string(nc.WillTopic)
	for _, pattern := range p.Deny {
		if topicMatches(pattern, topic) {
			return false
		}
	}
	for _, pattern := range p.Allow {
		if topicMatches(pattern, topic) {
			return true
		}
	}
	return false
}

// topicMatches is a minimal MQTT topic-filter matcher (single-level '+',
// multi-level '#') for permission patterns: just enough to evaluate one
// will topic against one permission list.
func topicMatches(filter, topic string) bool {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")
	for i, fp := range fParts {
		if fp == "#" {
			return true
		}
		if i >= len(tParts) {
			return false
		}
		if fp != "+" && fp != tParts[i] {
			return false
		}
	}
	return len(fParts) == len(tParts)
}
