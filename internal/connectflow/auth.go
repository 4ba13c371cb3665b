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

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/extension"
	"github.com/lighthousemq/connectcore/internal/metrics"
)

// AuthOutcome is the reduced verdict of the authentication fan-out.
type AuthOutcome struct {
	Success      bool
	ReasonCode   code.Code
	ReasonString string
}

// AuthOrchestrator fans a CONNECT out to every registered authenticator
// provider and collapses their verdicts into one AuthOutcome: any FAILURE
// denies, otherwise at least one SUCCESS authenticates, otherwise the
// unauthenticated-connections policy decides.
type AuthOrchestrator struct {
	authenticators      extension.Authenticators
	denyUnauthenticated bool
	eventLog            *eventlog.Log
}

// NewAuthOrchestrator returns an AuthOrchestrator over authenticators,
// applying denyUnauthenticated when no provider reaches a decision.
func NewAuthOrchestrator(authenticators extension.Authenticators, denyUnauthenticated bool, eventLog *eventlog.Log) *AuthOrchestrator {
	return &AuthOrchestrator{authenticators: authenticators, denyUnauthenticated: denyUnauthenticated, eventLog: eventLog}
}

// EnhancedAuthStageName names the stage that buffers inbound traffic while
// v5 enhanced authentication is in flight.
const EnhancedAuthStageName = "enhanced-auth-buffer"

// enhancedAuthStage holds back inbound packets while an auth-method
// negotiation is unresolved, so nothing reaches the rest of the pipeline
// before the client is authenticated. AUTH exchange itself is handled by
// the providers, not here. Only touched from the channel executor.
type enhancedAuthStage struct {
	buffered []Event
}

func (s *enhancedAuthStage) Name() string { return EnhancedAuthStageName }

func (s *enhancedAuthStage) HandleEvent(_ *Pipeline, evt Event) bool {
	s.buffered = append(s.buffered, evt)
	return false
}

// flush removes the stage and replays everything it held back, in order.
func (s *enhancedAuthStage) flush(p *Pipeline) {
	p.Remove(EnhancedAuthStageName)
	buffered := s.buffered
	s.buffered = nil
	for _, evt := range buffered {
		p.Dispatch(evt)
	}
}

// Run fans CONNECT out to every registered provider and calls done with
// the reduced outcome once all have reported, always on ch.Executor, so
// done may freely mutate ch. When the CONNECT carries an auth-method, a
// buffering stage is installed on pipeline for the duration and removed
// (replaying held-back traffic) once the outcome is known.
func (o *AuthOrchestrator) Run(ctx context.Context, ch *channel.Channel, pipeline *Pipeline, nc *NormalizedConnect, done func(AuthOutcome)) {
	finish := done
	if len(nc.AuthMethod) > 0 && pipeline != nil {
		buffer := &enhancedAuthStage{}
		pipeline.AddFirst(buffer)
		finish = func(out AuthOutcome) {
			buffer.flush(pipeline)
			done(out)
		}
	}

	providers := o.authenticators.Providers()

	if len(providers) == 0 {
		if o.denyUnauthenticated {
			metrics.AuthVerdicts.WithLabelValues("no-authenticator").Inc()
			finish(AuthOutcome{ReasonCode: code.NotAuthorized, ReasonString: "no authenticator registered"})
			return
		}
		ch.AuthBypassed = true
		ch.AuthPermissions = &channel.Permissions{Default: true}
		metrics.AuthVerdicts.WithLabelValues("bypassed").Inc()
		finish(AuthOutcome{Success: true})
		return
	}

	in := extension.AuthenticatorProviderInput{
		ClientID:   string(nc.ClientID),
		Username:   string(nc.Raw.Username),
		Password:   nc.Raw.Password,
		RemoteAddr: ch.RemoteAddr,
		Version:    uint8(ch.Version),
	}

	n := len(providers)
	remaining := n
	var (
		sawSuccess   bool
		sawFailure   bool
		failure      extension.Verdict
		winningPerms *channel.Permissions
	)

	// credit only ever runs from a closure posted to ch.Executor, so the
	// closured reduction state above needs no further locking.
	credit := func(v extension.Verdict) {
		remaining--
		switch v.Kind {
		case extension.VerdictSuccess:
			sawSuccess = true
			if winningPerms == nil {
				winningPerms = v.Permissions
			}
			ch.AuthUserProperties = append(ch.AuthUserProperties, v.UserProperties...)
			metrics.AuthVerdicts.WithLabelValues("success").Inc()
		case extension.VerdictFailure:
			if !sawFailure {
				sawFailure = true
				failure = v
			}
			metrics.AuthVerdicts.WithLabelValues("failure").Inc()
		default:
			metrics.AuthVerdicts.WithLabelValues("continue").Inc()
		}

		if remaining > 0 {
			return
		}

		switch {
		case sawFailure:
			o.eventLog.AuthFailed(ch, failure.ReasonCode, failure.ReasonString)
			finish(AuthOutcome{ReasonCode: failure.ReasonCode, ReasonString: failure.ReasonString})
		case sawSuccess:
			ch.Authenticated = true
			ch.AuthPermissions = winningPerms
			finish(AuthOutcome{Success: true})
		default:
			// all CONTINUE: the unauthenticated-connections policy decides.
			if o.denyUnauthenticated {
				finish(AuthOutcome{ReasonCode: code.NotAuthorized, ReasonString: "no authenticator registered"})
				return
			}
			ch.AuthBypassed = true
			ch.AuthPermissions = &channel.Permissions{Default: true}
			finish(AuthOutcome{Success: true})
		}
	}

	for _, provider := range providers {
		provider := provider
		task := func() {
			provider.Authenticate(ctx, ch, in, func(v extension.Verdict) {
				ch.Executor.Post(func() { credit(v) })
			})
		}
		if !o.authenticators.Submit(task) {
			// Queue full is non-fatal: the refused task never ran, so its
			// effective verdict is CONTINUE and N still counts down.
			metrics.ExtensionQueueOverflow.Inc()
			ch.Executor.Post(func() { credit(extension.Verdict{Kind: extension.VerdictContinue}) })
		}
	}
}
