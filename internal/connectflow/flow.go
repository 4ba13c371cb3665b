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
	"github.com/lighthousemq/connectcore/internal/metrics"
	"github.com/lighthousemq/connectcore/internal/packet"
	"go.opentelemetry.io/otel/trace"
)

// Sender is what the transport layer supplies so Flow can write a CONNACK
// and learn when the write completes. onSent may fire from any goroutine;
// Flow hops back onto the channel executor itself.
type Sender interface {
	SendConnack(ack *packet.Connack, onSent func(error))
}

// Flow wires the Validator, AuthOrchestrator, WillAuthStage, Arbiter,
// SessionInstaller and ConnackBuilder into one admission run per CONNECT:
// validate, guard against a second CONNECT, authenticate, authorize the
// will, take over any prior channel, persist the session, send CONNACK,
// hand off to the steady-state pipeline.
type Flow struct {
	validator       *Validator
	auth            *AuthOrchestrator
	willAuth        *WillAuthStage
	arbiter         *Arbiter
	installer       *SessionInstaller
	connack         *ConnackBuilder
	eventLog        *eventlog.Log
	keepAliveFactor float64
	tracer          trace.Tracer
}

// NewFlow assembles a Flow from its already-constructed collaborators.
func NewFlow(
	validator *Validator,
	auth *AuthOrchestrator,
	willAuth *WillAuthStage,
	arbiter *Arbiter,
	installer *SessionInstaller,
	connack *ConnackBuilder,
	eventLog *eventlog.Log,
	keepAliveFactor float64,
	tracer trace.Tracer,
) *Flow {
	return &Flow{
		validator:       validator,
		auth:            auth,
		willAuth:        willAuth,
		arbiter:         arbiter,
		installer:       installer,
		connack:         connack,
		eventLog:        eventLog,
		keepAliveFactor: keepAliveFactor,
		tracer:          tracer,
	}
}

// Admit runs the full CONNECT admission state machine for one inbound
// CONNECT. Must be called on ch.Executor; every continuation hops back
// onto it. onReady is invoked once the CONNACK has been written and the
// channel is ready for steady-state traffic, receiving the installed
// KeepAliveStage (nil when keep-alive is 0) so the caller's read loop can
// reset it per packet. onFatal is invoked instead when admission fails:
// the CONNACK error has been written and the channel must be closed.
func (f *Flow) Admit(ctx context.Context, ch *channel.Channel, pipeline *Pipeline, connect *packet.Connect, sender Sender, pollDrain func(clientID string), onReady func(*KeepAliveStage), onIdle func(), onFatal func()) {
	ctx, span := f.tracer.Start(ctx, "connectflow.Admit")
	ch.TraceSpan = span
	metrics.ConnectsAccepted.Inc()

	ch.ConnectMessage = connect
	ch.ClientID = string(connect.ClientId)

	nc, verr := f.validator.Normalize(connect)
	if verr != nil {
		f.fail(ch, verr.V5Reason, verr.ReasonString, sender, onFatal)
		return
	}

	ch.ClientID = string(nc.ClientID)
	ch.ClientIDAssigned = nc.ClientIDAssigned
	ch.RequestResponseInformation = nc.RequestResponseInformation
	ch.RequestProblemInformation = nc.RequestProblemInformation
	ch.ClientReceiveMaximum = nc.ReceiveMaximum
	ch.AuthMethod = nc.AuthMethod
	ch.PreventLWT = true

	InstallSecondConnectGuard(pipeline)

	f.auth.Run(ctx, ch, pipeline, nc, func(out AuthOutcome) {
		if !out.Success {
			f.fail(ch, out.ReasonCode, out.ReasonString, sender, onFatal)
			return
		}

		if !nc.HasWill {
			f.takeoverAndInstall(ctx, ch, pipeline, nc, sender, pollDrain, onReady, onIdle, onFatal)
			return
		}

		f.willAuth.Run(ctx, ch, nc, func(wo WillAuthOutcome) {
			if !wo.Allowed {
				f.fail(ch, wo.ReasonCode, wo.ReasonString, sender, onFatal)
				return
			}
			f.takeoverAndInstall(ctx, ch, pipeline, nc, sender, pollDrain, onReady, onIdle, onFatal)
		})
	})
}

func (f *Flow) takeoverAndInstall(ctx context.Context, ch *channel.Channel, pipeline *Pipeline, nc *NormalizedConnect, sender Sender, pollDrain func(string), onReady func(*KeepAliveStage), onIdle func(), onFatal func()) {
	f.arbiter.Takeover(string(nc.ClientID)).OnComplete(func(_ interface{}, _ error) {
		ch.Executor.Post(func() {
			f.installer.Install(ctx, ch, nc, func(sessionPresent bool, err error) {
				if err != nil {
					f.fail(ch, code.UnspecifiedError, "session persistence failed", sender, onFatal)
					return
				}
				f.sendSuccess(ch, pipeline, nc, sessionPresent, sender, pollDrain, onReady, onIdle)
			})
		})
	})
}

func (f *Flow) sendSuccess(ch *channel.Channel, pipeline *Pipeline, nc *NormalizedConnect, sessionPresent bool, sender Sender, pollDrain func(string), onReady func(*KeepAliveStage), onIdle func()) {
	ack := f.connack.Success(ch, nc, sessionPresent)
	metrics.ConnacksByReason.WithLabelValues(ack.Code.String()).Inc()

	sender.SendConnack(ack, func(sendErr error) {
		ch.Executor.Post(func() {
			// Two listeners observe the CONNACK write, in order: this
			// closure running at all is the sent-listener clearing the
			// "CONNACK pending" state; the poll-inflight drain comes
			// second, strictly after the bytes are flushed.
			if sendErr == nil && pollDrain != nil {
				pollDrain(ch.ClientID)
			}

			keepAlive := InstallKeepAlive(ch, f.keepAliveFactor, onIdle)

			pipeline.Remove(ConnectHandlingStageName)
			pipeline.Dispatch(&ConnectAccepted{Connect: ch.ConnectMessage, SessionPresent: sessionPresent})

			if ch.TraceSpan != nil {
				ch.TraceSpan.End()
			}
			if onReady != nil {
				onReady(keepAlive)
			}
		})
	})
}

func (f *Flow) fail(ch *channel.Channel, reasonCode code.Code, reasonString string, sender Sender, onFatal func()) {
	ack := f.connack.Error(ch, reasonCode, reasonString)
	metrics.ConnacksByReason.WithLabelValues(reasonCode.String()).Inc()
	f.eventLog.ServerDisconnect(ch, reasonCode, reasonString, connectUserProperties(ch.ConnectMessage))

	sender.SendConnack(ack, func(error) {
		ch.Executor.Post(func() {
			if ch.TraceSpan != nil {
				ch.TraceSpan.End()
			}
			onFatal()
		})
	})
}

func connectUserProperties(c *packet.Connect) []packet.UserProperty {
	if c == nil || c.Properties == nil {
		return nil
	}
	return c.Properties.UserProperties
}
