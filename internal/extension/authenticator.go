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

package extension

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/packet"
)

var validate = validator.New()

// AuthenticatorProviderInput is the per-connection value carried
// alongside the CONNECT and provider into each fan-out task.
// Validator-tagged; Validate checks the tags, and the orchestrator hands
// the input to providers without calling it.
type AuthenticatorProviderInput struct {
	ClientID   string `validate:"required"`
	Username   string
	Password   []byte
	RemoteAddr string `validate:"required"`
	Version    uint8
}

// Validate runs go-playground/validator struct-tag rules over in.
func (in AuthenticatorProviderInput) Validate() error {
	return validate.Struct(in)
}

// VerdictKind is the outcome a provider task reports. There is no
// timeout kind, and the orchestrator applies no deadline of its own: a
// provider that never invokes complete leaves its admission unresolved.
type VerdictKind int

const (
	VerdictContinue VerdictKind = iota
	VerdictSuccess
	VerdictFailure
)

// Verdict is what a single authenticator task reports back to the
// orchestrator's reduction.
type Verdict struct {
	Kind VerdictKind

	// Populated on VerdictSuccess.
	Permissions    *channel.Permissions
	UserProperties []packet.UserProperty

	// Populated on VerdictFailure.
	ReasonCode   code.Code
	ReasonString string
}

// AuthenticatorProvider authenticates one CONNECT. Complete must be
// invoked exactly once, synchronously or from another goroutine
// entirely; the orchestrator is responsible for hopping the call back
// onto the channel's executor.
type AuthenticatorProvider interface {
	Authenticate(ctx context.Context, ch *channel.Channel, in AuthenticatorProviderInput, complete func(Verdict))
}

// Authenticators hands the registered provider set to the orchestrator
// and accepts fan-out task submissions.
type Authenticators interface {
	// Providers returns the registered name -> provider map. An empty map
	// means no authenticator is registered.
	Providers() map[string]AuthenticatorProvider
	// Submit enqueues a task onto the bounded extension task queue,
	// returning false iff the queue is full.
	Submit(task func()) bool
}
