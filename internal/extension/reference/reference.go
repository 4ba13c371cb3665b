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

// Package reference ships one in-process implementation of
// extension.Authenticators and extension.Authorizers: a registry of
// user-supplied func providers, running on an extension.TaskPool. It
// exercises every authentication and will-authorization path without an
// actual plugin runtime behind it.
package reference

import (
	"context"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/extension"
	"github.com/lighthousemq/connectcore/internal/metrics"
	"github.com/lighthousemq/connectcore/internal/packet"
)

// AuthenticatorFunc adapts a plain function to extension.AuthenticatorProvider.
type AuthenticatorFunc func(ctx context.Context, ch *channel.Channel, in extension.AuthenticatorProviderInput) extension.Verdict

func (f AuthenticatorFunc) Authenticate(ctx context.Context, ch *channel.Channel, in extension.AuthenticatorProviderInput, complete func(extension.Verdict)) {
	complete(f(ctx, ch, in))
}

// Authenticators is a name -> extension.AuthenticatorProvider registry
// backed by an extension.TaskPool.
type Authenticators struct {
	pool      *extension.TaskPool
	providers map[string]extension.AuthenticatorProvider
}

// NewAuthenticators returns an empty registry backed by pool.
func NewAuthenticators(pool *extension.TaskPool) *Authenticators {
	return &Authenticators{pool: pool, providers: map[string]extension.AuthenticatorProvider{}}
}

// Register installs provider under name. Not safe to call concurrently
// with Providers/Submit; intended for startup-time registration.
func (a *Authenticators) Register(name string, provider extension.AuthenticatorProvider) {
	a.providers[name] = provider
}

func (a *Authenticators) Providers() map[string]extension.AuthenticatorProvider {
	return a.providers
}

// Submit reports false on a full pool; the caller decides how to credit
// the refused task.
func (a *Authenticators) Submit(task func()) bool {
	return a.pool.Submit(task)
}

// AuthorizerFunc adapts a plain function to extension.Authorizers for a
// single registered will-authorizer.
type AuthorizerFunc func(ctx context.Context, ch *channel.Channel, connect *packet.Connect) extension.WillAuthResult

// Authorizers wraps zero or one AuthorizerFunc, run on a TaskPool.
type Authorizers struct {
	pool Pool
	fn   AuthorizerFunc
}

// Pool is the subset of extension.TaskPool that Authorizers needs,
// satisfied by *extension.TaskPool.
type Pool interface {
	Submit(task func()) bool
}

// NewAuthorizers returns an Authorizers with no registered authorizer;
// Available reports false and AuthorizeWill must never be called.
func NewAuthorizers(pool Pool) *Authorizers {
	return &Authorizers{pool: pool}
}

// Register installs fn as the single will-authorizer.
func (a *Authorizers) Register(fn AuthorizerFunc) {
	a.fn = fn
}

func (a *Authorizers) Available() bool {
	return a.fn != nil
}

func (a *Authorizers) AuthorizeWill(ctx context.Context, ch *channel.Channel, connect *packet.Connect, result func(extension.WillAuthResult)) {
	fn := a.fn
	if !a.pool.Submit(func() {
		result(fn(ctx, ch, connect))
	}) {
		metrics.ExtensionQueueOverflow.Inc()
		result(extension.WillAuthResult{})
	}
}
