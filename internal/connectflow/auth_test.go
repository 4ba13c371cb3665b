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
	"testing"
	"time"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/extension"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthenticators is a hand-written test double implementing
// extension.Authenticators; providers run synchronously via Submit.
type fakeAuthenticators struct {
	providers map[string]extension.AuthenticatorProvider
	full      bool
}

func (f *fakeAuthenticators) Providers() map[string]extension.AuthenticatorProvider {
	return f.providers
}

func (f *fakeAuthenticators) Submit(task func()) bool {
	if f.full {
		return false
	}
	task()
	return true
}

type verdictProvider struct {
	verdict extension.Verdict
	async   bool
}

func (p *verdictProvider) Authenticate(_ context.Context, _ *channel.Channel, _ extension.AuthenticatorProviderInput, complete func(extension.Verdict)) {
	if p.async {
		go complete(p.verdict)
		return
	}
	complete(p.verdict)
}

func newTestChannel(t *testing.T) *channel.Channel {
	t.Helper()
	exec := channel.NewExecutor(8)
	t.Cleanup(exec.Stop)
	return channel.New(exec, nil, packet.Version5)
}

// runAuth drives AuthOrchestrator.Run to completion and returns its
// outcome, blocking on a channel since done fires from ch.Executor.
func runAuth(t *testing.T, o *AuthOrchestrator, ch *channel.Channel, nc *NormalizedConnect) AuthOutcome {
	t.Helper()
	resultCh := make(chan AuthOutcome, 1)
	ch.Executor.Post(func() {
		o.Run(context.Background(), ch, NewPipeline(), nc, func(out AuthOutcome) {
			resultCh <- out
		})
	})
	select {
	case out := <-resultCh:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("auth orchestrator never completed")
		return AuthOutcome{}
	}
}

func TestAuthOrchestrator_NoProvidersDenyUnauthenticated(t *testing.T) {
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: map[string]extension.AuthenticatorProvider{}}, true, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	assert.False(t, out.Success)
	assert.Equal(t, code.NotAuthorized, out.ReasonCode)
}

func TestAuthOrchestrator_NoProvidersBypass(t *testing.T) {
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: map[string]extension.AuthenticatorProvider{}}, false, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	assert.True(t, out.Success)
	assert.True(t, ch.AuthBypassed)
	require.NotNil(t, ch.AuthPermissions)
	assert.True(t, ch.AuthPermissions.Default)
}

func TestAuthOrchestrator_FailureWins(t *testing.T) {
	providers := map[string]extension.AuthenticatorProvider{
		"continue": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictContinue}},
		"fail": &verdictProvider{verdict: extension.Verdict{
			Kind: extension.VerdictFailure, ReasonCode: code.NotAuthorized, ReasonString: "bad creds",
		}},
	}
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers}, false, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	assert.False(t, out.Success)
	assert.Equal(t, code.NotAuthorized, out.ReasonCode)
	assert.Equal(t, "bad creds", out.ReasonString)
}

func TestAuthOrchestrator_SuccessAndNoFailure(t *testing.T) {
	perms := &channel.Permissions{Allow: []string{"a/#"}}
	providers := map[string]extension.AuthenticatorProvider{
		"continue": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictContinue}},
		"success": &verdictProvider{verdict: extension.Verdict{
			Kind: extension.VerdictSuccess, Permissions: perms,
		}},
	}
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers}, true, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	assert.True(t, out.Success)
	assert.True(t, ch.Authenticated)
	assert.Same(t, perms, ch.AuthPermissions)
}

func TestAuthOrchestrator_AllContinueFallsBackToDenyPolicy(t *testing.T) {
	providers := map[string]extension.AuthenticatorProvider{
		"c1": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictContinue}},
		"c2": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictContinue}},
	}
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers}, true, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	assert.False(t, out.Success)
	assert.Equal(t, code.NotAuthorized, out.ReasonCode)
}

func TestAuthOrchestrator_QueueFullCreditedAsContinue(t *testing.T) {
	providers := map[string]extension.AuthenticatorProvider{
		"c1": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictSuccess, Permissions: &channel.Permissions{Default: true}}},
	}
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers, full: true}, false, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	// Queue full means the provider never ran: credited as CONTINUE,
	// falls back to deny-unauthenticated=false => bypass.
	assert.True(t, out.Success)
	assert.True(t, ch.AuthBypassed)
}

// captureProvider records the input it was handed before abstaining.
type captureProvider struct {
	in extension.AuthenticatorProviderInput
}

func (p *captureProvider) Authenticate(_ context.Context, _ *channel.Channel, in extension.AuthenticatorProviderInput, complete func(extension.Verdict)) {
	p.in = in
	complete(extension.Verdict{Kind: extension.VerdictContinue})
}

func TestAuthOrchestrator_ProviderInputCarriesConnectionDetails(t *testing.T) {
	provider := &captureProvider{}
	providers := map[string]extension.AuthenticatorProvider{"capture": provider}
	ch := newTestChannel(t)
	ch.RemoteAddr = "192.0.2.17:51034"
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers}, false, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{
		ClientID: []byte("c1"),
		Raw:      &packet.Connect{Username: []byte("alice"), Password: []byte("secret")},
	})
	assert.True(t, out.Success)
	assert.Equal(t, "192.0.2.17:51034", provider.in.RemoteAddr)
	assert.Equal(t, "c1", provider.in.ClientID)
	assert.Equal(t, "alice", provider.in.Username)
	assert.Equal(t, []byte("secret"), provider.in.Password)
	assert.EqualValues(t, packet.Version5, provider.in.Version)
}

// manualProvider hands its completion function out to the test so the
// verdict can be delivered at a moment of the test's choosing.
type manualProvider struct {
	completions chan func(extension.Verdict)
}

func (p *manualProvider) Authenticate(_ context.Context, _ *channel.Channel, _ extension.AuthenticatorProviderInput, complete func(extension.Verdict)) {
	p.completions <- complete
}

func TestAuthOrchestrator_AuthMethodBuffersUntilResolved(t *testing.T) {
	provider := &manualProvider{completions: make(chan func(extension.Verdict), 1)}
	providers := map[string]extension.AuthenticatorProvider{"enhanced": provider}
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers}, false, eventlog.New())

	pipeline := NewPipeline()
	var reached []Event
	pipeline.AddLast(&FuncStage{StageName: "downstream", Fn: func(_ *Pipeline, evt Event) bool {
		reached = append(reached, evt)
		return true
	}})

	resultCh := make(chan AuthOutcome, 1)
	ch.Executor.Post(func() {
		o.Run(context.Background(), ch, pipeline, &NormalizedConnect{
			ClientID:   []byte("c1"),
			AuthMethod: []byte("SCRAM-SHA-1"),
			Raw:        &packet.Connect{},
		}, func(out AuthOutcome) { resultCh <- out })
	})

	complete := <-provider.completions

	// Traffic arriving while authentication is unresolved is held back.
	dispatched := make(chan struct{})
	ch.Executor.Post(func() {
		pipeline.Dispatch("in-flight-packet")
		close(dispatched)
	})
	<-dispatched
	assert.Empty(t, reached, "events must be buffered while enhanced auth is in flight")

	complete(extension.Verdict{Kind: extension.VerdictSuccess, Permissions: &channel.Permissions{Default: true}})

	select {
	case out := <-resultCh:
		assert.True(t, out.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("auth orchestrator never completed")
	}

	// Flushing happens on the executor before done fires; synchronize on
	// one more executor turn before asserting.
	flushed := make(chan struct{})
	ch.Executor.Post(func() { close(flushed) })
	<-flushed
	assert.Equal(t, []Event{"in-flight-packet"}, reached)
	assert.False(t, pipeline.Has(EnhancedAuthStageName))
}

func TestAuthOrchestrator_AsyncCompletionOutOfOrder(t *testing.T) {
	providers := map[string]extension.AuthenticatorProvider{
		"slow": &verdictProvider{async: true, verdict: extension.Verdict{Kind: extension.VerdictContinue}},
		"fast": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictSuccess, Permissions: &channel.Permissions{Default: true}}},
	}
	ch := newTestChannel(t)
	o := NewAuthOrchestrator(&fakeAuthenticators{providers: providers}, false, eventlog.New())

	out := runAuth(t, o, ch, &NormalizedConnect{ClientID: []byte("c1"), Raw: &packet.Connect{}})
	assert.True(t, out.Success)
}
