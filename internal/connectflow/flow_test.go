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
	"sync"
	"testing"
	"time"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/extension"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/persistence/shared"
	"github.com/lighthousemq/connectcore/internal/topicalias"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// fakeSender captures the CONNACK a test admission produces and fires
// onSent synchronously, the way a loopback transport would.
type fakeSender struct {
	mu   sync.Mutex
	acks []*packet.Connack
}

func (s *fakeSender) SendConnack(ack *packet.Connack, onSent func(error)) {
	s.mu.Lock()
	s.acks = append(s.acks, ack)
	s.mu.Unlock()
	onSent(nil)
}

func (s *fakeSender) last() *packet.Connack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.acks) == 0 {
		return nil
	}
	return s.acks[len(s.acks)-1]
}

type noAuthenticators struct{}

func (noAuthenticators) Providers() map[string]extension.AuthenticatorProvider { return nil }
func (noAuthenticators) Submit(func()) bool                                   { return true }

type noAuthorizers struct{}

func (noAuthorizers) Available() bool { return false }
func (noAuthorizers) AuthorizeWill(context.Context, *channel.Channel, *packet.Connect, func(extension.WillAuthResult)) {
}

type testHarness struct {
	flow     *Flow
	registry *channel.Registry
	sender   *fakeSender
}

func newTestHarness(t *testing.T, authenticators extension.Authenticators, authorizers extension.Authorizers, denyUnauthenticated bool) *testHarness {
	t.Helper()
	cfg := testConfig()
	registry := channel.NewRegistry()
	log := eventlog.New()

	validator := newValidator(cfg)
	auth := NewAuthOrchestrator(authenticators, denyUnauthenticated, log)
	willAuth := NewWillAuthStage(authorizers)
	arbiter := NewArbiter(registry, log)
	installer := NewSessionInstaller(registry, &fakeSessionStore{}, shared.NewCountingInvalidator(), log, cfg.MaxSessionExpiryInterval)
	connack := NewConnackBuilder(cfg, topicalias.New(10))

	flow := NewFlow(validator, auth, willAuth, arbiter, installer, connack, log, 1.5, trace.NewNoopTracerProvider().Tracer("test"))
	return &testHarness{flow: flow, registry: registry, sender: &fakeSender{}}
}

type admitResult struct {
	ready bool
	fatal bool
}

func (h *testHarness) admit(t *testing.T, ch *channel.Channel, connect *packet.Connect) admitResult {
	t.Helper()
	pipeline := NewPipeline()
	resultCh := make(chan admitResult, 1)
	ch.Executor.Post(func() {
		h.flow.Admit(context.Background(), ch, pipeline, connect, h.sender,
			nil,
			func(*KeepAliveStage) { resultCh <- admitResult{ready: true} },
			func() {},
			func() { resultCh <- admitResult{fatal: true} },
		)
	})
	select {
	case r := <-resultCh:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("admission never completed")
		return admitResult{}
	}
}

// Clean v5 success: no authenticators registered, unauthenticated
// connections allowed.
func TestFlow_CleanV5Success(t *testing.T) {
	h := newTestHarness(t, noAuthenticators{}, noAuthorizers{}, false)
	ch := newTestChannel(t)

	res := h.admit(t, ch, &packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{CleanSession: true},
		KeepAlive:    60,
	})

	assert.True(t, res.ready)
	ack := h.sender.last()
	require.NotNil(t, ack)
	assert.Equal(t, code.Success, ack.Code)
	assert.False(t, ack.SessionPresent)
	assert.Nil(t, ack.ServerKeepAlive)

	got, ok := h.registry.Get("c1")
	require.True(t, ok)
	assert.Same(t, ch, got)
}

// Identifier longer than the configured maximum is refused.
func TestFlow_IdentifierTooLong(t *testing.T) {
	h := newTestHarness(t, noAuthenticators{}, noAuthorizers{}, false)
	ch := newTestChannel(t)

	res := h.admit(t, ch, &packet.Connect{
		Version:  packet.Version5,
		ClientId: []byte("abcdefghij"), // 10 chars, testConfig's max is 8
	})

	assert.True(t, res.fatal)
	ack := h.sender.last()
	require.NotNil(t, ack)
	assert.Equal(t, code.ClientIdentifierNotValid, ack.Code)

	_, ok := h.registry.Get("abcdefghij")
	assert.False(t, ok)
}

// Channel A live with "c1"; channel B connects with the same id and
// takes over.
func TestFlow_Takeover(t *testing.T) {
	h := newTestHarness(t, noAuthenticators{}, noAuthorizers{}, false)
	chA := newTestChannel(t)
	resA := h.admit(t, chA, &packet.Connect{Version: packet.Version5, ClientId: []byte("c1"), ConnectFlags: packet.ConnectFlags{CleanSession: true}})
	require.True(t, resA.ready)

	chB := newTestChannel(t)
	resB := h.admit(t, chB, &packet.Connect{Version: packet.Version5, ClientId: []byte("c1"), ConnectFlags: packet.ConnectFlags{CleanSession: true}})
	require.True(t, resB.ready)

	assert.True(t, chA.TakenOver())
	select {
	case <-chA.DisconnectFuture.Done():
	case <-time.After(time.Second):
		t.Fatal("A's disconnect_future never completed")
	}

	got, ok := h.registry.Get("c1")
	require.True(t, ok)
	assert.Same(t, chB, got)
}

// A live channel and two simultaneous CONNECTs sharing its identifier:
// exactly one of the newcomers owns the registry entry afterwards, and
// the original channel is displaced exactly once.
func TestFlow_ConcurrentDoubleTakeover(t *testing.T) {
	h := newTestHarness(t, noAuthenticators{}, noAuthorizers{}, false)
	chA := newTestChannel(t)
	resA := h.admit(t, chA, &packet.Connect{Version: packet.Version5, ClientId: []byte("c1"), ConnectFlags: packet.ConnectFlags{CleanSession: true}})
	require.True(t, resA.ready)

	chB := newTestChannel(t)
	chC := newTestChannel(t)

	var wg sync.WaitGroup
	for _, ch := range []*channel.Channel{chB, chC} {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.admit(t, ch, &packet.Connect{Version: packet.Version5, ClientId: []byte("c1"), ConnectFlags: packet.ConnectFlags{CleanSession: true}})
			require.True(t, res.ready)
		}()
	}
	wg.Wait()

	assert.True(t, chA.TakenOver())
	select {
	case <-chA.DisconnectFuture.Done():
	case <-time.After(time.Second):
		t.Fatal("A's disconnect future never completed")
	}

	got, ok := h.registry.Get("c1")
	require.True(t, ok)
	assert.True(t, got == chB || got == chC, "one of the two racing channels must own the registry entry")
}

// A will topic containing a wildcard is refused.
func TestFlow_WillWildcardRejected(t *testing.T) {
	h := newTestHarness(t, noAuthenticators{}, noAuthorizers{}, false)
	ch := newTestChannel(t)

	res := h.admit(t, ch, &packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{CleanSession: true, WillFlag: true},
		WillTopic:    []byte("a/#/b"),
	})

	assert.True(t, res.fatal)
	ack := h.sender.last()
	require.NotNil(t, ack)
	assert.Equal(t, code.TopicNameInvalid, ack.Code)
}

// One authenticator CONTINUEs, one FAILUREs: the FAILURE wins.
func TestFlow_AuthenticatorFailureRejectsConnect(t *testing.T) {
	providers := map[string]extension.AuthenticatorProvider{
		"continue": &verdictProvider{verdict: extension.Verdict{Kind: extension.VerdictContinue}},
		"fail": &verdictProvider{verdict: extension.Verdict{
			Kind: extension.VerdictFailure, ReasonCode: code.NotAuthorized, ReasonString: "bad creds",
		}},
	}
	h := newTestHarness(t, &fakeAuthenticators{providers: providers}, noAuthorizers{}, false)
	ch := newTestChannel(t)

	res := h.admit(t, ch, &packet.Connect{
		Version:      packet.Version5,
		ClientId:     []byte("c1"),
		ConnectFlags: packet.ConnectFlags{CleanSession: true},
	})

	assert.True(t, res.fatal)
	ack := h.sender.last()
	require.NotNil(t, ack)
	assert.Equal(t, code.NotAuthorized, ack.Code)
	assert.Equal(t, "bad creds", string(ack.ReasonString))

	_, ok := h.registry.Get("c1")
	assert.False(t, ok, "a channel that failed authentication must never be registered")
}
