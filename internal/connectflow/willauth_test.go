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
	"github.com/lighthousemq/connectcore/internal/extension"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/stretchr/testify/assert"
)

type fakeAuthorizers struct {
	available bool
	result    extension.WillAuthResult
}

func (f *fakeAuthorizers) Available() bool { return f.available }
func (f *fakeAuthorizers) AuthorizeWill(_ context.Context, _ *channel.Channel, _ *packet.Connect, result func(extension.WillAuthResult)) {
	result(f.result)
}

func runWillAuth(t *testing.T, s *WillAuthStage, ch *channel.Channel, nc *NormalizedConnect) WillAuthOutcome {
	t.Helper()
	resultCh := make(chan WillAuthOutcome, 1)
	ch.Executor.Post(func() {
		s.Run(context.Background(), ch, nc, func(out WillAuthOutcome) { resultCh <- out })
	})
	select {
	case out := <-resultCh:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("will-auth stage never completed")
		return WillAuthOutcome{}
	}
}

func TestWillAuthStage_NoAuthorizersDefaultAllow(t *testing.T) {
	ch := newTestChannel(t)
	ch.AuthPermissions = &channel.Permissions{Allow: []string{"a/#"}}
	s := NewWillAuthStage(&fakeAuthorizers{available: false})

	out := runWillAuth(t, s, ch, &NormalizedConnect{WillTopic: []byte("a/b")})
	assert.True(t, out.Allowed)
}

func TestWillAuthStage_NoAuthorizersDefaultDeny(t *testing.T) {
	ch := newTestChannel(t)
	ch.AuthPermissions = &channel.Permissions{Allow: []string{"other/#"}}
	s := NewWillAuthStage(&fakeAuthorizers{available: false})

	out := runWillAuth(t, s, ch, &NormalizedConnect{WillTopic: []byte("a/b")})
	assert.False(t, out.Allowed)
	assert.Equal(t, code.NotAuthorized, out.ReasonCode)
}

func TestWillAuthStage_AckSuccess(t *testing.T) {
	ch := newTestChannel(t)
	success := code.Success
	s := NewWillAuthStage(&fakeAuthorizers{available: true, result: extension.WillAuthResult{AckReasonCode: &success}})

	out := runWillAuth(t, s, ch, &NormalizedConnect{WillTopic: []byte("a/b")})
	assert.True(t, out.Allowed)
}

func TestWillAuthStage_AckDenyPrefersDisconnectReason(t *testing.T) {
	ch := newTestChannel(t)
	ack := code.NotAuthorized
	disc := code.QuotaExceeded
	s := NewWillAuthStage(&fakeAuthorizers{available: true, result: extension.WillAuthResult{
		AckReasonCode:        &ack,
		DisconnectReasonCode: &disc,
	}})

	out := runWillAuth(t, s, ch, &NormalizedConnect{WillTopic: []byte("a/b")})
	assert.False(t, out.Allowed)
	assert.Equal(t, code.QuotaExceeded, out.ReasonCode)
}

func TestWillAuthStage_NoExplicitDecisionEmptyPermsDenies(t *testing.T) {
	ch := newTestChannel(t)
	s := NewWillAuthStage(&fakeAuthorizers{available: true, result: extension.WillAuthResult{}})

	out := runWillAuth(t, s, ch, &NormalizedConnect{WillTopic: []byte("a/b")})
	assert.False(t, out.Allowed)
	assert.Equal(t, code.NotAuthorized, out.ReasonCode)
}

func TestWillAuthStage_NoExplicitDecisionFallsBackToDefault(t *testing.T) {
	ch := newTestChannel(t)
	ch.AuthPermissions = &channel.Permissions{Allow: []string{"a/#"}}
	s := NewWillAuthStage(&fakeAuthorizers{available: true, result: extension.WillAuthResult{}})

	out := runWillAuth(t, s, ch, &NormalizedConnect{WillTopic: []byte("a/b")})
	assert.True(t, out.Allowed)
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b", "a/b", true},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/#", "a/b/c", true},
		{"a/b", "a/c", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, topicMatches(c.filter, c.topic), "%s vs %s", c.filter, c.topic)
	}
}
