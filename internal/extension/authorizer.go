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

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/code"
	"github.com/lighthousemq/connectcore/internal/packet"
)

// WillAuthResult is what the plugin authorizer service reports back for
// one will-authorization dispatch. Nil fields mean "no explicit
// decision".
type WillAuthResult struct {
	AckReasonCode        *code.Code
	DisconnectReasonCode *code.Code
}

// Authorizers dispatches will-authorization to whatever authorizer
// extensions are registered.
type Authorizers interface {
	// AuthorizeWill dispatches connect's will to the plugin authorizer
	// service, completing result once a verdict is reached.
	AuthorizeWill(ctx context.Context, ch *channel.Channel, connect *packet.Connect, result func(WillAuthResult))
	// Available reports whether any authorizer is registered; when false
	// the caller short-circuits to the default-permissions evaluator.
	Available() bool
}
