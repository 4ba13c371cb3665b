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
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/xlog"
)

// SecondConnectGuardName names the pipeline stage installed immediately
// after first-packet acceptance to swallow any later CONNECT on the same
// channel [MQTT-3.1.0-2].
const SecondConnectGuardName = "second-connect-guard"

// ConnectHandlingStageName names the stage running admission itself,
// removed once session installation completes.
const ConnectHandlingStageName = "connect-handling"

// InstallSecondConnectGuard installs the guard at the head of pipeline.
// Pipeline mutation and Dispatch for one channel are serialized on that
// channel's executor, so installation can never interleave with a second
// CONNECT already in flight: AddFirst always wins, and no
// re-dispatch-and-retry recovery is needed here.
func InstallSecondConnectGuard(p *Pipeline) {
	if p.Has(SecondConnectGuardName) {
		return
	}
	log := xlog.LoggerModule("connectflow")
	p.AddFirst(&FuncStage{
		StageName: SecondConnectGuardName,
		Fn: func(_ *Pipeline, evt Event) bool {
			if _, ok := evt.(*packet.Connect); ok {
				log.Warn("second CONNECT on channel, discarding")
				return false
			}
			return true
		},
	})
}
