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
	"math"
	"time"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/xlog"
	"go.uber.org/zap"
)

// KeepAliveStage is the per-channel idle-read timeout. It owns the timer
// itself rather than depending on the channel's transport to support
// idle detection, so it works for the TCP and websocket listeners alike.
type KeepAliveStage struct {
	timer *time.Timer
}

// InstallKeepAlive installs an idle timeout on ch equal to
// ceil(keep_alive * grace_factor) seconds if ch's effective keep-alive
// is greater than zero. onIdle is invoked on the channel's executor when
// the timer fires without having been reset.
func InstallKeepAlive(ch *channel.Channel, graceFactor float64, onIdle func()) *KeepAliveStage {
	if ch.ConnectKeepAlive == 0 {
		return nil
	}
	seconds := math.Ceil(float64(ch.ConnectKeepAlive) * graceFactor)
	stage := &KeepAliveStage{}
	log := xlog.LoggerModule("connectflow").With(zap.String("client_id", ch.ClientID))
	stage.timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		ch.Executor.Post(func() {
			log.Info("keep-alive idle timeout fired, closing channel")
			onIdle()
		})
	})
	return stage
}

// Reset restarts the idle timer, called by the ordered-delivery/flow-
// control stages (out of scope here) whenever a packet is read from the
// channel.
func (s *KeepAliveStage) Reset(graceFactor float64, keepAlive uint16) {
	if s == nil || s.timer == nil {
		return
	}
	seconds := math.Ceil(float64(keepAlive) * graceFactor)
	s.timer.Reset(time.Duration(seconds) * time.Second)
}

// Stop cancels the idle timer, called on channel close.
func (s *KeepAliveStage) Stop() {
	if s == nil || s.timer == nil {
		return
	}
	s.timer.Stop()
}
