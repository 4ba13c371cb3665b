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

// Package goroutine launches goroutines that recover and log instead of
// taking the whole process down, the way server.go's ServeTCP spawns one
// per accepted connection.
package goroutine

import (
	"runtime/debug"

	"github.com/lighthousemq/connectcore/internal/xlog"
	"go.uber.org/zap"
)

// Go runs fn in a new goroutine, recovering any panic and logging it with
// a stack trace rather than crashing the process. The logger is resolved
// at recovery time, not package init, so xlog.Configure still applies.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				xlog.LoggerModule("goroutine").Error("recovered panic",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
