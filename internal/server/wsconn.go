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

package server

import (
	"io"

	"github.com/gorilla/websocket"
)

// wsConn adapts a message-oriented *websocket.Conn to the byte-stream
// io.ReadWriteCloser the admission core's packet decoder expects, so
// client.listen can treat a WebSocket connection exactly like a plain TCP
// one.
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{Conn: c}
}

// Read satisfies io.Reader by pulling bytes out of successive WebSocket
// binary messages, one NextReader call per exhausted message.
func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			_, r, err := w.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write satisfies io.Writer by sending p as one binary WebSocket message.
func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	return w.Conn.Close()
}
