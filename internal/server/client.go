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
	"bytes"
	"context"
	"io"

	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/connectflow"
	"github.com/lighthousemq/connectcore/internal/goroutine"
	"github.com/lighthousemq/connectcore/internal/packet"
	"github.com/lighthousemq/connectcore/internal/xerror"
	"github.com/lighthousemq/connectcore/internal/xlog"
	"go.uber.org/zap"
)

// client is one accepted connection: the transport plus the per-connection
// Channel/Pipeline pair the admission core runs against. The listen
// goroutine only performs blocking reads; everything that touches the
// channel's attribute bag (keepAlive included) runs as tasks posted to
// ch.Executor, preserving the executor's ownership of that state.
type client struct {
	s    *server
	conn io.ReadWriteCloser

	ch        *channel.Channel
	pipeline  *connectflow.Pipeline
	keepAlive *connectflow.KeepAliveStage // owned by ch.Executor

	log *xlog.Log
}

func newClient(s *server, conn io.ReadWriteCloser, transport, remoteAddr string) *client {
	exec := channel.NewExecutor(s.cfg.ChannelTaskQueueSize)
	ch := channel.New(exec, conn, 0)
	ch.RemoteAddr = remoteAddr
	ch.MetricsLabels = channel.MetricsLabels{Transport: transport}

	c := &client{
		s:        s,
		conn:     conn,
		ch:       ch,
		pipeline: connectflow.NewPipeline(),
		log:      xlog.LoggerModule("client"),
	}
	c.pipeline.AddLast(&connectflow.FuncStage{
		StageName: connectflow.ConnectHandlingStageName,
		Fn:        c.handleConnectEvent,
	})
	return c
}

// handleConnectEvent is the initial pipeline stage: it runs the admission
// Flow on the first CONNECT and is removed once admission succeeds.
// Events other than *packet.Connect pass through untouched.
func (c *client) handleConnectEvent(p *connectflow.Pipeline, evt connectflow.Event) bool {
	connect, ok := evt.(*packet.Connect)
	if !ok {
		return true
	}
	c.ch.Version = connect.Version

	c.s.flow.Admit(
		context.Background(),
		c.ch,
		p,
		connect,
		c,
		c.s.pollDrain,
		func(k *connectflow.KeepAliveStage) { c.keepAlive = k },
		func() {
			c.log.Info("keep-alive idle timeout, closing channel", zap.String("client_id", c.ch.ClientID))
			c.ch.Close(xerror.ErrChannelClosed)
		},
		func() { c.ch.Close(xerror.ErrChannelClosed) },
	)
	return false
}

// SendConnack implements connectflow.Sender: the CONNACK is written off
// the channel executor so a slow network write never stalls the
// executor's single worker goroutine; the caller hops the completion back
// onto the executor itself.
func (c *client) SendConnack(ack *packet.Connack, onSent func(error)) {
	goroutine.Go(func() {
		err := ack.Encode(c.conn)
		onSent(err)
	})
}

// handlePacket runs on ch.Executor with one packet's fixed header and
// already-read body. Only CONNECT is decoded here; any later packet type
// belongs to the steady-state pipeline, which this repository stops at,
// so the connection is closed rather than the packet misread.
func (c *client) handlePacket(fh *packet.FixedHeader, body []byte) {
	if c.keepAlive != nil {
		c.keepAlive.Reset(c.s.cfg.KeepAliveFactor, c.ch.ConnectKeepAlive)
	}

	if fh.PacketType != packet.CONNECT {
		c.log.Info("unsupported packet type, closing", zap.Uint8("packet_type", uint8(fh.PacketType)))
		c.ch.Close(xerror.ErrChannelClosed)
		return
	}

	// A CONNECT past the first is swallowed by the second-connect guard
	// stage; dispatching it here just exercises that stage.
	connect, err := packet.NewConnect(fh, c.ch.Version, bytes.NewReader(body))
	if err != nil {
		c.log.Warn("malformed CONNECT", zap.Error(err))
		c.ch.Close(xerror.ErrChannelClosed)
		return
	}
	c.pipeline.Dispatch(connect)
}

// listen reads packets off conn until it closes or a read error occurs.
// It only touches the transport; each packet's bytes are handed to
// handlePacket on the channel executor, and teardown likewise runs as a
// final executor task so no channel state is read from this goroutine.
func (c *client) listen() {
	defer func() {
		done := make(chan struct{})
		c.ch.Executor.Post(func() {
			c.keepAlive.Stop()
			if cid := c.ch.ClientID; cid != "" {
				c.s.registry.Remove(cid, c.ch)
			}
			if n := len(c.ch.TopicAliasMapping); n > 0 {
				c.s.aliasLimiter.Release(n)
			}
			c.ch.Close(nil)
			c.s.eventLog.ClientDisconnected(c.ch, "channel closed")
			close(done)
		})
		<-done
		c.ch.Executor.Stop()
	}()

	for {
		fh, err := packet.ReadFixedHeader(c.conn)
		if err != nil {
			return
		}
		body := make([]byte, fh.RemainLength)
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return
		}
		c.ch.Executor.Post(func() { c.handlePacket(fh, body) })
	}
}
