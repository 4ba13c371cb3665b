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

// Package server wires the CONNECT admission core of internal/connectflow
// into TCP and WebSocket listeners, resolving every collaborator once in
// init.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lighthousemq/connectcore/config"
	"github.com/lighthousemq/connectcore/internal/channel"
	"github.com/lighthousemq/connectcore/internal/connectflow"
	"github.com/lighthousemq/connectcore/internal/eventlog"
	"github.com/lighthousemq/connectcore/internal/extension"
	"github.com/lighthousemq/connectcore/internal/extension/reference"
	"github.com/lighthousemq/connectcore/internal/goroutine"
	"github.com/lighthousemq/connectcore/internal/metrics"
	"github.com/lighthousemq/connectcore/internal/persistence/session"
	"github.com/lighthousemq/connectcore/internal/persistence/shared"
	"github.com/lighthousemq/connectcore/internal/topicalias"
	"github.com/lighthousemq/connectcore/internal/xlog"
	"github.com/lighthousemq/connectcore/internal/xtrace"
)

type (
	// Server is the lifecycle surface a binary entrypoint drives.
	Server interface {
		Run() error
		Stop(ctx context.Context) error
	}

	Option func(*Options)

	Options struct {
		tcpListen       string
		websocketListen string
		websocketPath   string
		cfg             *config.Mqtt
		redisAddr       string
		redisPassword   string
		redisDB         int
		authenticators  map[string]extension.AuthenticatorProvider
		willAuthorizer  reference.AuthorizerFunc
	}

	server struct {
		tcpListen       string
		websocketListen string
		websocketPath   string
		tcpListener     net.Listener
		httpServer      *http.Server

		cfg *config.Mqtt

		registry       *channel.Registry
		taskPool       *extension.TaskPool
		authenticators *reference.Authenticators
		authorizers    *reference.Authorizers
		sessionStore   session.Store
		sharedCache    shared.CacheInvalidator
		aliasLimiter   *topicalias.Limiter
		eventLog       *eventlog.Log
		flow           *connectflow.Flow

		log    *xlog.Log
		tracer trace.Tracer
	}
)

// WithTCPListen sets the TCP listen address ("" defaults to ":1883").
func WithTCPListen(addr string) Option { return func(o *Options) { o.tcpListen = addr } }

// WithWebsocketListen enables the WebSocket transport on addr/path,
// alongside the required TCP listener.
func WithWebsocketListen(addr, path string) Option {
	return func(o *Options) { o.websocketListen = addr; o.websocketPath = path }
}

// WithConfig supplies the validated *config.Mqtt the admission core reads
// limits and capability advertisements from.
func WithConfig(cfg *config.Mqtt) Option { return func(o *Options) { o.cfg = cfg } }

// WithRedis configures the session.Store's Redis backend; a no-op unless
// cfg.SessionStoreType is "redis".
func WithRedis(addr, password string, db int) Option {
	return func(o *Options) { o.redisAddr = addr; o.redisPassword = password; o.redisDB = db }
}

// WithAuthenticator registers one named extension.AuthenticatorProvider.
func WithAuthenticator(name string, provider extension.AuthenticatorProvider) Option {
	return func(o *Options) {
		if o.authenticators == nil {
			o.authenticators = map[string]extension.AuthenticatorProvider{}
		}
		o.authenticators[name] = provider
	}
}

// WithWillAuthorizer registers the single will-authorization callback.
func WithWillAuthorizer(fn reference.AuthorizerFunc) Option {
	return func(o *Options) { o.willAuthorizer = fn }
}

func loadServerOptions(opts ...Option) *Options {
	options := new(Options)
	for _, opt := range opts {
		opt(options)
	}
	if options.tcpListen == "" {
		options.tcpListen = ":1883"
	}
	if options.cfg == nil {
		options.cfg = &config.Default().Mqtt
	}
	return options
}

// NewServer assembles a server from opts, opening the session store and
// binding the TCP listener up front.
func NewServer(opts ...Option) (*server, error) {
	options := loadServerOptions(opts...)
	s := &server{
		tcpListen:       options.tcpListen,
		websocketListen: options.websocketListen,
		websocketPath:   options.websocketPath,
		cfg:             options.cfg,
		log:             xlog.LoggerModule("server"),
	}
	if err := s.init(options); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) init(opts *Options) error {
	cfg := s.cfg

	store, err := session.Open(session.Type(cfg.SessionStoreType), opts.redisAddr, opts.redisPassword, opts.redisDB)
	if err != nil {
		return err
	}
	s.sessionStore = store
	s.log.Info("session store", zap.String("type", cfg.SessionStoreType))

	taskPool, err := extension.NewTaskPool(cfg.ExtensionTaskQueueSize)
	if err != nil {
		return err
	}
	s.taskPool = taskPool

	s.authenticators = reference.NewAuthenticators(taskPool)
	for name, provider := range opts.authenticators {
		s.authenticators.Register(name, provider)
	}

	s.authorizers = reference.NewAuthorizers(taskPool)
	if opts.willAuthorizer != nil {
		s.authorizers.Register(opts.willAuthorizer)
	}

	s.registry = channel.NewRegistry()
	s.eventLog = eventlog.New()
	s.sharedCache = shared.NewCountingInvalidator()
	s.aliasLimiter = topicalias.New(cfg.TopicAliasGlobalBudget)
	s.tracer = xtrace.Tracer()

	validator := connectflow.NewValidator(cfg, assignClientID)
	auth := connectflow.NewAuthOrchestrator(s.authenticators, cfg.DenyUnauthenticatedConnections, s.eventLog)
	willAuth := connectflow.NewWillAuthStage(s.authorizers)
	arbiter := connectflow.NewArbiter(s.registry, s.eventLog)
	installer := connectflow.NewSessionInstaller(s.registry, s.sessionStore, s.sharedCache, s.eventLog, cfg.MaxSessionExpiryInterval)
	connack := connectflow.NewConnackBuilder(cfg, s.aliasLimiter)
	s.flow = connectflow.NewFlow(validator, auth, willAuth, arbiter, installer, connack, s.eventLog, cfg.KeepAliveFactor, s.tracer)

	ln, err := net.Listen("tcp", s.tcpListen)
	if err != nil {
		return err
	}
	s.log.Info("start tcp", zap.String("tcp", s.tcpListen))
	s.tcpListener = ln

	metrics.Register()
	return nil
}

// Run starts the TCP accept loop and, if configured, the WebSocket
// listener, blocking until either returns.
func (s *server) Run() error {
	errCh := make(chan error, 2)
	goroutine.Go(func() { errCh <- s.serveTCP() })
	if s.websocketListen != "" {
		goroutine.Go(func() { errCh <- s.serveWebsocket() })
	}
	return <-errCh
}

func (s *server) serveTCP() error {
	defer func() {
		if err := s.tcpListener.Close(); err != nil {
			s.log.Error("tcpListener close", zap.Error(err))
		}
	}()

	var tempDelay time.Duration
	for {
		accept, err := s.tcpListener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				time.Sleep(tempDelay)
				continue
			}
			return err
		}

		c := newClient(s, accept, "tcp", accept.RemoteAddr().String())
		goroutine.Go(c.listen)
	}
}

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{"mqtt", "mqttv3.1"},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *server) serveWebsocket() error {
	mux := http.NewServeMux()
	path := s.websocketPath
	if path == "" {
		path = "/mqtt"
	}
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		c := newClient(s, newWSConn(conn), "websocket", conn.RemoteAddr().String())
		goroutine.Go(c.listen)
	})
	s.httpServer = &http.Server{Addr: s.websocketListen, Handler: mux}
	s.log.Info("start websocket", zap.String("websocket", s.websocketListen), zap.String("path", path))
	return s.httpServer.ListenAndServe()
}

// Stop releases the extension task pool and shuts down both listeners.
func (s *server) Stop(ctx context.Context) error {
	s.taskPool.Release()
	if err := s.tcpListener.Close(); err != nil {
		return err
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// pollDrain runs strictly after the CONNACK write completes, when the
// client's in-flight and session queues become eligible to drain. The
// delivery pipeline behind it lives outside this repository, so the hook
// only logs.
func (s *server) pollDrain(clientID string) {
	s.log.Debug("connack written, channel eligible for poll-inflight drain", zap.String("client_id", clientID))
}

// assignClientID returns a fresh server-assigned client identifier, used
// by the Validator when a CONNECT carries an empty one.
func assignClientID() []byte {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return []byte("auto-" + hex.EncodeToString(b[:]))
}
