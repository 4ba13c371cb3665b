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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lighthousemq/connectcore/config"
	"github.com/lighthousemq/connectcore/internal/goroutine"
	"github.com/lighthousemq/connectcore/internal/server"
	"github.com/lighthousemq/connectcore/internal/xlog"
	"github.com/lighthousemq/connectcore/internal/xtrace"
)

func main() {
	var (
		configPath     = flag.String("config", "", "path to the YAML configuration file")
		tcpAddr        = flag.String("tcp", ":1883", "TCP listen address")
		wsAddr         = flag.String("ws", "", "WebSocket listen address (disabled when empty)")
		wsPath         = flag.String("ws-path", "/mqtt", "WebSocket upgrade path")
		metricsAddr    = flag.String("metrics", "", "Prometheus /metrics listen address (disabled when empty)")
		jaegerEndpoint = flag.String("jaeger", "", "jaeger collector endpoint (disabled when empty)")
		zipkinEndpoint = flag.String("zipkin", "", "zipkin reporter endpoint (disabled when empty)")
		logFile        = flag.String("log-file", "", "rotating log file (stdout only when empty)")
		redisAddr      = flag.String("redis-addr", "localhost:6379", "redis address for the redis session store")
		redisPassword  = flag.String("redis-password", "", "redis password")
		redisDB        = flag.Int("redis-db", 0, "redis database index")
	)
	flag.Parse()

	xlog.Configure(xlog.FileOptions{Filename: *logFile}, zap.InfoLevel)
	log := xlog.LoggerModule("main")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("load config", zap.String("path", *configPath), zap.Error(err))
		}
		cfg = loaded
	}

	if *jaegerEndpoint != "" || *zipkinEndpoint != "" {
		shutdown, err := xtrace.Configure(xtrace.Options{
			JaegerEndpoint: *jaegerEndpoint,
			ZipkinEndpoint: *zipkinEndpoint,
		})
		if err != nil {
			log.Fatal("configure tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		goroutine.Go(func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics listener", zap.Error(err))
			}
		})
	}

	opts := []server.Option{
		server.WithTCPListen(*tcpAddr),
		server.WithConfig(&cfg.Mqtt),
		server.WithRedis(*redisAddr, *redisPassword, *redisDB),
	}
	if *wsAddr != "" {
		opts = append(opts, server.WithWebsocketListen(*wsAddr, *wsPath))
	}

	srv, err := server.NewServer(opts...)
	if err != nil {
		log.Fatal("server init", zap.Error(err))
	}

	goroutine.Go(func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Error("server stop", zap.Error(err))
		}
	})

	if err := srv.Run(); err != nil {
		log.Error("server exited", zap.Error(err))
	}
}
