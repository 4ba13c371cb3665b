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

// Package xtrace wires the otel TracerProvider the admission pipeline
// opens its per-CONNECT spans against.
package xtrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Name is the instrumentation name the broker's tracer is registered
// under; server.go resolves its Tracer with otel.GetTracerProvider().Tracer(Name).
const Name = "github.com/lighthousemq/connectcore"

// Options configures the exporter endpoints. A blank endpoint disables
// that exporter.
type Options struct {
	JaegerEndpoint string
	ZipkinEndpoint string
}

// Configure builds a TracerProvider exporting to jaeger and/or zipkin and
// installs it as the global provider. Call once at startup.
func Configure(o Options) (func(context.Context) error, error) {
	var opts []sdktrace.TracerProviderOption

	if o.JaegerEndpoint != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(o.JaegerEndpoint)))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if o.ZipkinEndpoint != "" {
		exp, err := zipkin.New(o.ZipkinEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the broker's registered tracer.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(Name)
}
