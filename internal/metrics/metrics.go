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

// Package metrics exposes the Prometheus instruments the admission core
// increments: a handful of package-level counters registered once and
// incremented inline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectsAccepted counts CONNECT packets that reach the validator.
	ConnectsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connectcore_connects_accepted_total",
		Help: "Total CONNECT packets that reached the validator.",
	})

	// ConnacksByReason counts CONNACKs sent, labeled by v5 reason code.
	ConnacksByReason = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connectcore_connacks_total",
		Help: "Total CONNACKs sent, labeled by reason code.",
	}, []string{"reason"})

	// AuthVerdicts counts authenticator fan-out verdicts, labeled by
	// outcome (success, failure, continue).
	AuthVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connectcore_auth_verdicts_total",
		Help: "Total authenticator verdicts, labeled by outcome.",
	}, []string{"outcome"})

	// Takeovers counts completed session takeovers.
	Takeovers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connectcore_takeovers_total",
		Help: "Total prior-channel takeovers completed.",
	})

	// ExtensionQueueOverflow counts extension task submissions refused
	// because the task pool was at capacity. Each refused task is credited
	// as a CONTINUE verdict; this counter keeps that degradation visible.
	ExtensionQueueOverflow = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connectcore_extension_queue_overflow_total",
		Help: "Total extension task submissions refused for queue capacity and credited as CONTINUE.",
	})
)

// Register registers every instrument with the default registry. Call
// once at startup; safe to call before or after Configure.
func Register() {
	prometheus.MustRegister(ConnectsAccepted, ConnacksByReason, AuthVerdicts, Takeovers, ExtensionQueueOverflow)
}
