// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics wires the connection core's observable quantities —
// RTT, queue depth, reconnects, protocol errors — into
// github.com/prometheus/client_golang, the same namespace and
// promauto.New* registration style internal/rescue already uses for its
// panic counter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qclient"

// Collectors bundles every metric the host may wish to observe. It
// implements conn.PerfCallback directly so it can be handed to
// conn.Options.Perf without an adapter.
type Collectors struct {
	rtt             prometheus.Histogram
	queueDepth      prometheus.Gauge
	backpressure    prometheus.Gauge
	reconnects      prometheus.Counter
	protocolErrors  prometheus.Counter
	resilverCounter prometheus.Counter
}

// New registers and returns a Collectors bundle. Safe to call once per
// process; calling it twice would panic on duplicate registration, same as
// any other promauto use, so hosts should construct one Collectors at
// startup and share it.
func New() *Collectors {
	return &Collectors{
		rtt: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_rtt_microseconds",
			Help:      "Round trip time from staging a request to its callback firing, in microseconds.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 16),
		}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "request_queue_depth",
			Help:      "Number of staged requests awaiting acknowledgement.",
		}),
		backpressure: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backpressure_tokens_in_use",
			Help:      "Backpressure tokens currently reserved by in-flight requests.",
		}),
		reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Number of times the connection core re-entered Reconnection().",
		}),
		protocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Number of times ConsumeResponse returned false due to a protocol violation.",
		}),
		resilverCounter: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vhash_resilvers_total",
			Help:      "Number of VHGETALL resilvers a shared hash has triggered.",
		}),
	}
}

// SendPerfMarker implements conn.PerfCallback. The only marker the core
// currently emits is "rtt_us"; any other key is silently ignored so this
// stays forward compatible with new markers.
func (c *Collectors) SendPerfMarker(key string, value int64) {
	if key == "rtt_us" {
		c.rtt.Observe(float64(value))
	}
}

// SetQueueDepth reports the request queue's current length.
func (c *Collectors) SetQueueDepth(n int) { c.queueDepth.Set(float64(n)) }

// SetBackpressureInUse reports how many backpressure tokens are currently
// reserved.
func (c *Collectors) SetBackpressureInUse(n int) { c.backpressure.Set(float64(n)) }

// IncReconnects records one more Reconnection() transition.
func (c *Collectors) IncReconnects() { c.reconnects.Inc() }

// IncProtocolErrors records one more fatal ConsumeResponse() == false.
func (c *Collectors) IncProtocolErrors() { c.protocolErrors.Inc() }

// IncResilvers records one more vhash resilver trigger.
func (c *Collectors) IncResilvers() { c.resilverCounter.Inc() }
