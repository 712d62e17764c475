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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// collectors is shared by every test in this file: promauto registers on
// the default registry, so New must run exactly once per process.
var collectors = New()

func TestGauges(t *testing.T) {
	collectors.SetQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(collectors.queueDepth))

	collectors.SetBackpressureInUse(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(collectors.backpressure))

	collectors.SetQueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(collectors.queueDepth))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(collectors.reconnects)
	collectors.IncReconnects()
	assert.Equal(t, before+1, testutil.ToFloat64(collectors.reconnects))

	before = testutil.ToFloat64(collectors.protocolErrors)
	collectors.IncProtocolErrors()
	assert.Equal(t, before+1, testutil.ToFloat64(collectors.protocolErrors))

	before = testutil.ToFloat64(collectors.resilverCounter)
	collectors.IncResilvers()
	assert.Equal(t, before+1, testutil.ToFloat64(collectors.resilverCounter))
}

func TestSendPerfMarker(t *testing.T) {
	collectors.SendPerfMarker("rtt_us", 1500)
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.rtt))

	// Unknown markers are ignored rather than rejected, so the core can
	// grow new ones without breaking older hosts.
	assert.NotPanics(t, func() { collectors.SendPerfMarker("unknown_marker", 1) })
}
