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

// Package intercept implements endpoint interception: a single-hop
// from→to rewrite applied to connection targets, letting test harnesses
// and local tooling redirect a well-known endpoint to a different host
// without touching caller code.
package intercept

import "sync"

// Endpoint is a host/port pair, the unit intercepts translate.
type Endpoint struct {
	Host string
	Port int
}

// Map is a single-hop from→to rewrite table. The zero value is ready to
// use. Map is a standalone type so callers who don't want process-wide
// state can keep their own instance; Default below provides the
// global-singleton ergonomics for callers who do.
type Map struct {
	mu        sync.Mutex
	intercepts map[Endpoint]Endpoint
}

// NewMap returns an empty, ready-to-use interception table.
func NewMap() *Map {
	return &Map{intercepts: make(map[Endpoint]Endpoint)}
}

// AddIntercept registers that any translation of from should return to.
func (m *Map) AddIntercept(from, to Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intercepts == nil {
		m.intercepts = make(map[Endpoint]Endpoint)
	}
	m.intercepts[from] = to
}

// ClearIntercepts removes every registered rewrite.
func (m *Map) ClearIntercepts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intercepts = make(map[Endpoint]Endpoint)
}

// Translate returns the rewritten endpoint for target, or target unchanged
// if no rewrite is registered. Translation is single-hop, not transitive:
// translating the result of a translation again is a no-op unless a
// separate rule chains it explicitly.
func (m *Map) Translate(target Endpoint) Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to, ok := m.intercepts[target]; ok {
		return to
	}
	return target
}

// Default is the process-wide interception table, for host code that wants
// a singleton instead of threading a *Map through its call graph.
var Default = NewMap()

// AddIntercept registers from→to on the process-wide Default map.
func AddIntercept(from, to Endpoint) { Default.AddIntercept(from, to) }

// ClearIntercepts clears the process-wide Default map.
func ClearIntercepts() { Default.ClearIntercepts() }

// Translate resolves target through the process-wide Default map.
func Translate(target Endpoint) Endpoint { return Default.Translate(target) }
