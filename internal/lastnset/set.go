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

package lastnset

import "sync"

// Set holds the last N comparable items emplaced into it: a thread-safe
// "have I seen this recently" membership test with automatic eviction of
// the oldest entry. Eviction only decrements or erases the evicted key's
// refcount when the lookup actually finds it, so a slot removed through
// some other path never corrupts the count.
type Set[T comparable] struct {
	mu   sync.Mutex
	ring *ringBuffer[T]
	refs map[T]uint32
}

// New creates a Set retaining at most n distinct recent items.
func New[T comparable](n int) *Set[T] {
	return &Set[T]{
		ring: newRingBuffer[T](n),
		refs: make(map[T]uint32),
	}
}

// Query reports whether elem was emplaced within the last N insertions.
func (s *Set[T]) Query(elem T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.refs[elem]
	return ok
}

// Emplace records elem as seen, evicting the oldest entry once the ring has
// filled up.
func (s *Set[T]) Emplace(elem T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ring.willEvict() {
		evicted := s.ring.nextToEvict()
		if n, ok := s.refs[evicted]; ok {
			if n <= 1 {
				delete(s.refs, evicted)
			} else {
				s.refs[evicted] = n - 1
			}
		}
	}

	s.ring.emplaceBack(elem)
	s.refs[elem]++
}

// Seen is Query+Emplace fused: it reports whether elem was already present,
// then records it either way. Used to dedupe noisy log lines.
func (s *Set[T]) Seen(elem T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, already := s.refs[elem]

	if s.ring.willEvict() {
		evicted := s.ring.nextToEvict()
		if n, ok := s.refs[evicted]; ok {
			if n <= 1 {
				delete(s.refs, evicted)
			} else {
				s.refs[evicted] = n - 1
			}
		}
	}

	s.ring.emplaceBack(elem)
	s.refs[elem]++
	return already
}
