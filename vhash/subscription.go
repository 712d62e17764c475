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

package vhash

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Change is one (key, old, new) tuple delivered to a ChangeSubscription as
// a revision applies. An empty New means the field was deleted.
type Change struct {
	Key string
	Old string
	New string
}

const changeBuffer = 64

// ChangeSubscription is a live registration for change notifications on a
// Hash, following the same explicit-Close discipline as
// pubsub.Subscription: Close is mandatory bookkeeping, there is no
// finalizer to reap a subscription that was simply dropped.
type ChangeSubscription struct {
	id     string
	ch     chan Change
	closed atomic.Bool
	hash   *Hash
}

// Changes returns the channel Change deliveries arrive on. It is closed
// once the subscription is closed.
func (s *ChangeSubscription) Changes() <-chan Change {
	return s.ch
}

// Close unregisters the subscription. A delivery already in flight when
// Close races with it may still be dropped silently.
func (s *ChangeSubscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.hash.removeSubscriber(s)
	close(s.ch)
}

func (s *ChangeSubscription) deliver(c Change) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- c:
	default:
		// Slow consumer: drop rather than block every other subscriber's
		// delivery, or the apply path that produced this change.
	}
}

// Subscribe registers a new ChangeSubscription on h. If withCurrentContents
// is true, every field currently in the merged view (local, then
// transient, then durable) is synchronously delivered as a Change with an
// empty Old, before Subscribe returns.
func (h *Hash) Subscribe(withCurrentContents bool) *ChangeSubscription {
	sub := &ChangeSubscription{
		id:   uuid.New().String(),
		ch:   make(chan Change, changeBuffer),
		hash: h,
	}

	h.subMu.Lock()
	h.subs[sub.id] = sub
	h.subMu.Unlock()

	if withCurrentContents {
		for field, value := range h.GetAll() {
			sub.deliver(Change{Key: field, New: value})
		}
	}
	return sub
}

func (h *Hash) removeSubscriber(sub *ChangeSubscription) {
	h.subMu.Lock()
	delete(h.subs, sub.id)
	h.subMu.Unlock()
}

// notify fans changes out to every live subscriber. Must be called outside
// h.mu: subscriber channels are buffered and non-blocking, but holding the
// contents lock across delivery would still serialize unrelated readers
// behind a slow subscriber's channel send for no reason.
func (h *Hash) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	for _, sub := range h.subs {
		for _, c := range changes {
			sub.deliver(c)
		}
	}
}
