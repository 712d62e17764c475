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

package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is a live registration with the Registry. It must be closed
// once the caller is no longer interested: there is no finalizer to reap a
// subscription that was simply dropped, so Close is mandatory bookkeeping
// rather than optional cleanup.
type Subscription struct {
	id      string
	channel string // empty if this is a pattern subscription
	pattern string // empty if this is a channel subscription
	ch      chan Message
	closed  atomic.Bool
	reg     *Registry
}

// Messages returns the channel Message deliveries arrive on. It is closed
// once the subscription is closed.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Close unregisters the subscription. A delivery racing with Close may
// still be dropped silently, same as any listener that has disappeared.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.reg.remove(s)
	close(s.ch)
}

func (s *Subscription) deliver(msg Message) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Slow consumer: drop rather than block the fan-out of every other
		// listener on this channel or pattern.
	}
}

// Registry maintains the channel → listener-set and pattern → listener-set
// mappings the connection core's push-frame routing fans messages out
// through.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Subscription
	patterns map[string]map[string]*Subscription
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		channels: make(map[string]map[string]*Subscription),
		patterns: make(map[string]map[string]*Subscription),
	}
}

const defaultBuffer = 64

// SubscribeChannel registers a new listener for exact-match deliveries on
// channel.
func (r *Registry) SubscribeChannel(channel string) *Subscription {
	return r.subscribe(r.channels, channel, "")
}

// SubscribePattern registers a new listener for glob-pattern deliveries on
// pattern.
func (r *Registry) SubscribePattern(pattern string) *Subscription {
	return r.subscribe(r.patterns, "", pattern)
}

func (r *Registry) subscribe(set map[string]map[string]*Subscription, channel, pattern string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := channel
	if pattern != "" {
		key = pattern
	}

	sub := &Subscription{
		id:      uuid.New().String(),
		channel: channel,
		pattern: pattern,
		ch:      make(chan Message, defaultBuffer),
		reg:     r,
	}

	listeners, ok := set[key]
	if !ok {
		listeners = make(map[string]*Subscription)
		set[key] = listeners
	}
	listeners[sub.id] = sub
	return sub
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.pattern != "" {
		removeFrom(r.patterns, sub.pattern, sub.id)
	} else {
		removeFrom(r.channels, sub.channel, sub.id)
	}
}

func removeFrom(set map[string]map[string]*Subscription, key, id string) {
	listeners, ok := set[key]
	if !ok {
		return
	}
	delete(listeners, id)
	if len(listeners) == 0 {
		delete(set, key)
	}
}

// Deliver fans msg out to every matching listener and reports how many
// were reached. KindMessage fans out by channel, KindPatternMessage by
// pattern; subscribe/unsubscribe acknowledgements go to the listeners of
// the channel they name, and psubscribe/punsubscribe acknowledgements to
// the listeners of the pattern they name.
func (r *Registry) Deliver(msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch msg.Kind {
	case KindMessage:
		return fanOut(r.channels[msg.Channel], msg)
	case KindPatternMessage:
		return fanOut(r.patterns[msg.Pattern], msg)
	case KindSubscribe, KindUnsubscribe:
		return fanOut(r.channels[msg.Channel], msg)
	case KindPatternSubscribe, KindPatternUnsubscribe:
		return fanOut(r.patterns[msg.Pattern], msg)
	default:
		return 0
	}
}

func fanOut(listeners map[string]*Subscription, msg Message) int {
	n := 0
	for _, sub := range listeners {
		sub.deliver(msg)
		n++
	}
	return n
}

// NumChannelSubscriptions reports how many distinct channels have at least
// one live listener, for diagnostics.
func (r *Registry) NumChannelSubscriptions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// NumPatternSubscriptions reports how many distinct patterns have at least
// one live listener, for diagnostics.
func (r *Registry) NumPatternSubscriptions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}
