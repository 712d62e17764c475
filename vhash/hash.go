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
	"sync"

	"github.com/packetd/qclient/logger"
	"github.com/packetd/qclient/pubsub"
	"github.com/packetd/qclient/resp"
)

// Metrics is the optional counter surface a Hash reports to; every
// triggered resilver bumps it once, whether the VHGETALL ultimately
// succeeds or not.
type Metrics interface {
	IncResilvers()
}

// Options configures a new Hash.
type Options struct {
	// WarmStart, if non-empty, is a snapshot produced by EncodeSnapshot
	// that Get may serve before the first real VHGETALL resilver
	// completes. It is always superseded by that resilver; a Hash never
	// treats it as authoritative.
	WarmStart []byte

	// Metrics may be nil.
	Metrics Metrics
}

// Hash is the replicated, eventually-consistent local copy of a named
// server-side hash: a durable layer kept in sync with the server via
// revisions, plus transient and local overlays that never round-trip
// through the durable replication path. Reads consult local, then
// transient, then durable, in that order.
type Hash struct {
	conn    Conn
	key     string
	metrics Metrics

	mu               sync.RWMutex
	revision         uint64
	contents         map[string]string // durable
	localOverlay     map[string]string
	transientOverlay map[string]string

	subMu sync.RWMutex
	subs  map[string]*ChangeSubscription

	channelSub *pubsub.Subscription
	closeOnce  sync.Once
	done       chan struct{}
}

func channelFor(key string) string {
	return "__vhash@" + key
}

// New constructs a Hash for key, subscribes to its __vhash@<key> revision
// channel, and asynchronously issues the initial VHGETALL resilver. The
// hash is usable immediately; until the resilver lands, Get serves the
// WarmStart snapshot if one was given and otherwise misses.
func New(c Conn, key string, opts Options) *Hash {
	h := &Hash{
		conn:             c,
		key:              key,
		metrics:          opts.Metrics,
		contents:         make(map[string]string),
		localOverlay:     make(map[string]string),
		transientOverlay: make(map[string]string),
		subs:             make(map[string]*ChangeSubscription),
		done:             make(chan struct{}),
	}

	if len(opts.WarmStart) > 0 {
		if snap, err := DecodeSnapshot(opts.WarmStart); err == nil && snap.Contents != nil {
			h.contents = snap.Contents
		} else if err != nil {
			logger.Warnf("vhash: key %s: could not decode warm-start snapshot: %v", key, err)
		}
	}

	h.channelSub = c.Subscribe(channelFor(key))
	go h.consumeChannel()

	c.OnReconnect(h.triggerResilver)
	h.triggerResilver()

	return h
}

// Close unsubscribes from the revision channel and stops this Hash's
// background goroutine.
func (h *Hash) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.channelSub.Close()
	})
}

func (h *Hash) consumeChannel() {
	for {
		select {
		case msg, ok := <-h.channelSub.Messages():
			if !ok {
				return
			}
			if !msg.IsDelivery() {
				continue
			}
			h.handleIncomingPayload(msg.Payload)
		case <-h.done:
			return
		}
	}
}

// handleIncomingPayload decodes a __vhash@<key> delivery's payload (itself
// RESP-encoded bytes) back into a reply tree, then applies it as a
// revision update.
func (h *Hash) handleIncomingPayload(payload string) {
	dec := resp.NewDecoder()
	dec.Feed([]byte(payload))
	reply, status, err := dec.Pull()
	if status != resp.StatusOk {
		logger.Warnf("vhash: key %s: could not parse incoming revision update: %v", h.key, err)
		return
	}

	revision, updates, ok := decodeRevisionMap(reply)
	if !ok {
		logger.Warnf("vhash: key %s: malformed revision update payload", h.key)
		return
	}
	h.applyUpdate(revision, updates)
}

// applyUpdate routes one published revision three ways: stale revisions
// are discarded, the immediate-next revision is applied in place, and a
// gap triggers a fresh resilver without applying anything from this
// message.
func (h *Hash) applyUpdate(revision uint64, updates map[string]string) {
	h.mu.Lock()

	if revision <= h.revision {
		h.mu.Unlock()
		return
	}

	if revision >= h.revision+2 {
		h.mu.Unlock()
		logger.Warnf("vhash: key %s: revision gap (have %d, received %d), triggering resilver", h.key, h.revision, revision)
		h.triggerResilver()
		return
	}

	changes := make([]Change, 0, len(updates))
	for field, value := range updates {
		old := h.contents[field]
		if value == "" {
			delete(h.contents, field)
		} else {
			h.contents[field] = value
		}
		if old != value {
			changes = append(changes, Change{Key: field, Old: old, New: value})
		}
	}
	h.revision = revision
	h.mu.Unlock()

	h.notify(changes)
}

// triggerResilver asynchronously issues VHGETALL and applies whatever
// comes back via resilver, once it arrives. Safe to call repeatedly; every
// call races its own reply independently, and resilver() always accepts
// the newest one it sees since a full resilver never needs a contiguous
// revision to apply.
func (h *Hash) triggerResilver() {
	if h.metrics != nil {
		h.metrics.IncResilvers()
	}
	replyCh := h.conn.Do(resp.EncodeStrings("VHGETALL", h.key))
	go func() {
		reply, ok := <-replyCh
		if !ok || reply == nil {
			return
		}
		revision, contents, ok := decodeRevisionMap(reply)
		if !ok {
			logger.Warnf("vhash: key %s: could not parse VHGETALL reply: %s", h.key, reply.String())
			return
		}
		h.resilver(revision, contents)
	}()
}

// resilver replaces the durable contents wholesale; unlike applyUpdate it
// accepts any revision, since a full snapshot needs no contiguity.
func (h *Hash) resilver(revision uint64, newContents map[string]string) {
	h.mu.Lock()

	changes := make([]Change, 0, len(newContents))
	for field, newVal := range newContents {
		if oldVal, existed := h.contents[field]; !existed || oldVal != newVal {
			changes = append(changes, Change{Key: field, Old: h.contents[field], New: newVal})
		}
	}
	for field, oldVal := range h.contents {
		if _, stillThere := newContents[field]; !stillThere {
			changes = append(changes, Change{Key: field, Old: oldVal})
		}
	}

	h.revision = revision
	h.contents = newContents
	h.mu.Unlock()

	h.notify(changes)
}

// Get returns field's value, consulting the local overlay first, then the
// transient overlay, then the durable contents.
func (h *Hash) Get(field string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if v, ok := h.localOverlay[field]; ok {
		return v, true
	}
	if v, ok := h.transientOverlay[field]; ok {
		return v, true
	}
	v, ok := h.contents[field]
	return v, ok
}

// GetLocal returns field's value from the local-only overlay, ignoring the
// transient and durable layers entirely.
func (h *Hash) GetLocal(field string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.localOverlay[field]
	return v, ok
}

// GetAll returns a merged snapshot of every field visible through Get,
// local overlay entries taking precedence over transient, which take
// precedence over durable.
func (h *Hash) GetAll() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.contents)+len(h.transientOverlay)+len(h.localOverlay))
	for k, v := range h.contents {
		out[k] = v
	}
	for k, v := range h.transientOverlay {
		out[k] = v
	}
	for k, v := range h.localOverlay {
		out[k] = v
	}
	return out
}

// Keys returns every field name visible across all three layers.
func (h *Hash) Keys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{}, len(h.contents)+len(h.transientOverlay)+len(h.localOverlay))
	for k := range h.contents {
		seen[k] = struct{}{}
	}
	for k := range h.transientOverlay {
		seen[k] = struct{}{}
	}
	for k := range h.localOverlay {
		seen[k] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}

// CurrentRevision reports the durable layer's current_version.
func (h *Hash) CurrentRevision() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.revision
}

// Set applies batch across its three layers. Local entries mutate the
// local overlay immediately and synchronously notify subscribers; transient
// entries are broadcast without waiting for acknowledgement; durable
// entries are wrapped in MULTI/.../EXEC and sent as a single request, whose
// reply is delivered on the returned channel. If batch has no durable
// entries, the returned channel immediately yields nil: there is no EXEC
// reply to wait for.
func (h *Hash) Set(batch *UpdateBatch) <-chan *resp.Reply {
	if len(batch.local) > 0 {
		h.applyLocal(batch.local)
	}
	if len(batch.transient) > 0 {
		h.publishTransient(batch.transient)
	}
	if len(batch.durable) == 0 {
		done := make(chan *resp.Reply, 1)
		done <- nil
		return done
	}
	return h.conn.Do(h.durableRequest(batch.durable))
}

func (h *Hash) applyLocal(fields map[string]string) {
	h.mu.Lock()
	changes := make([]Change, 0, len(fields))
	for field, value := range fields {
		old := h.localOverlay[field]
		if value == "" {
			delete(h.localOverlay, field)
		} else {
			h.localOverlay[field] = value
		}
		if old != value {
			changes = append(changes, Change{Key: field, Old: old, New: value})
		}
	}
	h.mu.Unlock()

	h.notify(changes)
}

// publishTransient broadcasts fields via a VHPUBLISH per field, fused into
// one request. Transient writes are fire-and-forget: the caller of Set is
// never handed this request's reply, only the durable EXEC's.
func (h *Hash) publishTransient(fields map[string]string) {
	commands := make([]resp.EncodedRequest, 0, len(fields))
	for field, value := range fields {
		if value == "" {
			commands = append(commands, resp.EncodeStrings("VHPUBLISH", h.key, field))
		} else {
			commands = append(commands, resp.EncodeStrings("VHPUBLISH", h.key, field, value))
		}
	}
	h.conn.Do(resp.Fuse(commands))
}

func (h *Hash) durableRequest(fields map[string]string) resp.EncodedRequest {
	commands := make([]resp.EncodedRequest, 0, len(fields))
	for field, value := range fields {
		if value == "" {
			commands = append(commands, resp.EncodeStrings("VHDEL", h.key, field))
		} else {
			commands = append(commands, resp.EncodeStrings("VHSET", h.key, field, value))
		}
	}
	return resp.SurroundWithTransaction(commands)
}

// decodeRevisionMap parses the "[revision, [field, value, ...]]" shape
// shared by VHGETALL replies and __vhash@<key> update payloads.
func decodeRevisionMap(reply *resp.Reply) (uint64, map[string]string, bool) {
	if reply == nil || reply.Kind != resp.KindArray || reply.Nil || len(reply.Array) != 2 {
		return 0, nil, false
	}

	revReply := reply.Array[0]
	if revReply == nil || revReply.Kind != resp.KindInteger || revReply.Integer < 0 {
		return 0, nil, false
	}

	list := reply.Array[1]
	if list == nil || list.Kind != resp.KindArray || list.Nil || len(list.Array)%2 != 0 {
		return 0, nil, false
	}

	contents := make(map[string]string, len(list.Array)/2)
	for i := 0; i < len(list.Array); i += 2 {
		field, ok1 := bulkOrStatusString(list.Array[i])
		value, ok2 := bulkOrStatusString(list.Array[i+1])
		if !ok1 || !ok2 {
			return 0, nil, false
		}
		contents[field] = value
	}
	return uint64(revReply.Integer), contents, true
}

func bulkOrStatusString(r *resp.Reply) (string, bool) {
	if r == nil || r.Nil {
		return "", false
	}
	if r.Kind != resp.KindBulk && r.Kind != resp.KindStatus {
		return "", false
	}
	return r.Str, true
}
