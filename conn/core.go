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

// Package conn implements the connection core: the pipelining state
// machine that sits between a host's staged requests and the bytes that
// actually cross the wire. It owns two independent cursors walking the
// same request queue — a writer cursor that hands out the next bytes to
// send, and an acknowledge cursor that matches incoming replies back to
// the request that caused them — and understands handshakes, MULTI/EXEC
// transaction framing, RESP3 push delivery, and exclusive pub/sub mode.
//
// The core never touches a socket itself; callers feed it decoded replies
// via ConsumeResponse and pull encoded bytes to write via GetNextToWrite.
package conn

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/packetd/qclient/internal/lastnset"
	"github.com/packetd/qclient/logger"
	"github.com/packetd/qclient/pubsub"
	"github.com/packetd/qclient/queue"
	"github.com/packetd/qclient/resp"
)

// logDedupeSize bounds how many distinct recent protocol-error log lines
// the core remembers before it starts forgetting the oldest, same
// trade-off internal/lastnset documents for its ring.
const logDedupeSize = 64

// State is the coarse operating mode of a Core, surfaced for diagnostics
// and tests; internally the core tracks its sub-states as plain fields
// rather than a single enum; State() derives this view from them.
type State int

const (
	// StateHandshaking means the core is still exchanging handshake
	// requests/replies and user requests are queued but not yet written.
	StateHandshaking State = iota
	// StateNormal is ordinary request/response pipelining.
	StateNormal
	// StateExclusivePubSub means every incoming reply, not just push
	// frames, is routed to the Listener.
	StateExclusivePubSub
)

// Options configures a new Core. Handshake, Listener, Perf and Gauges may
// be nil.
type Options struct {
	Handshake              Handshake
	Backpressure           Backpressure
	TransparentUnavailable bool
	Listener               Listener
	ExclusivePubSub        bool
	Perf                   PerfCallback
	Gauges                 Gauges
}

// Core is the pipelining state machine described in the package doc.
type Core struct {
	mu sync.Mutex

	handshake              Handshake
	backpressure           Backpressure
	transparentUnavailable bool
	listener               Listener
	exclusivePubsub        bool
	perf                   PerfCallback
	gauges                 Gauges

	inFlight int // backpressure tokens currently reserved

	inHandshake       bool
	handshakeRequests *queue.Queue[*StagedRequest]
	handshakeIterator *queue.Iterator[*StagedRequest]

	requestQueue              *queue.Queue[*StagedRequest]
	nextToWriteIterator       *queue.Iterator[*StagedRequest]
	nextToAcknowledgeIterator *queue.Iterator[*StagedRequest]

	ignoredResponses int

	// lastCallback is closed once the most recently dispatched callback has
	// returned; the next callback waits on it, so callbacks fire in
	// acknowledgement order even though each runs on its own goroutine.
	lastCallback chan struct{}

	logDedupe *lastnset.LogDedupe
}

// New creates a Core and performs its initial reconnection() transition,
// entering Handshaking if a Handshake was configured, else Normal.
func New(opts Options) *Core {
	bp := opts.Backpressure
	if bp == nil {
		bp = Unbounded()
	}

	c := &Core{
		handshake:              opts.Handshake,
		backpressure:           bp,
		transparentUnavailable: opts.TransparentUnavailable,
		listener:               opts.Listener,
		exclusivePubsub:        opts.ExclusivePubSub,
		perf:                   opts.Perf,
		gauges:                 opts.Gauges,
		handshakeRequests:      queue.New[*StagedRequest](),
		requestQueue:           queue.New[*StagedRequest](),
		logDedupe:              lastnset.NewLogDedupe(logDedupeSize),
	}
	c.reconnection()
	return c
}

// State reports the core's current coarse state.
func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Core) stateLocked() State {
	if c.inHandshake {
		return StateHandshaking
	}
	if c.exclusivePubsub {
		return StateExclusivePubSub
	}
	return StateNormal
}

// reconnection re-enters Handshaking (if configured) and rewinds both
// cursors to head. Caller must hold c.mu.
func (c *Core) reconnection() {
	if c.handshake != nil {
		c.inHandshake = true
		c.handshake.Restart()
		c.handshakeRequests.Reset()
		c.handshakeRequests.EmplaceBack(&StagedRequest{Encoded: c.handshake.ProvideHandshake()})
		c.handshakeIterator = c.handshakeRequests.Begin()
	} else {
		c.inHandshake = false
	}

	c.ignoredResponses = 0
	c.nextToWriteIterator = c.requestQueue.Begin()
	c.nextToAcknowledgeIterator = c.requestQueue.Begin()
}

// Reconnection re-runs the reset transition after a new underlying
// connection has been established. Staged user requests are preserved;
// only the handshake and the write/ack cursors are rewound.
func (c *Core) Reconnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnection()
}

// ClearAllPending satisfies every still-pending callback with a nil reply,
// empties the queue, and re-enters Reset. It returns how many callbacks
// were drained, for the host's own accounting.
func (c *Core) ClearAllPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inHandshake = false

	drained := 0
	for c.nextToAcknowledgeIterator.ItemHasArrived() {
		c.acknowledgePendingLocked(nil)
		drained++
	}

	c.requestQueue.Reset()
	c.reconnection()
	return drained
}

// Stage enqueues an already-encoded request. It blocks on the backpressure
// strategy before taking the lock, exactly as staging a request that would
// exceed the in-flight limit should block the caller, not the core.
func (c *Core) Stage(callback Callback, req resp.EncodedRequest, multiSize int) uint64 {
	c.backpressure.Reserve()

	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.requestQueue.EmplaceBack(&StagedRequest{
		Callback:  callback,
		Encoded:   req,
		MultiSize: multiSize,
		Timestamp: time.Now(),
	})
	c.inFlight++
	c.reportGaugesLocked()
	return seq
}

// reportGaugesLocked pushes the current occupancy levels to the configured
// Gauges. Caller must hold c.mu.
func (c *Core) reportGaugesLocked() {
	if c.gauges == nil {
		return
	}
	c.gauges.SetQueueDepth(c.requestQueue.Len())
	c.gauges.SetBackpressureInUse(c.inFlight)
}

// acknowledgePendingLocked delivers reply to the callback at the ack
// cursor, reports RTT if a PerfCallback is configured, and advances past
// it. Caller must hold c.mu.
func (c *Core) acknowledgePendingLocked(reply *resp.Reply) {
	req, ok := c.nextToAcknowledgeIterator.Item()
	if !ok {
		return
	}

	if c.perf != nil {
		c.measurePerf(req)
	}
	if req.Callback != nil {
		prev, done := c.lastCallback, make(chan struct{})
		c.lastCallback = done
		go func() {
			defer close(done)
			if prev != nil {
				<-prev
			}
			req.Callback(reply)
		}()
	}
	c.discardPendingLocked()
}

func (c *Core) discardPendingLocked() {
	c.nextToAcknowledgeIterator.Next()
	c.requestQueue.PopFront()
	c.backpressure.Release()
	c.inFlight--
	c.reportGaugesLocked()
}

func (c *Core) measurePerf(req *StagedRequest) {
	rttUs := time.Since(req.Timestamp).Microseconds()
	c.perf.SendPerfMarker("rtt_us", rttUs)
}

// warnDeduped logs at Warn level unless an identically-worded line was
// logged recently, so a socket stuck replaying the same protocol error
// doesn't flood the log at wire speed.
func (c *Core) warnDeduped(msg string) {
	if c.logDedupe.Seen(msg) {
		return
	}
	logger.Warnf("%s", msg)
}

// errorDeduped is warnDeduped's Error-level counterpart.
func (c *Core) errorDeduped(msg string) {
	if c.logDedupe.Seen(msg) {
		return
	}
	logger.Errorf("%s", msg)
}

func isOK(reply *resp.Reply) bool {
	return reply != nil && reply.Kind == resp.KindStatus && strings.EqualFold(reply.Str, "OK")
}

func isQueued(reply *resp.Reply) bool {
	return reply != nil && reply.Kind == resp.KindStatus && strings.EqualFold(reply.Str, "QUEUED")
}

func isUnavailable(reply *resp.Reply) bool {
	if reply == nil || reply.Kind != resp.KindError {
		return false
	}
	return strings.HasPrefix(reply.Str, "ERR unavailable") || strings.HasPrefix(reply.Str, "UNAVAILABLE")
}

// ConsumeResponse feeds one decoded reply into the state machine. It
// returns false whenever the reply is unacceptable in a way that demands
// the I/O layer drop and reconnect the underlying socket; the caller is
// not expected to interpret why, only to act on the boolean.
func (c *Core) ConsumeResponse(reply *resp.Reply) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transparentUnavailable && isUnavailable(reply) {
		c.warnDeduped(fmt.Sprintf("conn: cluster reported temporarily unavailable: %s", reply.Str))
		return false
	}

	if c.inHandshake {
		return c.consumeHandshakeReplyLocked(reply)
	}

	if reply != nil && reply.Kind == resp.KindPush {
		if c.listener == nil {
			return true
		}
		msg, ok := pubsub.Parse(reply)
		if !ok {
			c.warnDeduped(fmt.Sprintf("conn: unable to parse incoming PUSH message: %s", reply.String()))
			return false
		}
		c.listener.HandleIncomingMessage(msg)
		return true
	}

	if c.listener != nil && c.exclusivePubsub {
		msg, ok := pubsub.Parse(reply)
		if !ok {
			c.warnDeduped(fmt.Sprintf("conn: unable to parse incoming message while in exclusive pub/sub mode: %s", reply.String()))
			return false
		}
		c.listener.HandleIncomingMessage(msg)
		return true
	}

	if !c.nextToAcknowledgeIterator.ItemHasArrived() {
		c.errorDeduped("conn: server sent more responses than there were requests")
		return false
	}

	req, _ := c.nextToAcknowledgeIterator.Item()
	if req.MultiSize != 0 {
		c.ignoredResponses++

		if c.ignoredResponses == 1 {
			if !isOK(reply) {
				c.errorDeduped(fmt.Sprintf("conn: expected OK at start of MULTI block (multi-size=%d), received: %s", req.MultiSize, reply.String()))
				return false
			}
			return true
		}

		// multi-size counts the k fused user commands, each of which earns
		// its own QUEUED reply: responses 2..k+1 must all be QUEUED, and
		// only response k+2 (the EXEC result) is the real one.
		if c.ignoredResponses <= req.MultiSize+1 {
			if !isQueued(reply) {
				c.errorDeduped(fmt.Sprintf("conn: expected QUEUED within MULTI block (multi-size=%d, response=%d), received: %s", req.MultiSize, c.ignoredResponses, reply.String()))
				return false
			}
			return true
		}

		// This is the real EXEC reply.
		c.ignoredResponses = 0
	}

	c.acknowledgePendingLocked(reply)
	return true
}

func (c *Core) consumeHandshakeReplyLocked(reply *resp.Reply) bool {
	switch c.handshake.ValidateResponse(reply) {
	case HandshakeInvalid:
		return false

	case HandshakeValidComplete:
		c.inHandshake = false
		c.handshakeRequests.SetBlockingMode(false)
		return true

	case HandshakeValidIncomplete:
		c.handshakeRequests.EmplaceBack(&StagedRequest{Encoded: c.handshake.ProvideHandshake()})
		return true

	default:
		return false
	}
}

// SetBlockingMode toggles whether GetNextToWrite may park the writer. Used
// to unstick a writer goroutine during shutdown.
func (c *Core) SetBlockingMode(blocking bool) {
	c.handshakeRequests.SetBlockingMode(blocking)
	c.requestQueue.SetBlockingMode(blocking)
}

// GetNextToWrite blocks until the next request the writer should send is
// available, or returns nil if blocking mode was turned off first. While
// in exclusive pub/sub mode it also trims requests that the ack cursor
// will never reach, releasing their backpressure tokens as it goes.
func (c *Core) GetNextToWrite() *StagedRequest {
	for {
		c.mu.Lock()
		inHandshake := c.inHandshake
		c.mu.Unlock()
		if !inHandshake {
			break
		}

		item := c.handshakeIterator.GetItemBlockOrNil()
		if item != nil {
			c.handshakeIterator.Next()
			return *item
		}

		// A nil item means the handshake queue unblocked: either the
		// handshake just completed and the writer should move on to the
		// user queue, or blocking was switched off for shutdown.
		c.mu.Lock()
		still := c.inHandshake
		c.mu.Unlock()
		if still {
			return nil
		}
	}

	item := c.nextToWriteIterator.GetItemBlockOrNil()

	c.mu.Lock()
	if c.listener != nil && c.exclusivePubsub {
		for c.nextToWriteIterator.Seq() > c.nextToAcknowledgeIterator.Seq() {
			c.discardPendingLocked()
		}
	}
	c.mu.Unlock()

	if item == nil {
		return nil
	}
	c.nextToWriteIterator.Next()
	return *item
}
