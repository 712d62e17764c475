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

package conn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/qclient/pubsub"
	"github.com/packetd/qclient/resp"
)

func status(s string) *resp.Reply  { return &resp.Reply{Kind: resp.KindStatus, Str: s} }
func errReply(s string) *resp.Reply { return &resp.Reply{Kind: resp.KindError, Str: s} }
func integer(n int64) *resp.Reply  { return &resp.Reply{Kind: resp.KindInteger, Integer: n} }

// collector gathers replies delivered to staged callbacks, in arrival
// order, safe for concurrent use since callbacks run on their own
// goroutine.
type collector struct {
	mu  sync.Mutex
	got []*resp.Reply
}

func (c *collector) callback(reply *resp.Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, reply)
}

func (c *collector) waitForLen(t *testing.T, n int) []*resp.Reply {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.got)
		c.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*resp.Reply(nil), c.got...)
}

func TestPipelinedStageAndAcknowledgeOrdering(t *testing.T) {
	c := New(Options{})
	col := &collector{}

	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)
	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)

	req1 := c.GetNextToWrite()
	req2 := c.GetNextToWrite()
	require.NotNil(t, req1)
	require.NotNil(t, req2)

	assert.True(t, c.ConsumeResponse(status("PONG1")))
	assert.True(t, c.ConsumeResponse(status("PONG2")))

	got := col.waitForLen(t, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "PONG1", got[0].Str)
	assert.Equal(t, "PONG2", got[1].Str)
}

func TestTransactionAcknowledgement(t *testing.T) {
	c := New(Options{})
	col := &collector{}

	block := []resp.EncodedRequest{
		resp.EncodeStrings("SET", "a", "1"),
		resp.EncodeStrings("SET", "b", "2"),
	}
	c.Stage(col.callback, resp.SurroundWithTransaction(block), len(block))

	require.NotNil(t, c.GetNextToWrite())

	assert.True(t, c.ConsumeResponse(status("OK")))
	assert.True(t, c.ConsumeResponse(status("QUEUED")))
	assert.True(t, c.ConsumeResponse(status("QUEUED")))
	assert.True(t, c.ConsumeResponse(integer(2)))

	got := col.waitForLen(t, 1)
	require.Len(t, got, 1, "only the EXEC reply should ever reach the callback")
	assert.Equal(t, resp.KindInteger, got[0].Kind)
	assert.EqualValues(t, 2, got[0].Integer)
}

func TestTransactionRejectsBadOpeningReply(t *testing.T) {
	c := New(Options{})
	col := &collector{}

	c.Stage(col.callback, resp.SurroundWithTransaction([]resp.EncodedRequest{resp.EncodeStrings("SET", "a", "1")}), 1)
	require.NotNil(t, c.GetNextToWrite())

	assert.False(t, c.ConsumeResponse(status("NOTOK")))
}

type fakeHandshake struct {
	steps []HandshakeStatus
	next  int
}

func (f *fakeHandshake) Restart() { f.next = 0 }
func (f *fakeHandshake) ProvideHandshake() resp.EncodedRequest {
	return resp.EncodeStrings("HELLO", "3")
}
func (f *fakeHandshake) ValidateResponse(reply *resp.Reply) HandshakeStatus {
	status := f.steps[f.next]
	f.next++
	return status
}

func TestHandshakeInterleavesWithUserRequests(t *testing.T) {
	hs := &fakeHandshake{steps: []HandshakeStatus{HandshakeValidIncomplete, HandshakeValidComplete}}
	c := New(Options{Handshake: hs})
	col := &collector{}

	assert.Equal(t, StateHandshaking, c.State())

	// A user request staged during the handshake must be held, not dropped.
	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)

	// Drain the two handshake steps.
	require.NotNil(t, c.GetNextToWrite())
	assert.True(t, c.ConsumeResponse(status("OK")))

	require.NotNil(t, c.GetNextToWrite())
	assert.True(t, c.ConsumeResponse(status("OK")))

	assert.Equal(t, StateNormal, c.State())

	// Now the held user request should be writable and acknowledgeable.
	require.NotNil(t, c.GetNextToWrite())
	assert.True(t, c.ConsumeResponse(status("PONG")))

	got := col.waitForLen(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "PONG", got[0].Str)
}

func TestHandshakeInvalidReplyFailsConsume(t *testing.T) {
	hs := &fakeHandshake{steps: []HandshakeStatus{HandshakeInvalid}}
	c := New(Options{Handshake: hs})

	require.NotNil(t, c.GetNextToWrite())
	assert.False(t, c.ConsumeResponse(errReply("NOAUTH bad credentials")))
}

type fakeListener struct {
	mu  sync.Mutex
	got []pubsub.Message
}

func (f *fakeListener) HandleIncomingMessage(msg pubsub.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
}

func (f *fakeListener) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func pushReply(elems ...*resp.Reply) *resp.Reply {
	return &resp.Reply{Kind: resp.KindPush, Array: elems}
}

func arrayReply(elems ...*resp.Reply) *resp.Reply {
	return &resp.Reply{Kind: resp.KindArray, Array: elems}
}

func bulkReply(s string) *resp.Reply { return &resp.Reply{Kind: resp.KindBulk, Str: s} }

func TestPushFrameRoutedToListener(t *testing.T) {
	listener := &fakeListener{}
	c := New(Options{Listener: listener})

	ok := c.ConsumeResponse(pushReply(bulkReply("pubsub"), bulkReply("message"), bulkReply("news"), bulkReply("hi")))
	assert.True(t, ok)
	assert.Equal(t, 1, listener.len())
}

func TestExclusivePubSubTrimsUnacknowledgeableRequests(t *testing.T) {
	listener := &fakeListener{}
	c := New(Options{Listener: listener, ExclusivePubSub: true})
	col := &collector{}

	c.Stage(col.callback, resp.EncodeStrings("SUBSCRIBE", "news"), 0)
	c.Stage(col.callback, resp.EncodeStrings("SUBSCRIBE", "weather"), 0)

	// Both writes happen; the writer cursor races ahead of the ack cursor,
	// and in exclusive pub/sub mode those entries will never be
	// individually acknowledged, so GetNextToWrite trims them on its way
	// past.
	require.NotNil(t, c.GetNextToWrite())
	require.NotNil(t, c.GetNextToWrite())

	c.SetBlockingMode(false)
	assert.Nil(t, c.GetNextToWrite(), "no more staged requests once blocking mode is off")
}

func TestClearAllPendingDrainsWithNilReplies(t *testing.T) {
	c := New(Options{})
	col := &collector{}

	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)
	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)

	drained := c.ClearAllPending()
	assert.Equal(t, 2, drained)

	got := col.waitForLen(t, 2)
	require.Len(t, got, 2)
	assert.Nil(t, got[0])
	assert.Nil(t, got[1])
}

// fakeGauges records the most recent occupancy levels the core reported.
type fakeGauges struct {
	mu           sync.Mutex
	queueDepth   int
	backpressure int
}

func (g *fakeGauges) SetQueueDepth(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queueDepth = n
}

func (g *fakeGauges) SetBackpressureInUse(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backpressure = n
}

func (g *fakeGauges) levels() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queueDepth, g.backpressure
}

func TestGaugesTrackStageAndAcknowledge(t *testing.T) {
	gauges := &fakeGauges{}
	c := New(Options{Gauges: gauges})
	col := &collector{}

	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)
	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)

	depth, inUse := gauges.levels()
	assert.Equal(t, 2, depth)
	assert.Equal(t, 2, inUse)

	require.NotNil(t, c.GetNextToWrite())
	assert.True(t, c.ConsumeResponse(status("PONG")))

	depth, inUse = gauges.levels()
	assert.Equal(t, 1, depth)
	assert.Equal(t, 1, inUse)

	c.ClearAllPending()
	depth, inUse = gauges.levels()
	assert.Equal(t, 0, depth)
	assert.Equal(t, 0, inUse)
}

func TestBackpressureTokenReleasedOnAcknowledge(t *testing.T) {
	bp := Bounded(1)
	c := New(Options{Backpressure: bp})
	col := &collector{}

	done := make(chan struct{})
	c.Stage(col.callback, resp.EncodeStrings("PING"), 0)

	go func() {
		// This Stage call would block until the first request is
		// acknowledged and its token released.
		c.Stage(col.callback, resp.EncodeStrings("PING"), 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Stage should have blocked on backpressure")
	case <-time.After(50 * time.Millisecond):
	}

	require.NotNil(t, c.GetNextToWrite())
	assert.True(t, c.ConsumeResponse(status("PONG")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Stage never unblocked after token release")
	}
}
