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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/qclient/pubsub"
	"github.com/packetd/qclient/resp"
)

// fakeConn is an in-memory Conn used to exercise Hash without a real
// server: VHGETALL requests are answered from a caller-controlled reply,
// and revision updates are pushed directly into the subscription the Hash
// registered with Subscribe.
type fakeConn struct {
	mu        sync.Mutex
	registry  *pubsub.Registry
	getallCh  chan resp.EncodedRequest
	nextReply *resp.Reply
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		registry: pubsub.New(),
		getallCh: make(chan resp.EncodedRequest, 16),
	}
}

func (f *fakeConn) Do(req resp.EncodedRequest) <-chan *resp.Reply {
	ch := make(chan *resp.Reply, 1)
	f.mu.Lock()
	reply := f.nextReply
	f.mu.Unlock()
	f.getallCh <- req
	ch <- reply
	return ch
}

func (f *fakeConn) Subscribe(channel string) *pubsub.Subscription {
	return f.registry.SubscribeChannel(channel)
}

func (f *fakeConn) OnReconnect(func()) {}

func (f *fakeConn) setNextGetallReply(revision int64, contents map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextReply = revisionReply(revision, contents)
}

func revisionReply(revision int64, contents map[string]string) *resp.Reply {
	fields := make([]string, 0, len(contents)*2)
	for k, v := range contents {
		fields = append(fields, k, v)
	}

	// Build the reply tree directly via the decoder so this test exercises
	// real parsing instead of hand-assembling *resp.Reply values.
	enc := resp.Encode(stringsToBytes(fields)...)
	dec := resp.NewDecoder()
	dec.Feed(wrapAsRevisionArray(revision, enc))
	reply, status, err := dec.Pull()
	if status != resp.StatusOk {
		panic(err)
	}
	return reply
}

func stringsToBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// wrapAsRevisionArray hand-builds "*2\r\n:<revision>\r\n<fieldsArrayBytes>"
// by prefixing the encoded field array unchanged: resp.Encode already wraps
// bulk strings in their own "*N\r\n" array, which becomes the nested list.
func wrapAsRevisionArray(revision int64, fieldsArray resp.EncodedRequest) []byte {
	head := []byte("*2\r\n:")
	head = append(head, []byte(itoa(revision))...)
	head = append(head, '\r', '\n')
	return append(head, fieldsArray.Bytes()...)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func waitForRevision(t *testing.T, h *Hash, want uint64) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if h.CurrentRevision() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for revision %d, have %d", want, h.CurrentRevision())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestHashResilverOnConstruction(t *testing.T) {
	fc := newFakeConn()
	fc.setNextGetallReply(5, map[string]string{"brubru": "123", "qwerty": "234", "123": "456"})

	h := New(fc, "mykey", Options{})
	defer h.Close()

	waitForRevision(t, h, 5)
	v, ok := h.Get("qwerty")
	require.True(t, ok)
	assert.Equal(t, "234", v)
}

func TestHashAppliesContiguousRevision(t *testing.T) {
	fc := newFakeConn()
	fc.setNextGetallReply(5, map[string]string{})
	h := New(fc, "mykey", Options{})
	defer h.Close()
	waitForRevision(t, h, 5)

	// Re-encode the same shape as the wire payload a publisher would send.
	encoded := wrapAsRevisionArray(6, resp.Encode([]byte("qqq"), []byte("ppp")))
	fc.registry.Deliver(pubsub.Message{Kind: pubsub.KindMessage, Channel: channelFor("mykey"), Payload: string(encoded)})

	waitForRevision(t, h, 6)
	v, ok := h.Get("qqq")
	require.True(t, ok)
	assert.Equal(t, "ppp", v)
}

func TestHashRevisionGapTriggersResilver(t *testing.T) {
	fc := newFakeConn()
	fc.setNextGetallReply(5, map[string]string{})
	h := New(fc, "mykey", Options{})
	defer h.Close()
	waitForRevision(t, h, 5)

	fc.setNextGetallReply(8, map[string]string{"pickles": "are awesome"})

	encoded := wrapAsRevisionArray(8, resp.Encode([]byte("pickles"), []byte("are awesome")))
	fc.registry.Deliver(pubsub.Message{Kind: pubsub.KindMessage, Channel: channelFor("mykey"), Payload: string(encoded)})

	waitForRevision(t, h, 8)
	v, ok := h.Get("pickles")
	require.True(t, ok)
	assert.Equal(t, "are awesome", v)
}

func TestHashLayerPrecedence(t *testing.T) {
	fc := newFakeConn()
	fc.setNextGetallReply(1, map[string]string{"k": "durable"})
	h := New(fc, "mykey", Options{})
	defer h.Close()
	waitForRevision(t, h, 1)

	batch := NewUpdateBatch().SetLocal("k", "local")
	<-h.Set(batch)
	v, ok := h.Get("k")
	require.True(t, ok)
	assert.Equal(t, "local", v)
}

func TestHashSubscribeWithCurrentContents(t *testing.T) {
	fc := newFakeConn()
	fc.setNextGetallReply(1, map[string]string{"a": "1"})
	h := New(fc, "mykey", Options{})
	defer h.Close()
	waitForRevision(t, h, 1)

	sub := h.Subscribe(true)
	defer sub.Close()

	select {
	case c := <-sub.Changes():
		assert.Equal(t, "a", c.Key)
		assert.Equal(t, "1", c.New)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate current-contents delivery")
	}
}

// countingMetrics counts resilver triggers.
type countingMetrics struct {
	mu        sync.Mutex
	resilvers int
}

func (m *countingMetrics) IncResilvers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resilvers++
}

func (m *countingMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resilvers
}

func TestHashCountsResilvers(t *testing.T) {
	fc := newFakeConn()
	fc.setNextGetallReply(5, map[string]string{})
	counters := &countingMetrics{}

	h := New(fc, "mykey", Options{Metrics: counters})
	defer h.Close()
	waitForRevision(t, h, 5)
	assert.Equal(t, 1, counters.count(), "construction issues the initial resilver")

	// A revision gap forces a second one.
	fc.setNextGetallReply(8, map[string]string{})
	encoded := wrapAsRevisionArray(8, resp.Encode([]byte("x"), []byte("y")))
	fc.registry.Deliver(pubsub.Message{Kind: pubsub.KindMessage, Channel: channelFor("mykey"), Payload: string(encoded)})

	waitForRevision(t, h, 8)
	assert.Equal(t, 2, counters.count())
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := Snapshot{Revision: 7, Contents: map[string]string{"a": "1", "b": "2"}}
	encoded, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}
