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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithTimeout(t *testing.T, sub *Subscription) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return Message{}, false
	}
}

func TestRegistryDeliversToChannelListener(t *testing.T) {
	r := New()
	sub := r.SubscribeChannel("news")
	defer sub.Close()

	n := r.Deliver(Message{Kind: KindMessage, Channel: "news", Payload: "hi"})
	assert.Equal(t, 1, n)

	msg, ok := recvWithTimeout(t, sub)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Payload)
}

func TestRegistryDeliversToPatternListener(t *testing.T) {
	r := New()
	sub := r.SubscribePattern("news.*")
	defer sub.Close()

	n := r.Deliver(Message{Kind: KindPatternMessage, Pattern: "news.*", Channel: "news.tech", Payload: "hi"})
	assert.Equal(t, 1, n)

	msg, ok := recvWithTimeout(t, sub)
	require.True(t, ok)
	assert.Equal(t, "news.tech", msg.Channel)
}

func TestRegistryFanOutToMultipleListeners(t *testing.T) {
	r := New()
	a := r.SubscribeChannel("news")
	b := r.SubscribeChannel("news")
	defer a.Close()
	defer b.Close()

	n := r.Deliver(Message{Kind: KindMessage, Channel: "news", Payload: "hi"})
	assert.Equal(t, 2, n)
}

func TestRegistryUnsubscribeStopsDelivery(t *testing.T) {
	r := New()
	sub := r.SubscribeChannel("news")
	sub.Close()

	n := r.Deliver(Message{Kind: KindMessage, Channel: "news", Payload: "hi"})
	assert.Equal(t, 0, n, "a closed subscription must be skipped silently")
	assert.Equal(t, 0, r.NumChannelSubscriptions())
}

func TestRegistryDeliverToUnknownChannelIsNoop(t *testing.T) {
	r := New()
	n := r.Deliver(Message{Kind: KindMessage, Channel: "nobody-subscribed", Payload: "hi"})
	assert.Equal(t, 0, n)
}

func TestRegistryDoubleCloseIsSafe(t *testing.T) {
	r := New()
	sub := r.SubscribeChannel("news")
	sub.Close()
	assert.NotPanics(t, func() { sub.Close() })
}
