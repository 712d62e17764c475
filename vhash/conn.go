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

// Package vhash implements the shared versioned hash: a replicated,
// eventually-consistent local copy of a server-side hash kept in sync via
// a monotonic revision counter, a VHGETALL resilvering protocol, and
// __vhash@<key> pub/sub notifications. On top of the replicated layer it
// keeps a local-only overlay and a transient-broadcast overlay, and fans
// change notifications out to registered subscribers.
package vhash

import (
	"github.com/packetd/qclient/pubsub"
	"github.com/packetd/qclient/resp"
)

// Conn is the minimal capability a Hash needs from the host connection: the
// ability to issue a request and await its reply asynchronously, subscribe
// to a pub/sub channel, and be told when the underlying connection has
// re-established (so a resilver can be triggered). It deliberately avoids
// depending on conn.Core or client.Client directly, so this package stays
// independent of how the host wires its transport.
type Conn interface {
	// Do stages req and returns a channel that receives exactly one reply
	// (nil if the connection is torn down before a reply arrives).
	Do(req resp.EncodedRequest) <-chan *resp.Reply

	// Subscribe registers for deliveries on channel.
	Subscribe(channel string) *pubsub.Subscription

	// OnReconnect registers fn to be invoked every time the underlying
	// connection re-establishes, e.g. after conn.Core's Reconnection().
	// Implementations may invoke fn synchronously at registration time too,
	// covering the already-connected case with the same code path.
	OnReconnect(fn func())
}
