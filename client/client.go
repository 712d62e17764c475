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

// Package client is the host-facing facade: it assembles the connection
// core, transport loop, and pub/sub registry into one handle with
// synchronous Do, asynchronous DoAsync, transactions, subscriptions, and
// shared versioned hashes.
package client

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/packetd/qclient/conn"
	"github.com/packetd/qclient/intercept"
	"github.com/packetd/qclient/metrics"
	"github.com/packetd/qclient/pubsub"
	"github.com/packetd/qclient/resp"
	"github.com/packetd/qclient/transport"
	"github.com/packetd/qclient/vhash"
)

const tracerName = "github.com/packetd/qclient"

// ErrConnectionTornDown is returned by Do when the pending callback was
// drained with a nil reply, i.e. the host abandoned the connection before
// the server answered.
var ErrConnectionTornDown = errors.New("client: connection torn down before reply")

// Options configures a Client. Only Address is required.
type Options struct {
	Address string

	// Handshake, when non-nil, runs before any user request on every new
	// underlying connection. See AuthHandshake for the bundled one.
	Handshake conn.Handshake

	// Backpressure bounds in-flight requests; 0 means unbounded.
	Backpressure int

	TransparentUnavailable bool
	ExclusivePubSub        bool

	// Metrics, when set, receives RTT observations plus the transport's
	// reconnect and protocol-error counters.
	Metrics *metrics.Collectors

	// TracerProvider defaults to a noop provider; when a real one is
	// installed, each request carries a client span from staging to
	// acknowledgement.
	TracerProvider trace.TracerProvider

	// Intercepts defaults to the process-wide intercept.Default.
	Intercepts *intercept.Map
}

// Client is one logical connection to a RESP server.
type Client struct {
	core       *conn.Core
	loop       *transport.Loop
	registry   *pubsub.Registry
	tracer     trace.Tracer
	collectors *metrics.Collectors
}

// registryListener adapts pubsub.Registry to conn.Listener. Deliver never
// re-enters the core, satisfying the listener contract.
type registryListener struct {
	reg *pubsub.Registry
}

func (l registryListener) HandleIncomingMessage(msg pubsub.Message) {
	l.reg.Deliver(msg)
}

// New assembles a Client and starts its transport loop. The returned
// client is usable immediately; requests staged before the first dial
// completes are held and written once the handshake (if any) finishes.
func New(opts Options) (*Client, error) {
	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	var bp conn.Backpressure
	if opts.Backpressure > 0 {
		bp = conn.Bounded(opts.Backpressure)
	}

	registry := pubsub.New()
	core := conn.New(conn.Options{
		Handshake:              opts.Handshake,
		Backpressure:           bp,
		TransparentUnavailable: opts.TransparentUnavailable,
		Listener:               registryListener{reg: registry},
		ExclusivePubSub:        opts.ExclusivePubSub,
		Perf:                   perfOrNil(opts.Metrics),
		Gauges:                 gaugesOrNil(opts.Metrics),
	})

	loop, err := transport.New(transport.Options{
		Address:    opts.Address,
		Core:       core,
		Intercepts: opts.Intercepts,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	loop.Start()

	return &Client{
		core:       core,
		loop:       loop,
		registry:   registry,
		tracer:     tp.Tracer(tracerName),
		collectors: opts.Metrics,
	}, nil
}

// perfOrNil avoids storing a typed-nil *Collectors inside the Perf
// interface field, which the core would then treat as configured.
func perfOrNil(m *metrics.Collectors) conn.PerfCallback {
	if m == nil {
		return nil
	}
	return m
}

// gaugesOrNil is perfOrNil for the occupancy gauges.
func gaugesOrNil(m *metrics.Collectors) conn.Gauges {
	if m == nil {
		return nil
	}
	return m
}

// DoAsync encodes args, stages the request, and returns a channel that
// receives exactly one reply. A nil reply means the connection was torn
// down before the server answered.
func (c *Client) DoAsync(ctx context.Context, args ...string) <-chan *resp.Reply {
	return c.doEncoded(ctx, "qclient.request", resp.EncodeStrings(args...), 0)
}

// Do is DoAsync plus the wait: it blocks until the reply arrives, ctx is
// done, or the pending callback is drained.
func (c *Client) Do(ctx context.Context, args ...string) (*resp.Reply, error) {
	return c.await(ctx, c.DoAsync(ctx, args...))
}

// Exec fuses commands into a single MULTI/.../EXEC transaction block and
// returns the EXEC reply; the intermediate OK/QUEUED accounting never
// reaches the caller.
func (c *Client) Exec(ctx context.Context, commands ...[]string) (*resp.Reply, error) {
	if len(commands) == 0 {
		return nil, errors.New("client: empty transaction")
	}
	encoded := make([]resp.EncodedRequest, 0, len(commands))
	for _, args := range commands {
		encoded = append(encoded, resp.EncodeStrings(args...))
	}
	req := resp.SurroundWithTransaction(encoded)
	return c.await(ctx, c.doEncoded(ctx, "qclient.transaction", req, len(commands)))
}

func (c *Client) doEncoded(ctx context.Context, spanName string, req resp.EncodedRequest, multiSize int) <-chan *resp.Reply {
	_, span := c.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))

	ch := make(chan *resp.Reply, 1)
	c.core.Stage(func(reply *resp.Reply) {
		span.End()
		ch <- reply
		close(ch)
	}, req, multiSize)
	return ch
}

func (c *Client) await(ctx context.Context, ch <-chan *resp.Reply) (*resp.Reply, error) {
	select {
	case reply := <-ch:
		if reply == nil {
			return nil, ErrConnectionTornDown
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers a listener for channel and stages the SUBSCRIBE
// command. The acknowledgement and every subsequent delivery arrive on the
// returned subscription.
func (c *Client) Subscribe(ctx context.Context, channel string) *pubsub.Subscription {
	sub := c.registry.SubscribeChannel(channel)
	c.doEncoded(ctx, "qclient.subscribe", resp.EncodeStrings("SUBSCRIBE", channel), 0)
	return sub
}

// PSubscribe is Subscribe for a glob pattern.
func (c *Client) PSubscribe(ctx context.Context, pattern string) *pubsub.Subscription {
	sub := c.registry.SubscribePattern(pattern)
	c.doEncoded(ctx, "qclient.psubscribe", resp.EncodeStrings("PSUBSCRIBE", pattern), 0)
	return sub
}

// Unsubscribe stages UNSUBSCRIBE for channel. Callers close their
// subscriptions separately; a subscription left open simply receives the
// unsubscribe acknowledgement and then nothing further.
func (c *Client) Unsubscribe(ctx context.Context, channel string) {
	c.doEncoded(ctx, "qclient.unsubscribe", resp.EncodeStrings("UNSUBSCRIBE", channel), 0)
}

// PUnsubscribe stages PUNSUBSCRIBE for pattern.
func (c *Client) PUnsubscribe(ctx context.Context, pattern string) {
	c.doEncoded(ctx, "qclient.punsubscribe", resp.EncodeStrings("PUNSUBSCRIBE", pattern), 0)
}

// Hash constructs the shared versioned hash replica for key, backed by
// this client's connection. The client's metrics collectors are injected
// unless opts already carries its own.
func (c *Client) Hash(key string, opts vhash.Options) *vhash.Hash {
	if opts.Metrics == nil && c.collectors != nil {
		opts.Metrics = c.collectors
	}
	return vhash.New(hashConn{c: c}, key, opts)
}

// hashConn implements vhash.Conn on top of the client.
type hashConn struct {
	c *Client
}

func (hc hashConn) Do(req resp.EncodedRequest) <-chan *resp.Reply {
	return hc.c.doEncoded(context.Background(), "qclient.vhash", req, 0)
}

func (hc hashConn) Subscribe(channel string) *pubsub.Subscription {
	return hc.c.Subscribe(context.Background(), channel)
}

func (hc hashConn) OnReconnect(fn func()) {
	hc.c.loop.OnReconnect(fn)
}

// Close stops the transport loop and drains every pending callback with a
// nil reply, returning how many were drained.
func (c *Client) Close() int {
	return c.loop.Close()
}
