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

// Package transport is the external I/O layer the connection core is
// specified against: it owns the actual net.Conn, runs the writer and
// reader loops around conn.Core, and reconnects with a flat backoff when
// either loop reports a failure. The core never sees a socket; this
// package never interprets a reply.
package transport

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/packetd/qclient/conn"
	"github.com/packetd/qclient/intercept"
	"github.com/packetd/qclient/internal/rescue"
	"github.com/packetd/qclient/logger"
	"github.com/packetd/qclient/metrics"
	"github.com/packetd/qclient/resp"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultRetryBackoff = time.Second
	readChunk           = 64 * 1024
)

// Options configures a Loop. Core and Address are required; everything
// else has a usable default.
type Options struct {
	// Address is the "host:port" target, resolved through Intercepts
	// before every dial.
	Address string

	// Core is the state machine this loop feeds.
	Core *conn.Core

	// Intercepts defaults to the process-wide intercept.Default.
	Intercepts *intercept.Map

	// Metrics, when set, receives reconnect and protocol-error counts.
	// The loop does not report queue depth.
	Metrics *metrics.Collectors

	DialTimeout  time.Duration
	RetryBackoff time.Duration
}

// Loop drives one logical connection: dial, handshake (via the core),
// pump, and on any failure tear down and start over. It keeps retrying
// until Close.
type Loop struct {
	opts Options
	core *conn.Core

	mu        sync.Mutex
	sock      net.Conn
	reconnect []func()

	closed atomic.Bool
	done   chan struct{}
}

// New validates opts and returns a Loop. The loop does not dial until
// Start.
func New(opts Options) (*Loop, error) {
	if opts.Core == nil {
		return nil, errors.New("transport: nil Core")
	}
	if _, _, err := splitHostPort(opts.Address); err != nil {
		return nil, errors.Wrapf(err, "transport: bad address %q", opts.Address)
	}
	if opts.Intercepts == nil {
		opts.Intercepts = intercept.Default
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Loop{
		opts: opts,
		core: opts.Core,
		done: make(chan struct{}),
	}, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// OnReconnect registers fn to run after every successful dial, once the
// core has been rewound. A shared hash hangs its resilver trigger here.
// Registration is allowed at any time, including after Start.
func (l *Loop) OnReconnect(fn func()) {
	l.mu.Lock()
	l.reconnect = append(l.reconnect, fn)
	l.mu.Unlock()
}

// Start spawns the run loop and returns immediately.
func (l *Loop) Start() {
	go func() {
		defer rescue.HandleCrash()
		l.run()
	}()
}

func (l *Loop) run() {
	for !l.closed.Load() {
		if err := l.runOnce(); err != nil && !l.closed.Load() {
			logger.Warnf("transport: connection to %s lost: %v", l.opts.Address, err)
		}

		select {
		case <-l.done:
			return
		case <-time.After(l.opts.RetryBackoff):
		}
	}
}

// runOnce dials, rewinds the core, and pumps until the connection dies.
func (l *Loop) runOnce() error {
	sock, err := l.dial()
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		sock.Close()
		return nil
	}
	l.sock = sock
	callbacks := append([]func(){}, l.reconnect...)
	l.mu.Unlock()

	l.core.SetBlockingMode(true)
	l.core.Reconnection()
	if l.opts.Metrics != nil {
		l.opts.Metrics.IncReconnects()
	}
	for _, fn := range callbacks {
		fn()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer rescue.HandleCrash()
		defer wg.Done()
		l.writeLoop(sock)
	}()

	err = l.readLoop(sock)

	// Unstick a writer parked on an empty queue, then reap it before the
	// next dial rewinds the cursors underneath it.
	l.core.SetBlockingMode(false)
	sock.Close()
	wg.Wait()
	return err
}

func (l *Loop) dial() (net.Conn, error) {
	host, port, _ := splitHostPort(l.opts.Address)
	target := l.opts.Intercepts.Translate(intercept.Endpoint{Host: host, Port: port})
	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))

	sock, err := net.DialTimeout("tcp", addr, l.opts.DialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", addr)
	}
	logger.Infof("transport: connected to %s", addr)
	return sock, nil
}

// writeLoop pulls staged requests off the core in sequence order and
// writes their bytes. net.Conn.Write only returns short on error, so a
// completed Write is the "full completion" signal the core's writer
// cursor contract asks for.
func (l *Loop) writeLoop(sock net.Conn) {
	for {
		req := l.core.GetNextToWrite()
		if req == nil {
			return
		}
		if _, err := sock.Write(req.Encoded.Bytes()); err != nil {
			logger.Warnf("transport: write failed: %v", err)
			sock.Close()
			return
		}
	}
}

// readLoop reads socket bytes into a pooled buffer, feeds them to the
// decoder, and hands every completed reply to the core. Any decode error
// or ConsumeResponse()==false tears the connection down.
func (l *Loop) readLoop(sock net.Conn) error {
	decoder := resp.NewDecoder()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if cap(buf.B) < readChunk {
		buf.B = make([]byte, readChunk)
	}
	scratch := buf.B[:cap(buf.B)]

	for {
		n, err := sock.Read(scratch)
		if n > 0 {
			decoder.Feed(scratch[:n])
			replies, derr := decoder.PullAll()
			for _, reply := range replies {
				if !l.core.ConsumeResponse(reply) {
					if l.opts.Metrics != nil {
						l.opts.Metrics.IncProtocolErrors()
					}
					return errors.New("transport: core rejected response")
				}
			}
			if derr != nil {
				if l.opts.Metrics != nil {
					l.opts.Metrics.IncProtocolErrors()
				}
				decoder.Restart()
				return derr
			}
		}
		if err != nil {
			return err
		}
	}
}

// Close stops the loop for good and drains every still-pending callback
// with a nil reply, returning how many were drained.
func (l *Loop) Close() int {
	if !l.closed.CompareAndSwap(false, true) {
		return 0
	}
	close(l.done)

	l.core.SetBlockingMode(false)

	l.mu.Lock()
	if l.sock != nil {
		l.sock.Close()
	}
	l.mu.Unlock()

	return l.core.ClearAllPending()
}
