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

// Package resp implements the wire-level RESP (REdis Serialization
// Protocol) codec shared by every connection this module opens: an encoder
// that turns a slice of command arguments into the exact bytes a server
// expects, and a streaming decoder that turns those bytes back into typed
// replies, one TCP read at a time.
package resp

import "fmt"

// Kind identifies which of the RESP2/RESP3 reply types a Reply carries.
type Kind int

const (
	// KindStatus is a "+OK\r\n"-style simple string.
	KindStatus Kind = iota
	// KindError is a "-ERR ...\r\n"-style simple string, surfaced as an error.
	KindError
	// KindInteger is a ":1000\r\n"-style signed 64-bit integer.
	KindInteger
	// KindBulk is a "$6\r\nfoobar\r\n"-style binary-safe string, or a nil
	// bulk string ("$-1\r\n") when Nil is set.
	KindBulk
	// KindArray is a "*N\r\n..."-style ordered list of replies, or a nil
	// array ("*-1\r\n") when Nil is set.
	KindArray
	// KindPush is a RESP3 ">N\r\n..."-style out-of-band push frame: the
	// shape QuarkDB and Redis use to deliver pub/sub and keyspace
	// notifications outside the normal request/response cadence.
	KindPush
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "Status"
	case KindError:
		return "Error"
	case KindInteger:
		return "Integer"
	case KindBulk:
		return "Bulk"
	case KindArray:
		return "Array"
	case KindPush:
		return "Push"
	default:
		return "Unknown"
	}
}

// Reply is a single parsed RESP value. Only the fields relevant to Kind are
// meaningful; the zero value of the others is left untouched.
type Reply struct {
	Kind Kind

	// Str holds the payload for KindStatus, KindError and KindBulk.
	Str string
	// Nil distinguishes a null bulk string / null array from an empty one.
	Nil bool
	// Integer holds the payload for KindInteger.
	Integer int64
	// Array holds the elements for KindArray and KindPush. A nil array
	// (Nil == true) always has a nil Array slice.
	Array []*Reply
}

// Error implements the error interface so a KindError Reply can be returned
// and handled directly as a Go error.
func (r *Reply) Error() string {
	if r == nil {
		return ""
	}
	return r.Str
}

// IsError reports whether r is a RESP error reply.
func (r *Reply) IsError() bool {
	return r != nil && r.Kind == KindError
}

// String renders a human-readable form of the reply, mostly useful in logs
// and test failure output.
func (r *Reply) String() string {
	if r == nil {
		return "<nil reply>"
	}
	switch r.Kind {
	case KindStatus:
		return r.Str
	case KindError:
		return "(error) " + r.Str
	case KindInteger:
		return fmt.Sprintf("(integer) %d", r.Integer)
	case KindBulk:
		if r.Nil {
			return "(nil)"
		}
		return fmt.Sprintf("%q", r.Str)
	case KindArray, KindPush:
		if r.Nil {
			return "(nil)"
		}
		return fmt.Sprintf("%v", r.Array)
	default:
		return "<invalid reply>"
	}
}

func newStatus(s string) *Reply    { return &Reply{Kind: KindStatus, Str: s} }
func newError(s string) *Reply     { return &Reply{Kind: KindError, Str: s} }
func newInteger(n int64) *Reply    { return &Reply{Kind: KindInteger, Integer: n} }
func newBulk(s string) *Reply      { return &Reply{Kind: KindBulk, Str: s} }
func newNilBulk() *Reply           { return &Reply{Kind: KindBulk, Nil: true} }
func newNilArray(k Kind) *Reply    { return &Reply{Kind: k, Nil: true} }
func newArray(k Kind, n int) *Reply {
	return &Reply{Kind: k, Array: make([]*Reply, 0, n)}
}
