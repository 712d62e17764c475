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

package resp

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

// Status reports the outcome of pulling a single reply out of a Decoder:
// either a full reply came out, more bytes are needed, or the peer sent
// something that isn't RESP at all.
type Status int

const (
	// StatusOk means Pull returned a complete reply.
	StatusOk Status = iota
	// StatusIncomplete means the buffered bytes don't yet hold a full
	// reply; the caller should Feed more and try again.
	StatusIncomplete
	// StatusProtocolError means the buffered bytes cannot be RESP; the
	// connection that produced them must be torn down and reconnected.
	StatusProtocolError
)

var crlf = []byte("\r\n")

func decodeErrorf(format string, args ...any) error {
	return errors.Errorf("resp/decoder: "+format, args...)
}

var (
	errEmptyLine  = decodeErrorf("empty line where a type byte was expected")
	errBulkTerm   = decodeErrorf("bulk string missing trailing CRLF")
	errUnknownTag = decodeErrorf("unrecognized RESP type byte")
)

// Decoder turns a stream of bytes fed to it in arbitrary chunks into a
// sequence of parsed Reply values. It buffers whatever a Feed call could
// not yet turn into a complete reply and resumes from there on the next
// call, so callers never need to worry about a reply straddling a read.
//
// Unlike a line splitter that treats an unterminated trailing chunk as a
// complete line, Decoder never emits a reply built from bytes that lack
// their terminating CRLF: a dangling partial line is always StatusIncomplete,
// never a false StatusOk.
type Decoder struct {
	buf []byte
}

// NewDecoder returns a Decoder ready to accept bytes via Feed.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly-read bytes to the decoder's pending buffer.
func (d *Decoder) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	d.buf = append(d.buf, chunk...)
}

// Pending reports how many unconsumed bytes are currently buffered,
// useful for backpressure and diagnostics.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Restart discards any buffered, not-yet-parsed bytes. Called after a
// protocol error, once the connection owning this decoder has reconnected.
func (d *Decoder) Restart() {
	d.buf = nil
}

// Pull parses a single reply off the front of the buffered bytes. On
// StatusOk the consumed bytes are dropped from the buffer. On
// StatusIncomplete the buffer is left untouched so a later Feed can
// complete it. On StatusProtocolError the buffer is left as-is too; the
// caller is expected to call Restart once it has dealt with the error.
func (d *Decoder) Pull() (*Reply, Status, error) {
	reply, consumed, status, err := parseReply(d.buf)
	if status == StatusOk {
		d.buf = d.buf[consumed:]
	}
	return reply, status, err
}

// PullAll drains every complete reply currently buffered, in the order
// they arrived. It stops at the first incomplete reply or protocol error;
// a non-nil error means the connection must be reset, while the replies
// collected before it remain valid and should still be delivered.
func (d *Decoder) PullAll() ([]*Reply, error) {
	var out []*Reply
	for {
		reply, status, err := d.Pull()
		switch status {
		case StatusOk:
			out = append(out, reply)
		case StatusIncomplete:
			return out, nil
		case StatusProtocolError:
			return out, err
		default:
			return out, nil
		}
	}
}

// parseReply attempts to parse exactly one RESP value from b, returning
// how many bytes it consumed. It recurses for the nested elements of
// arrays and push frames without an explicit suspend/resume stack: since
// the whole pending buffer is retained across Feed calls, an incomplete
// nested element simply aborts the entire parse with StatusIncomplete,
// and the next call restarts from byte zero once more data has arrived.
func parseReply(b []byte) (*Reply, int, Status, error) {
	line, n, ok := readLine(b)
	if !ok {
		return nil, 0, StatusIncomplete, nil
	}
	if len(line) == 0 {
		return nil, 0, StatusProtocolError, errEmptyLine
	}

	switch line[0] {
	case '+':
		return newStatus(string(line[1:])), n, StatusOk, nil

	case '-':
		return newError(string(line[1:])), n, StatusOk, nil

	case ':':
		v, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return nil, 0, StatusProtocolError, decodeErrorf("bad integer %q: %v", line[1:], err)
		}
		return newInteger(v), n, StatusOk, nil

	case '$':
		return parseBulk(b, line, n)

	case '*':
		return parseAggregate(b, line, n, KindArray)

	case '>':
		return parseAggregate(b, line, n, KindPush)

	default:
		return nil, 0, StatusProtocolError, errUnknownTag
	}
}

// readLine returns the bytes up to (excluding) the first CRLF in b, and the
// number of bytes consumed including that CRLF. ok is false when no CRLF is
// present yet, i.e. the line is not complete.
func readLine(b []byte) (line []byte, consumed int, ok bool) {
	idx := bytes.Index(b, crlf)
	if idx < 0 {
		return nil, 0, false
	}
	return b[:idx], idx + 2, true
}

// parseBulk parses a "$len\r\n...\r\n" bulk string, given its already-read
// header line. headerLen is the number of bytes the header itself consumed.
func parseBulk(b []byte, line []byte, headerLen int) (*Reply, int, Status, error) {
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return nil, 0, StatusProtocolError, decodeErrorf("bad bulk length %q: %v", line[1:], err)
	}
	if n < 0 {
		return newNilBulk(), headerLen, StatusOk, nil
	}

	need := headerLen + n + 2
	if len(b) < need {
		return nil, 0, StatusIncomplete, nil
	}
	if b[headerLen+n] != '\r' || b[headerLen+n+1] != '\n' {
		return nil, 0, StatusProtocolError, errBulkTerm
	}

	return newBulk(string(b[headerLen : headerLen+n])), need, StatusOk, nil
}

// parseAggregate parses a "*n\r\n..." array or ">n\r\n..." push frame,
// recursively parsing each of its n elements.
func parseAggregate(b []byte, line []byte, headerLen int, kind Kind) (*Reply, int, Status, error) {
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return nil, 0, StatusProtocolError, decodeErrorf("bad element count %q: %v", line[1:], err)
	}
	if n < 0 {
		return newNilArray(kind), headerLen, StatusOk, nil
	}

	reply := newArray(kind, n)
	pos := headerLen
	for i := 0; i < n; i++ {
		child, consumed, status, err := parseReply(b[pos:])
		if status != StatusOk {
			return nil, 0, status, err
		}
		reply.Array = append(reply.Array, child)
		pos += consumed
	}
	return reply, pos, StatusOk, nil
}
