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

import "strconv"

// EncodedRequest is an already-serialized RESP command: a "*N\r\n$len\r\n
// arg\r\n..." array of bulk strings, built once and held as an immutable
// byte slice so it can be queued, retried and fused without re-encoding.
type EncodedRequest struct {
	buf []byte
}

// Bytes returns the wire representation. The caller must not mutate it.
func (e EncodedRequest) Bytes() []byte {
	return e.buf
}

// Len reports the size in bytes of the encoded request.
func (e EncodedRequest) Len() int {
	return len(e.buf)
}

// Encode serializes args as a RESP array of bulk strings, the format every
// RESP client uses to send commands to a server. It computes the exact
// output length up front and fills a single buffer of that size, with no
// incremental growth. The decimal length headers are formatted into small
// temporary slices first, so one call makes more than one allocation.
func Encode(args ...[]byte) EncodedRequest {
	return EncodedRequest{buf: encodeChunks(args)}
}

// EncodeStrings is a convenience wrapper over Encode for string arguments,
// the common case when building commands from literals.
func EncodeStrings(args ...string) EncodedRequest {
	chunks := make([][]byte, len(args))
	for i, a := range args {
		chunks[i] = []byte(a)
	}
	return Encode(chunks...)
}

func encodeChunks(chunks [][]byte) []byte {
	nHeader := itoaBytes(len(chunks))

	length := 1 + len(nHeader) + 2
	lengths := make([][]byte, len(chunks))
	for i, c := range chunks {
		lengths[i] = itoaBytes(len(c))
		length += 1 + len(lengths[i]) + 2 + len(c) + 2
	}

	buf := make([]byte, length)
	pos := 0
	buf[pos] = '*'
	pos++
	pos += copy(buf[pos:], nHeader)
	buf[pos] = '\r'
	buf[pos+1] = '\n'
	pos += 2

	for i, c := range chunks {
		buf[pos] = '$'
		pos++
		pos += copy(buf[pos:], lengths[i])
		buf[pos] = '\r'
		buf[pos+1] = '\n'
		pos += 2

		pos += copy(buf[pos:], c)
		buf[pos] = '\r'
		buf[pos+1] = '\n'
		pos += 2
	}

	return buf
}

func itoaBytes(n int) []byte {
	return []byte(strconv.Itoa(n))
}

// Fuse concatenates a block of already-encoded requests into a single
// EncodedRequest, letting the caller write an entire pipeline in one
// syscall instead of one write per command.
func Fuse(block []EncodedRequest) EncodedRequest {
	total := 0
	for _, r := range block {
		total += r.Len()
	}

	buf := make([]byte, total)
	pos := 0
	for _, r := range block {
		pos += copy(buf[pos:], r.buf)
	}
	return EncodedRequest{buf: buf}
}

// SurroundWithTransaction wraps block in MULTI/EXEC and fuses the result
// into a single EncodedRequest, the building block the shared hash layer
// uses to make sure its batched writes apply atomically.
func SurroundWithTransaction(block []EncodedRequest) EncodedRequest {
	surrounded := make([]EncodedRequest, 0, len(block)+2)
	surrounded = append(surrounded, EncodeStrings("MULTI"))
	surrounded = append(surrounded, block...)
	surrounded = append(surrounded, EncodeStrings("EXEC"))
	return Fuse(surrounded)
}
