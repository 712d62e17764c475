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

package splitio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerKeepsDelimiters(t *testing.T) {
	s := NewScanner([]byte("one\ntwo\r\nthree"))

	require.True(t, s.Scan())
	assert.Equal(t, []byte("one\n"), s.Bytes())

	require.True(t, s.Scan())
	assert.Equal(t, []byte("two\r\n"), s.Bytes())

	require.True(t, s.Scan())
	assert.Equal(t, []byte("three"), s.Bytes())

	assert.False(t, s.Scan())
}

func TestTrimDelim(t *testing.T) {
	assert.Equal(t, []byte("a"), TrimDelim([]byte("a\r\n")))
	assert.Equal(t, []byte("a"), TrimDelim([]byte("a\n")))
	assert.Equal(t, []byte("a"), TrimDelim([]byte("a")))
	// A CR inside the line is payload, not a delimiter.
	assert.Equal(t, []byte("a\rb"), TrimDelim([]byte("a\rb\n")))
}

func TestReaderEOF(t *testing.T) {
	r := NewReader([]byte("x\ny\n"))

	line, eof := r.ReadLine()
	require.False(t, eof)
	assert.Equal(t, []byte("x\n"), line)
	assert.False(t, r.EOF())

	line, eof = r.ReadLine()
	require.False(t, eof)
	assert.Equal(t, []byte("y\n"), line)
	assert.True(t, r.EOF())

	_, eof = r.ReadLine()
	assert.True(t, eof)
}

func TestReaderEmptyInput(t *testing.T) {
	r := NewReader(nil)
	_, eof := r.ReadLine()
	assert.True(t, eof)
	assert.True(t, r.EOF())
}
