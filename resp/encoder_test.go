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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeStrings(t *testing.T) {
	req := EncodeStrings("GET", "key1")
	assert.Equal(t, "*2\r\n$3\r\nGET\r\n$4\r\nkey1\r\n", string(req.Bytes()))
}

func TestEncodeEmpty(t *testing.T) {
	req := EncodeStrings()
	assert.Equal(t, "*0\r\n", string(req.Bytes()))
}

func TestEncodeBinarySafe(t *testing.T) {
	req := Encode([]byte("SET"), []byte("key"), []byte{0x00, 0xff, '\r', '\n'})
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$4\r\n\x00\xff\r\n\r\n", string(req.Bytes()))
}

func TestFuse(t *testing.T) {
	a := EncodeStrings("PING")
	b := EncodeStrings("PING")
	fused := Fuse([]EncodedRequest{a, b})
	assert.Equal(t, "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n", string(fused.Bytes()))
}

func TestSurroundWithTransaction(t *testing.T) {
	block := []EncodedRequest{
		EncodeStrings("SET", "a", "1"),
		EncodeStrings("SET", "b", "2"),
	}
	got := SurroundWithTransaction(block)
	want := EncodeStrings("MULTI").Bytes()
	want = append(want, block[0].Bytes()...)
	want = append(want, block[1].Bytes()...)
	want = append(want, EncodeStrings("EXEC").Bytes()...)
	assert.Equal(t, string(want), string(got.Bytes()))
}
