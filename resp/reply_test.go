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
	"github.com/stretchr/testify/require"
)

func TestReplyIsError(t *testing.T) {
	ok := newStatus("OK")
	bad := newError("WRONGTYPE mismatched type")

	assert.False(t, ok.IsError())
	assert.True(t, bad.IsError())
	assert.Equal(t, "WRONGTYPE mismatched type", bad.Error())
}

func TestReplyString(t *testing.T) {
	assert.Equal(t, "(nil)", newNilBulk().String())
	assert.Equal(t, "(integer) 7", newInteger(7).String())
	assert.Equal(t, `"hi"`, newBulk("hi").String())
}

func TestReplyDebugJSON(t *testing.T) {
	arr := newArray(KindArray, 2)
	arr.Array = append(arr.Array, newInteger(1), newBulk("x"))

	out, err := arr.DebugJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"kind": "Array"`)
	assert.Contains(t, string(out), `"integer": 1`)
}
