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

package lastnset

import (
	"github.com/cespare/xxhash/v2"
	"github.com/valyala/bytebufferpool"
)

// LogDedupe suppresses repeated identical log lines (e.g. the same
// protocol-error text during a reconnect storm) by remembering xxhash
// digests of recent messages instead of the messages themselves.
type LogDedupe struct {
	seen *Set[uint64]
}

// NewLogDedupe retains the hashes of the last n distinct messages seen.
func NewLogDedupe(n int) *LogDedupe {
	return &LogDedupe{seen: New[uint64](n)}
}

// Seen reports whether msg (or another message hashing identically) was
// already observed within the current retention window, then records it.
func (d *LogDedupe) Seen(msg string) bool {
	return d.seen.Seen(hashString(msg))
}

func hashString(s string) uint64 {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString(s)
	return xxhash.Sum64(buf.Bytes())
}
