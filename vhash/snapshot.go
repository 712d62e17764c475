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

package vhash

import (
	json "github.com/goccy/go-json"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Snapshot is a point-in-time dump of a Hash's durable contents, used to
// warm-start a freshly constructed Hash before its first VHGETALL resilver
// completes. It is never treated as authoritative: the first real resilver
// always supersedes it wholesale.
type Snapshot struct {
	Revision uint64
	Contents map[string]string
}

// EncodeSnapshot serializes s as JSON and compresses the result with
// snappy.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "vhash: encode snapshot")
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "vhash: decompress snapshot")
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, "vhash: decode snapshot")
	}
	return s, nil
}

// Snapshot captures h's current durable contents and revision, suitable for
// EncodeSnapshot and a later warm start. It does not include the local or
// transient overlays, which are never durable by definition.
func (h *Hash) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	contents := make(map[string]string, len(h.contents))
	for k, v := range h.contents {
		contents[k] = v
	}
	return Snapshot{Revision: h.revision, Contents: contents}
}
