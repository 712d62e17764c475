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

// UpdateBatch collects a Set() call's field/value pairs into three
// disjoint layers: durable (replicated through the server via VHSET/VHDEL
// inside a MULTI/EXEC block), transient (broadcast but never persisted),
// and local (kept only in this process's overlay, never sent anywhere).
// An empty value in the durable or transient layer selects a delete
// rather than a set.
type UpdateBatch struct {
	durable   map[string]string
	transient map[string]string
	local     map[string]string
}

// NewUpdateBatch returns an empty UpdateBatch ready for SetDurable/
// SetTransient/SetLocal calls.
func NewUpdateBatch() *UpdateBatch {
	return &UpdateBatch{}
}

// SetDurable stages field=value to be written through the server via
// VHSET (or VHDEL, if value is empty) inside the batch's MULTI/EXEC block.
func (b *UpdateBatch) SetDurable(field, value string) *UpdateBatch {
	if b.durable == nil {
		b.durable = make(map[string]string)
	}
	b.durable[field] = value
	return b
}

// SetTransient stages field=value to be broadcast to other replicas without
// being persisted server-side.
func (b *UpdateBatch) SetTransient(field, value string) *UpdateBatch {
	if b.transient == nil {
		b.transient = make(map[string]string)
	}
	b.transient[field] = value
	return b
}

// SetLocal stages field=value to be applied only to this process's local
// overlay; it never touches the network.
func (b *UpdateBatch) SetLocal(field, value string) *UpdateBatch {
	if b.local == nil {
		b.local = make(map[string]string)
	}
	b.local[field] = value
	return b
}

// IsEmpty reports whether the batch has no staged entries in any layer.
func (b *UpdateBatch) IsEmpty() bool {
	return len(b.durable) == 0 && len(b.transient) == 0 && len(b.local) == 0
}
