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

package queue

// Iterator walks a Queue one sequence number at a time. It carries no lock
// of its own; every method reaches back into the owning Queue.
type Iterator[T any] struct {
	q   *Queue[T]
	seq uint64
}

// Seq reports the sequence number this iterator currently points at.
func (it *Iterator[T]) Seq() uint64 {
	return it.seq
}

// Next advances the iterator to the following sequence number.
func (it *Iterator[T]) Next() {
	it.seq++
}

// Item returns the slot at the iterator's current sequence without
// blocking. ok is false if that slot hasn't arrived (or has already been
// popped).
func (it *Iterator[T]) Item() (item T, ok bool) {
	it.q.mu.Lock()
	defer it.q.mu.Unlock()

	idx, ok := it.q.indexForLocked(it.seq)
	if !ok {
		var zero T
		return zero, false
	}
	return it.q.items[idx], true
}

// ItemHasArrived reports whether the slot at the iterator's current
// sequence is present, without blocking.
func (it *Iterator[T]) ItemHasArrived() bool {
	it.q.mu.Lock()
	defer it.q.mu.Unlock()

	_, ok := it.q.indexForLocked(it.seq)
	return ok
}

// GetItemBlockOrNil blocks until either the slot at the iterator's current
// sequence arrives, or blocking mode is turned off on the queue, in which
// case it returns nil immediately (and on every subsequent call, until
// blocking mode is restored).
func (it *Iterator[T]) GetItemBlockOrNil() *T {
	it.q.mu.Lock()
	defer it.q.mu.Unlock()

	for {
		if idx, ok := it.q.indexForLocked(it.seq); ok {
			item := it.q.items[idx]
			return &item
		}
		if !it.q.blocking {
			return nil
		}
		it.q.cond.Wait()
	}
}
