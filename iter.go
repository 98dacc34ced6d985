// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chainmap

import (
	"fmt"
	"iter"
)

// Iterator walks the entries of a Map in bucket order, and within a bucket in
// slot order. Neither order is meaningful. The map must not be modified
// structurally while an Iterator is in use.
type Iterator[K comparable, V any] struct {
	m      *Map[K, V]
	gen    uint64
	bucket int
	pos    int
	cur    *Slot[K, V]
}

// Iterator returns a new Iterator positioned before the first entry of the
// map.
func (m *Map[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{m: m, gen: m.gen}
}

// Next advances the iterator to the next entry, skipping empty buckets. It
// returns false once every bucket has been visited. Next must be called
// before the first call to Key or Value.
func (it *Iterator[K, V]) Next() bool {
	if it.gen != it.m.gen {
		panic(fmt.Sprintf("chainmap: map modified during iteration (gen %d, map gen %d)",
			it.gen, it.m.gen))
	}
	for it.bucket < len(it.m.buckets) {
		b := it.m.buckets[it.bucket]
		if it.pos < len(b) {
			it.cur = &b[it.pos]
			it.pos++
			return true
		}
		it.bucket++
		it.pos = 0
	}
	it.cur = nil
	return false
}

// Key returns the key of the current entry, or the zero K if the iterator is
// not positioned at an entry.
func (it *Iterator[K, V]) Key() (k K) {
	if it.cur == nil {
		return k
	}
	return it.cur.key
}

// Value returns the value of the current entry, or the zero V if the iterator
// is not positioned at an entry.
func (it *Iterator[K, V]) Value() (v V) {
	if it.cur == nil {
		return v
	}
	return it.cur.value
}

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, All stops the iteration. All has the signature of a
// range-over-func iterator:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
//
// The map may not be modified structurally during iteration. Each call to
// All starts a fresh iteration.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	it := Iterator[K, V]{m: m, gen: m.gen}
	for it.Next() {
		if !yield(it.cur.key, it.cur.value) {
			return
		}
	}
}

// Keys returns an iterator over the keys of the map.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.All(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

// Values returns an iterator over the values of the map.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.All(func(_ K, v V) bool {
			return yield(v)
		})
	}
}

// Drain calls yield for each key and value present in the map, removing each
// entry from the map before yielding it. Drain consumes the map: when it
// returns, whether or not yield stopped the iteration early, the map is
// empty, has no buckets, and any entries not yet yielded are gone. yield may
// replace the values of keys not yet yielded, but Drain panics if yield
// modifies the map structurally.
func (m *Map[K, V]) Drain(yield func(key K, value V) bool) {
	defer m.release()

	for i := range m.buckets {
		b := m.buckets[i]
		for len(b) > 0 {
			last := len(b) - 1
			s := b[last]
			b[last] = Slot[K, V]{}
			b = b[:last]
			m.buckets[i] = b
			m.used--
			m.gen++
			gen := m.gen
			if !yield(s.key, s.value) {
				return
			}
			if gen != m.gen {
				panic(fmt.Sprintf("chainmap: map modified during iteration (gen %d, map gen %d)",
					gen, m.gen))
			}
		}
	}
}

// Insert puts each key and value from seq into the map, in order. Later
// duplicate keys overwrite earlier ones.
func (m *Map[K, V]) Insert(seq iter.Seq2[K, V]) {
	for k, v := range seq {
		m.Put(k, v)
	}
}

// Collect builds a new map from the keys and values in seq, as if by calling
// Put for each of them in order.
func Collect[K comparable, V any](seq iter.Seq2[K, V], options ...option[K, V]) *Map[K, V] {
	m := New[K, V](options...)
	m.Insert(seq)
	return m
}
