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

import "fmt"

// Entry is the result of a single lookup of a key in a Map. It is either
// occupied, referencing the slot holding the key, or vacant, holding the key
// and the index of the bucket the key routes to so that it can be inserted
// without hashing it again.
//
// An Entry is only valid until the map is next modified structurally. Its
// terminal operations (OrInsert, OrInsertWith, OrDefault) are such a
// modification when the entry is vacant, so an Entry supports exactly one of
// them.
type Entry[K comparable, V any] struct {
	m *Map[K, V]
	// slot is non-nil iff the entry is occupied.
	slot   *Slot[K, V]
	key    K
	bucket int
	gen    uint64
}

// Entry returns the Entry for key. Entry may grow the map even if the
// returned entry ends up unused, since the key must be routed against the
// bucket count it would be inserted under.
func (m *Map[K, V]) Entry(key K) Entry[K, V] {
	m.maybeGrow()

	h := m.hash(noescape(&key), m.seed)
	i := bucketIndex(h, len(m.buckets))
	if debug {
		fmt.Printf("entry(%v): hash=%x bucket=%d/%d\n", key, h, i, len(m.buckets))
	}

	e := Entry[K, V]{m: m, key: key, bucket: i, gen: m.gen}
	b := m.buckets[i]
	for j := range b {
		if b[j].key == key {
			e.slot = &b[j]
			break
		}
	}
	return e
}

// Key returns the key the entry was looked up with.
func (e Entry[K, V]) Key() K {
	return e.key
}

// Occupied reports whether the map held the key when the entry was created.
func (e Entry[K, V]) Occupied() bool {
	return e.slot != nil
}

// OrInsert returns a pointer to the value of an occupied entry, or inserts
// value for a vacant one and returns a pointer to the inserted value. The
// pointer is valid until the map is next modified structurally.
func (e Entry[K, V]) OrInsert(value V) *V {
	e.check()
	if e.slot != nil {
		return &e.slot.value
	}
	return e.insert(value)
}

// OrInsertWith is like OrInsert, but the value to insert is produced by
// calling f. f is called only if the entry is vacant.
func (e Entry[K, V]) OrInsertWith(f func() V) *V {
	e.check()
	if e.slot != nil {
		return &e.slot.value
	}
	return e.insert(f())
}

// OrDefault is like OrInsert with the zero value of V.
func (e Entry[K, V]) OrDefault() *V {
	var zero V
	return e.OrInsert(zero)
}

// AndModify calls f with a pointer to the value of an occupied entry so it can
// be updated in place. f is not called for a vacant entry. The entry is
// returned so that a terminal operation can follow:
//
//	m.Entry(k).AndModify(func(v *int) { *v++ }).OrInsert(1)
func (e Entry[K, V]) AndModify(f func(value *V)) Entry[K, V] {
	e.check()
	if e.slot != nil {
		f(&e.slot.value)
	}
	return e
}

func (e Entry[K, V]) insert(value V) *V {
	m := e.m
	b := append(m.buckets[e.bucket], Slot[K, V]{key: e.key, value: value})
	m.buckets[e.bucket] = b
	m.used++
	m.gen++
	if debug {
		fmt.Printf("entry(inserting): bucket=%d index=%d used=%d\n", e.bucket, len(b)-1, m.used)
	}
	m.checkInvariants()
	return &b[len(b)-1].value
}

// check panics if the entry did not come from Map.Entry or if the map has
// changed since it did.
func (e Entry[K, V]) check() {
	if e.m == nil {
		panic("chainmap: use of zero Entry")
	}
	if e.gen != e.m.gen {
		panic(fmt.Sprintf("chainmap: stale entry for key %v (gen %d, map gen %d)",
			e.key, e.gen, e.m.gen))
	}
}
