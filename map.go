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

// Package chainmap is a Go implementation of a separately chained hash table
// with an Entry API for single-lookup insert-or-update.
//
// # Layout
//
// A Map is an array of buckets. Each bucket is a slice of key/value slots in
// no particular order. A key lives in bucket hash(key) % len(buckets), and
// within a bucket keys are pairwise distinct. Lookups hash the key once and
// then scan a single bucket comparing keys with ==.
//
//	 buckets (len=4)
//	+---+
//	| 0 | --> [(k3,v3) (k7,v7)]
//	+---+
//	| 1 | --> []
//	+---+
//	| 2 | --> [(k2,v2)]
//	+---+
//	| 3 | --> [(k1,v1) (k5,v5) (k9,v9)]
//	+---+
//
// Deletion swaps the last slot of the bucket into the deleted slot and
// truncates the bucket. Bucket order is not part of the contract so nothing
// is lost by reordering.
//
// # Growth
//
// A new Map has no buckets at all. Before every insertion (Put, or Entry
// which may insert) the map grows if it has no buckets or if the insertion
// would push the load factor above 3/4. Growth doubles the bucket count (0
// grows to 1) and rehashes every slot into the new array. The bucket count
// is therefore always zero or a power of two. Maps never shrink: deleting
// entries leaves the bucket array in place.
//
// # Entries
//
// Map.Entry locates the slot for a key once and returns an Entry which is
// either occupied (it points at the stored slot) or vacant (it remembers the
// key and the bucket the key routes to). The Entry methods then update or
// insert without a second hash or scan:
//
//	m.Entry("mana").AndModify(func(v *int) { *v += 201 }).OrInsert(100)
//
// An Entry is good for exactly one terminal operation (OrInsert,
// OrInsertWith, OrDefault). Using an Entry after the map has been modified
// structurally, including by the Entry's own insertion, panics.
//
// # Lookups by equivalent keys
//
// GetEquivalent, ContainsEquivalent, DeleteEquivalent and MustGetEquivalent
// accept any Equivalent[K], which hashes and compares like a K without being
// one. Bytes is the stock []byte view of string keys for maps created with
// WithStringHash:
//
//	m := chainmap.New[string, int](chainmap.WithStringHash[string, int]())
//	m.Put("health", 100)
//	v, ok := chainmap.GetEquivalent(m, chainmap.Bytes[string](buf))
package chainmap

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unsafe"
)

const (
	debug = false

	// The map grows when an insertion would make
	// used > len(buckets)*maxLoadNum/maxLoadDen.
	maxLoadNum = 3
	maxLoadDen = 4
)

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Map is an unordered map from keys to values with Put, Get, Delete, Entry,
// and All operations. By default, a Map[K,V] uses the same hash function as
// Go's builtin map[K]V, though a different hash function can be specified
// using the WithHash option.
//
// The zero value for a Map is an empty map ready to use.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function to each keys of type K.
	hash hashFn[K]
	seed uintptr
	// The allocator to use for the bucket arrays.
	allocator Allocator[K, V]
	// The bucket array. nil until the first insertion, a power of two in
	// length afterwards.
	buckets [][]Slot[K, V]
	// The number of slots across all buckets (i.e. the number of elements in
	// the map). Maintained incrementally.
	used int
	// gen is incremented on every structural change: inserting or removing a
	// slot, growing, clearing. Entries and iterators use it to detect that
	// the map changed underneath them.
	gen uint64
}

// New constructs a new, empty Map. No buckets are allocated until the first
// insertion.
func New[K comparable, V any](options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(options...)
	return m
}

// Init initializes a Map with the specified options, discarding any entries
// it held and releasing its bucket array to the allocator it was using. It is
// not necessary to call Init on a zero Map unless options are required.
func (m *Map[K, V]) Init(options ...option[K, V]) {
	if m.allocator != nil {
		m.release()
	}
	*m = Map[K, V]{
		hash:      defaultHash[K],
		seed:      uintptr(rand.Uint64()),
		allocator: defaultAllocator[K, V]{},
		gen:       m.gen + 1,
	}
	for _, op := range options {
		op.apply(m)
	}
	m.checkInvariants()
}

// Close closes the map, releasing any memory back to its configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[K, V]) Close() {
	m.release()
	m.allocator = nil
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists. The previous value is returned with
// replaced=true in the latter case.
func (m *Map[K, V]) Put(key K, value V) (prev V, replaced bool) {
	// The growth check happens before routing the key: growing changes the
	// bucket the key belongs in.
	m.maybeGrow()

	h := m.hash(noescape(&key), m.seed)
	i := bucketIndex(h, len(m.buckets))
	if debug {
		fmt.Printf("put(%v): hash=%x bucket=%d/%d\n", key, h, i, len(m.buckets))
	}

	b := m.buckets[i]
	for j := range b {
		if b[j].key == key {
			if debug {
				fmt.Printf("put(updating): bucket=%d index=%d\n", i, j)
			}
			prev, b[j].value = b[j].value, value
			m.checkInvariants()
			return prev, true
		}
	}

	m.buckets[i] = append(b, Slot[K, V]{key: key, value: value})
	m.used++
	m.gen++
	if debug {
		fmt.Printf("put(inserting): bucket=%d index=%d used=%d\n", i, len(b), m.used)
	}
	m.checkInvariants()
	return prev, false
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if b, i := m.lookup(key); i >= 0 {
		return m.buckets[b][i].value, true
	}
	return value, false
}

// Contains reports whether the map holds the specified key.
func (m *Map[K, V]) Contains(key K) bool {
	_, i := m.lookup(key)
	return i >= 0
}

// MustGet retrieves the value from the map for the specified key. Unlike Get,
// it panics if the key is not present.
func (m *Map[K, V]) MustGet(key K) V {
	b, i := m.lookup(key)
	if i < 0 {
		panic(fmt.Sprintf("chainmap: key not found: %v", key))
	}
	return m.buckets[b][i].value
}

// Delete deletes the entry corresponding to the specified key from the map
// and returns its value. ok is false, and the map unchanged, if the key is
// not present.
func (m *Map[K, V]) Delete(key K) (value V, ok bool) {
	b, i := m.lookup(key)
	if i < 0 {
		if debug {
			fmt.Printf("delete(%v): not found\n", key)
		}
		return value, false
	}
	return m.removeAt(b, i), true
}

// Clear deletes all entries from the map. The bucket array is retained.
func (m *Map[K, V]) Clear() {
	for i := range m.buckets {
		clear(m.buckets[i])
		m.buckets[i] = m.buckets[i][:0]
	}
	m.used = 0
	m.gen++
	m.checkInvariants()
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// IsEmpty reports whether the map has no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.used == 0
}

// Clone returns a copy of the map made by reinserting every entry into a new
// map with the same hash function and allocator. Keys and values are copied
// by assignment.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{
		hash:      m.hash,
		seed:      m.seed,
		allocator: m.allocator,
	}
	for i := range m.buckets {
		for _, s := range m.buckets[i] {
			c.Put(s.key, s.value)
		}
	}
	return c
}

// String returns the entries of the map formatted as {k1:v1 k2:v2}, in
// iteration order.
func (m *Map[K, V]) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	sep := ""
	m.All(func(k K, v V) bool {
		fmt.Fprintf(&buf, "%s%v:%v", sep, k, v)
		sep = " "
		return true
	})
	buf.WriteByte('}')
	return buf.String()
}

// bucketCount returns the number of buckets in the map.
func (m *Map[K, V]) bucketCount() int {
	return len(m.buckets)
}

// bucketIndex routes hash value h to one of n buckets. Routing against zero
// buckets means the growth policy was bypassed.
func bucketIndex(h uintptr, n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("chainmap: routing hash %x against %d buckets", h, n))
	}
	return int(h % uintptr(n))
}

// lookup returns the bucket and position of key. pos is -1 if the key is not
// present, and b is also -1 if the map has no buckets.
func (m *Map[K, V]) lookup(key K) (b, pos int) {
	// A map without buckets has nothing to find, and can't be routed.
	if len(m.buckets) == 0 {
		return -1, -1
	}
	b = bucketIndex(m.hash(noescape(&key), m.seed), len(m.buckets))
	slots := m.buckets[b]
	for i := range slots {
		if slots[i].key == key {
			return b, i
		}
	}
	return b, -1
}

// removeAt removes the slot at position i of bucket b by moving the last slot
// of the bucket into its place.
func (m *Map[K, V]) removeAt(b, i int) V {
	slots := m.buckets[b]
	value := slots[i].value
	last := len(slots) - 1
	slots[i] = slots[last]
	// Zero the vacated slot so the GC can reclaim what it referenced.
	slots[last] = Slot[K, V]{}
	m.buckets[b] = slots[:last]
	m.used--
	m.gen++
	if debug {
		fmt.Printf("delete: bucket=%d index=%d used=%d\n", b, i, m.used)
	}
	m.checkInvariants()
	return value
}

// maybeGrow grows the bucket array if the map has no buckets or if one more
// entry would exceed the maximum load factor. It must be called before a key
// is routed for insertion.
func (m *Map[K, V]) maybeGrow() {
	n := len(m.buckets)
	if n > 0 && m.used+1 <= n*maxLoadNum/maxLoadDen {
		return
	}
	if n == 0 {
		// A zero Map has not been through Init. Nothing is stored yet, so
		// the defaults can still be installed.
		if m.hash == nil {
			m.hash = defaultHash[K]
			m.seed = uintptr(rand.Uint64())
		}
		if m.allocator == nil {
			m.allocator = defaultAllocator[K, V]{}
		}
	}
	m.resize(max(1, 2*n))
}

// resize replaces the bucket array with one of newCount buckets, moving every
// slot into the bucket it routes to under the new count.
func (m *Map[K, V]) resize(newCount int) {
	oldBuckets := m.buckets
	newBuckets := m.allocator.Alloc(newCount)
	if debug {
		fmt.Printf("resize: buckets=%d->%d used=%d\n", len(oldBuckets), newCount, m.used)
	}

	for i := range oldBuckets {
		for j := range oldBuckets[i] {
			s := &oldBuckets[i][j]
			b := bucketIndex(m.hash(noescape(&s.key), m.seed), newCount)
			newBuckets[b] = append(newBuckets[b], *s)
		}
		clear(oldBuckets[i])
		oldBuckets[i] = nil
	}

	m.buckets = newBuckets
	m.gen++
	if oldBuckets != nil {
		m.allocator.Free(oldBuckets)
	}
	m.checkInvariants()
}

// release returns the map to its empty, bucketless state, handing the bucket
// array back to the allocator.
func (m *Map[K, V]) release() {
	if m.buckets != nil {
		for i := range m.buckets {
			clear(m.buckets[i])
			m.buckets[i] = nil
		}
		m.allocator.Free(m.buckets)
		m.buckets = nil
	}
	m.used = 0
	m.gen++
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		n := len(m.buckets)
		if n&(n-1) != 0 {
			panic(fmt.Sprintf("invariant failed: bucket count %d is not a power of two\n%s",
				n, m.debugString()))
		}

		// Every slot must route to the bucket it is in and keys must be
		// distinct within a bucket. Count the slots as we go.
		var used int
		for i, b := range m.buckets {
			for j := range b {
				s := &b[j]
				if r := bucketIndex(m.hash(noescape(&s.key), m.seed), n); r != i {
					panic(fmt.Sprintf("invariant failed: bucket(%d)[%d]: %v routes to bucket %d\n%s",
						i, j, s.key, r, m.debugString()))
				}
				for k := j + 1; k < len(b); k++ {
					if b[k].key == s.key {
						panic(fmt.Sprintf("invariant failed: bucket(%d): %v at %d and %d\n%s",
							i, s.key, j, k, m.debugString()))
					}
				}
				used++
			}
		}

		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "buckets=%d  used=%d  gen=%d\n", len(m.buckets), m.used, m.gen)
	for i, b := range m.buckets {
		fmt.Fprintf(&buf, "  %4d:", i)
		if len(b) == 0 {
			buf.WriteString(" empty")
		}
		for j := range b {
			s := &b[j]
			fmt.Fprintf(&buf, " %v [h=%x]", s.key, m.hash(noescape(&s.key), m.seed))
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// noescape hides a pointer from escape analysis. noescape is the identity
// function but escape analysis doesn't think the output depends on the input.
// noescape is inlined and currently compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape[T any](p *T) *T {
	x := uintptr(unsafe.Pointer(p))
	return (*T)(unsafe.Pointer(x ^ 0))
}
