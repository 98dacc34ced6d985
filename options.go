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

// option provide an interface to do work on Map while it is being created.
type option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash hashFn[K]
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// The function must return the same value for equal keys for the lifetime of
// the map. Any Equivalent type used to look up keys in the map must hash
// consistently with it.
func WithHash[K comparable, V any](hash func(key *K, seed uintptr) uintptr) option[K, V] {
	return hashOption[K, V]{hash}
}

// WithStringHash is an option to hash string keys with StringHash, which
// allows looking them up through a Bytes view without converting the bytes
// into a string.
func WithStringHash[K ~string, V any]() option[K, V] {
	return hashOption[K, V]{StringHash[K]}
}

// Allocator specifies an interface for allocating and releasing the bucket
// arrays used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that bucket
// arrays be freed then Map.Close must be called in order to ensure Free is
// called for the final array.
type Allocator[K comparable, V any] interface {
	// Alloc should return a slice equivalent to make([][]Slot[K,V], n).
	Alloc(n int) [][]Slot[K, V]

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc. The buckets
	// in the slice have already been emptied.
	Free(v [][]Slot[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) Alloc(n int) [][]Slot[K, V] {
	return make([][]Slot[K, V], n)
}

func (defaultAllocator[K, V]) Free(_ [][]Slot[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
