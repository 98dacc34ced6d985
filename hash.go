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
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// hashFn hashes a key with the per-map seed.
type hashFn[K any] func(key *K, seed uintptr) uintptr

// processSeed seeds the default hasher. Hash values are therefore stable for
// the lifetime of the process, but not across processes.
var processSeed = maphash.MakeSeed()

// defaultHash is the hash function used when no WithHash option is given. It
// is the same hash Go uses for its builtin map[K]V, mixed with the per-map
// seed.
func defaultHash[K comparable](key *K, seed uintptr) uintptr {
	return uintptr(maphash.Comparable(processSeed, *key) ^ uint64(seed))
}

// StringHash hashes the bytes of a string key using xxhash. It is the hash
// function installed by WithStringHash and is consistent with Bytes.Hash.
func StringHash[K ~string](key *K, seed uintptr) uintptr {
	return uintptr(xxhash.Sum64String(string(*key)) ^ uint64(seed))
}

// Equivalent is implemented by lookup keys that stand in for a stored key of
// type K without being one, such as a []byte view of a string key. Hash must
// return the value the map's hash function returns for every K the lookup
// key is Equal to.
type Equivalent[K any] interface {
	Hash(seed uintptr) uintptr
	Equal(key *K) bool
}

// Bytes is a []byte view of a string key. It can be used to look up keys in a
// map created with WithStringHash without allocating a string.
type Bytes[K ~string] []byte

// Hash implements Equivalent.
func (b Bytes[K]) Hash(seed uintptr) uintptr {
	return uintptr(xxhash.Sum64(b) ^ uint64(seed))
}

// Equal implements Equivalent.
func (b Bytes[K]) Equal(key *K) bool {
	return string(b) == string(*key)
}

// lookupEquivalent returns the bucket and position of the pair whose key is
// equivalent to q. pos is -1 if there is no such pair.
func lookupEquivalent[K comparable, V any, Q Equivalent[K]](m *Map[K, V], q Q) (b, pos int) {
	if len(m.buckets) == 0 {
		return -1, -1
	}
	b = bucketIndex(q.Hash(m.seed), len(m.buckets))
	slots := m.buckets[b]
	for i := range slots {
		if q.Equal(&slots[i].key) {
			return b, i
		}
	}
	return b, -1
}

// GetEquivalent retrieves the value for the key equivalent to q, returning
// ok=false if there is no such key.
func GetEquivalent[K comparable, V any, Q Equivalent[K]](m *Map[K, V], q Q) (value V, ok bool) {
	if b, i := lookupEquivalent(m, q); i >= 0 {
		return m.buckets[b][i].value, true
	}
	return value, false
}

// ContainsEquivalent reports whether the map holds a key equivalent to q.
func ContainsEquivalent[K comparable, V any, Q Equivalent[K]](m *Map[K, V], q Q) bool {
	_, i := lookupEquivalent(m, q)
	return i >= 0
}

// DeleteEquivalent deletes the entry whose key is equivalent to q, returning
// its value. ok is false if there was no such entry.
func DeleteEquivalent[K comparable, V any, Q Equivalent[K]](m *Map[K, V], q Q) (value V, ok bool) {
	b, i := lookupEquivalent(m, q)
	if i < 0 {
		return value, false
	}
	return m.removeAt(b, i), true
}

// MustGetEquivalent is like GetEquivalent but panics if there is no key
// equivalent to q.
func MustGetEquivalent[K comparable, V any, Q Equivalent[K]](m *Map[K, V], q Q) V {
	v, ok := GetEquivalent(m, q)
	if !ok {
		panic(fmt.Sprintf("chainmap: key not found: %v", q))
	}
	return v
}
