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
	"testing"

	"github.com/stretchr/testify/require"
)

type point struct {
	x, y int
}

func TestDefaultHash(t *testing.T) {
	m := New[point, string]()
	for i := 0; i < 100; i++ {
		m.Put(point{i, -i}, fmt.Sprint(i))
	}
	// Equal keys hash identically for the life of the map, including across
	// growth, and the hash depends on the whole key.
	for i := 0; i < 100; i++ {
		p := point{i, -i}
		require.Equal(t, m.hash(&p, m.seed), m.hash(&point{i, -i}, m.seed))
		require.Equal(t, fmt.Sprint(i), m.MustGet(p))
		require.False(t, m.Contains(point{-i - 1, i}))
	}
}

func TestStringHash(t *testing.T) {
	s := "health"
	b := Bytes[string]("health")
	for _, seed := range []uintptr{0, 1, 0xdeadbeef} {
		require.Equal(t, StringHash(&s, seed), b.Hash(seed))
	}
	require.True(t, b.Equal(&s))
	other := "healt"
	require.False(t, b.Equal(&other))

	type name string
	n := name("health")
	require.Equal(t, StringHash(&s, 7), StringHash(&n, 7))
}

func TestEquivalent(t *testing.T) {
	m := New[string, int](WithStringHash[string, int]())
	for i := 0; i < 100; i++ {
		m.Put(fmt.Sprintf("key-%d", i), i)
	}

	for i := 0; i < 100; i++ {
		buf := []byte(fmt.Sprintf("key-%d", i))
		v, ok := GetEquivalent(m, Bytes[string](buf))
		require.True(t, ok)
		require.EqualValues(t, i, v)
		require.True(t, ContainsEquivalent(m, Bytes[string](buf)))
		require.EqualValues(t, i, MustGetEquivalent(m, Bytes[string](buf)))
	}

	missing := Bytes[string]("key-100")
	_, ok := GetEquivalent(m, missing)
	require.False(t, ok)
	require.False(t, ContainsEquivalent(m, missing))
	_, ok = DeleteEquivalent(m, missing)
	require.False(t, ok)
	require.Panics(t, func() {
		MustGetEquivalent(m, missing)
	})

	v, ok := DeleteEquivalent(m, Bytes[string]("key-7"))
	require.True(t, ok)
	require.EqualValues(t, 7, v)
	require.EqualValues(t, 99, m.Len())
	require.False(t, m.Contains("key-7"))
	require.False(t, ContainsEquivalent(m, Bytes[string]("key-7")))
}

func TestEquivalentEmpty(t *testing.T) {
	var m Map[string, int]
	b := Bytes[string]("a")
	_, ok := GetEquivalent(&m, b)
	require.False(t, ok)
	require.False(t, ContainsEquivalent(&m, b))
	_, ok = DeleteEquivalent(&m, b)
	require.False(t, ok)
}

func TestEquivalentAllocs(t *testing.T) {
	m := New[string, int](WithStringHash[string, int]())
	m.Put("defence", 42)
	buf := []byte("defence")

	allocs := testing.AllocsPerRun(100, func() {
		if _, ok := GetEquivalent(m, Bytes[string](buf)); !ok {
			panic("not found")
		}
	})
	require.EqualValues(t, 0, allocs)
}
