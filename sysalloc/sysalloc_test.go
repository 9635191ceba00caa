/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sysalloc

import (
	"errors"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, size int) *Arena {
	t.Helper()
	a, err := NewArena(make([]byte, size))
	require.NoError(t, err)
	return a
}

func overlap(a, b []byte) bool {
	a0 := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	b0 := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	return a0 < b0+uintptr(cap(b)) && b0 < a0+uintptr(cap(a))
}

func TestNewArena(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		min     int
		max     int
		wantErr bool
	}{
		{"default", 512 << 10, DefaultArenaMinBlock, DefaultArenaMaxBlock, false},
		{"multi_root", 2 << 20, DefaultArenaMinBlock, DefaultArenaMaxBlock, false},
		{"same_min_max", 4096, 4096, 4096, false},
		{"min_not_pow2", 64 << 10, 1000, 64 << 10, true},
		{"max_not_pow2", 64 << 10, 1024, 60000, true},
		{"min_gt_max", 64 << 10, 8192, 4096, true},
		{"not_multiple", 100 << 10, 1024, 64 << 10, true},
		{"too_small", 32 << 10, 1024, 64 << 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArenaWithBlockSize(make([]byte, tt.size), tt.min, tt.max)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestArenaAllocFree(t *testing.T) {
	a := newTestArena(t, 512<<10)
	total := a.Available()
	require.Equal(t, 512<<10, total)

	b1, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, 100, len(b1))
	assert.Equal(t, DefaultArenaMinBlock, cap(b1))

	b2, err := a.Alloc(DefaultArenaMinBlock + 1)
	require.NoError(t, err)
	assert.Equal(t, 2*DefaultArenaMinBlock, cap(b2))
	assert.False(t, overlap(b1, b2))

	a.Free(b1)
	a.Free(b2)
	assert.Equal(t, total, a.Available()) // fully merged back
}

func TestArenaOutOfMemory(t *testing.T) {
	a := newTestArena(t, 512<<10)

	_, err := a.Alloc(DefaultArenaMaxBlock + 1)
	require.True(t, errors.Is(err, ErrOutOfMemory))

	_, err = a.Alloc(0)
	require.True(t, errors.Is(err, ErrInvalidSize))

	b, err := a.Alloc(DefaultArenaMaxBlock)
	require.NoError(t, err)
	_, err = a.Alloc(1)
	require.True(t, errors.Is(err, ErrOutOfMemory))

	a.Free(b)
	b, err = a.Alloc(1)
	require.NoError(t, err)
	a.Free(b)
}

func TestArenaRandom(t *testing.T) {
	a := newTestArena(t, 1<<20)
	total := a.Available()
	var live [][]byte
	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rand.Intn(2) == 0 {
			j := rand.Intn(len(live))
			a.Free(live[j])
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		b, err := a.Alloc(1 + rand.Intn(64<<10))
		if err != nil {
			require.True(t, errors.Is(err, ErrOutOfMemory))
			continue
		}
		for _, x := range live {
			require.False(t, overlap(x, b))
		}
		live = append(live, b)
	}
	for _, b := range live {
		a.Free(b)
	}
	require.Equal(t, total, a.Available())
}

func TestArenaFreePanics(t *testing.T) {
	a := newTestArena(t, 512<<10)
	a.Free(nil)

	assert.PanicsWithValue(t, "arena: block not in arena", func() {
		a.Free(make([]byte, 4096))
	})

	b, err := a.Alloc(10)
	require.NoError(t, err)
	a.Free(b)
	assert.PanicsWithValue(t, "arena: double free", func() { a.Free(b) })

	b, err = a.Alloc(10)
	require.NoError(t, err)
	assert.PanicsWithValue(t, "arena: invalid block size", func() { a.Free(b[:10:20]) })
}

func TestArenaDoubleFreeAfterMerge(t *testing.T) {
	a := newTestArena(t, 512<<10)
	x, err := a.Alloc(10)
	require.NoError(t, err)
	y, err := a.Alloc(10)
	require.NoError(t, err)

	// y merges with x back into one 512KB block, so y no longer starts a free block
	a.Free(y)
	a.Free(x)
	require.Equal(t, 512<<10, a.Available())
	assert.PanicsWithValue(t, "arena: double free", func() { a.Free(y) })
	require.Equal(t, 512<<10, a.Available())

	z, err := a.Alloc(512 << 10)
	require.NoError(t, err)
	a.Free(z)
}

func TestReallocPreservesContents(t *testing.T) {
	arena := newTestArena(t, 512<<10)
	for name, a := range map[string]Allocator{
		"heap":   Heap,
		"cached": Cached,
		"mmap":   NewMmap(),
		"arena":  arena,
	} {
		t.Run(name, func(t *testing.T) {
			b, err := a.Alloc(100)
			require.NoError(t, err)
			require.Equal(t, 100, len(b))
			for i := range b {
				b[i] = byte(i)
			}

			b, err = a.Realloc(b, 50) // shrink in place
			require.NoError(t, err)
			require.Equal(t, 50, len(b))

			b, err = a.Realloc(b[:cap(b)], 100<<10) // grow
			require.NoError(t, err)
			require.Equal(t, 100<<10, len(b))
			for i := 0; i < 50; i++ {
				require.Equal(t, byte(i), b[i])
			}
			a.Free(b[:cap(b)])

			_, err = a.Alloc(-1)
			require.True(t, errors.Is(err, ErrInvalidSize))
		})
	}
}

func TestDefault(t *testing.T) {
	require.Equal(t, Heap, Default())
}
