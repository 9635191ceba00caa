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
	"fmt"
	"math/bits"
	"sync"
	"unsafe"
)

const (
	// DefaultArenaMinBlock is the default minimum block size of an Arena (4KB).
	DefaultArenaMinBlock = 4 << 10

	// DefaultArenaMaxBlock is the default maximum block size of an Arena (512KB).
	DefaultArenaMaxBlock = 512 << 10
)

// Arena is a bounded buddy allocator over a caller-provided slab.
// Unlike Heap it reports ErrOutOfMemory once the slab is exhausted.
// Freed blocks are merged with their buddies eagerly.
// It's safe for concurrent use.
type Arena struct {
	mu sync.Mutex

	buf  []byte
	base uintptr

	minBlock int
	minShift int
	maxOrder int

	// free holds the offsets of free blocks for each order.
	free [][]int

	// heads has one entry per minBlock slot: order+1 if a free block of that order starts there, 0 otherwise.
	heads []uint8
}

// NewArena creates an Arena with default block sizes (4KB min, 512KB max).
// len(buf) MUST be a multiple of DefaultArenaMaxBlock.
func NewArena(buf []byte) (*Arena, error) {
	return NewArenaWithBlockSize(buf, DefaultArenaMinBlock, DefaultArenaMaxBlock)
}

// NewArenaWithBlockSize creates an Arena with custom block sizes.
// Both minBlock and maxBlock must be powers of two, minBlock <= maxBlock,
// and len(buf) must be a non-zero multiple of maxBlock.
func NewArenaWithBlockSize(buf []byte, minBlock, maxBlock int) (*Arena, error) {
	if minBlock <= 0 || minBlock&(minBlock-1) != 0 {
		return nil, fmt.Errorf("minBlock must be a power of two, got %d", minBlock)
	}
	if maxBlock <= 0 || maxBlock&(maxBlock-1) != 0 {
		return nil, fmt.Errorf("maxBlock must be a power of two, got %d", maxBlock)
	}
	if minBlock > maxBlock {
		return nil, fmt.Errorf("minBlock (%d) must be <= maxBlock (%d)", minBlock, maxBlock)
	}
	if len(buf) < maxBlock || len(buf)%maxBlock != 0 {
		return nil, fmt.Errorf("arena size must be a multiple of %d and >= %d, got %d",
			maxBlock, maxBlock, len(buf))
	}
	minShift := bits.TrailingZeros(uint(minBlock))
	maxOrder := bits.TrailingZeros(uint(maxBlock)) - minShift
	a := &Arena{
		buf:      buf,
		base:     uintptr(unsafe.Pointer(&buf[0])),
		minBlock: minBlock,
		minShift: minShift,
		maxOrder: maxOrder,
		free:     make([][]int, maxOrder+1),
		heads:    make([]uint8, len(buf)>>minShift),
	}
	for off := 0; off < len(buf); off += maxBlock {
		a.push(maxOrder, off)
	}
	return a, nil
}

// Alloc implements Allocator.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	order := a.orderOf(n)
	if order > a.maxOrder {
		return nil, fmt.Errorf("%w: %d bytes exceeds max block %d", ErrOutOfMemory, n, a.minBlock<<a.maxOrder)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	o := order
	for o <= a.maxOrder && len(a.free[o]) == 0 {
		o++
	}
	if o > a.maxOrder {
		return nil, fmt.Errorf("%w: no free block for %d bytes", ErrOutOfMemory, n)
	}
	off := a.pop(o)
	// split, the left half keeps the offset
	for o > order {
		o--
		a.push(o, off+a.minBlock<<o)
	}
	return a.buf[off : off+n : off+a.minBlock<<order], nil
}

// Free implements Allocator.
// It panics if b was not allocated from a.
func (a *Arena) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	p := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if p < a.base || p >= a.base+uintptr(len(a.buf)) {
		panic("arena: block not in arena")
	}
	off := int(p - a.base)
	order := a.orderOf(cap(b))
	if order > a.maxOrder || a.minBlock<<order != cap(b) {
		panic("arena: invalid block size")
	}
	if off&(cap(b)-1) != 0 {
		panic("arena: misaligned block")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.isFree(off, order) {
		panic("arena: double free")
	}
	for order < a.maxOrder {
		buddy := off ^ (a.minBlock << order)
		if a.heads[buddy>>a.minShift] != uint8(order+1) {
			break
		}
		a.remove(order, buddy)
		off &^= a.minBlock << order
		order++
	}
	a.push(order, off)
}

// Realloc implements Allocator.
func (a *Arena) Realloc(b []byte, n int) ([]byte, error) {
	return grow(a, b, n)
}

// Available returns the total free bytes.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for order, l := range a.free {
		n += len(l) * (a.minBlock << order)
	}
	return n
}

// orderOf returns the smallest order whose block fits n bytes.
func (a *Arena) orderOf(n int) int {
	if n <= a.minBlock {
		return 0
	}
	return bits.Len(uint(n-1)) - a.minShift
}

// isFree reports whether the block of the given order at off lies within a free block,
// either starting at off or in a buddy it has been merged into.
func (a *Arena) isFree(off, order int) bool {
	if a.heads[off>>a.minShift] != 0 {
		return true
	}
	for o := order + 1; o <= a.maxOrder; o++ {
		start := off &^ (a.minBlock<<o - 1)
		if int(a.heads[start>>a.minShift]) > o {
			return true
		}
	}
	return false
}

func (a *Arena) push(order, off int) {
	a.free[order] = append(a.free[order], off)
	a.heads[off>>a.minShift] = uint8(order + 1)
}

func (a *Arena) pop(order int) int {
	l := a.free[order]
	off := l[len(l)-1]
	a.free[order] = l[:len(l)-1]
	a.heads[off>>a.minShift] = 0
	return off
}

func (a *Arena) remove(order, off int) {
	l := a.free[order]
	for i, v := range l {
		if v == off {
			l[i] = l[len(l)-1]
			a.free[order] = l[:len(l)-1]
			break
		}
	}
	a.heads[off>>a.minShift] = 0
}
