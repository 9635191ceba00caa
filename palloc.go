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

// Package palloc is a segregated size-class allocator for small, frequently churned buffers.
//
// Requests below 2048 bytes are served from per-class free lists of fixed-size blocks
// (16, 32, ... 2048 bytes) refilled by whole chunks; larger requests go straight to the
// system allocator. Every returned buffer is preceded by a 2-byte header holding the
// requested size, or 0xFFFF for large buffers, which is how Free and Realloc find their way back.
//
// Tips for usage:
//   - buf returned by Malloc may not be initialized with zeros.
//   - call Free when buf is no longer used, DO NOT use buf after calling Free.
//   - Free and Realloc MUST receive a buf whose start and cap are the ones Malloc or Realloc
//     returned. Reslicing len is fine, `buf[i:]` or `buf[:i:j]` is not.
//   - pooled memory is never returned to the system allocator.
package palloc

import (
	"fmt"
	"unsafe"

	"github.com/cloudwego/palloc/internal/freelist"
	"github.com/cloudwego/palloc/internal/sizeclass"
	"github.com/cloudwego/palloc/sysalloc"
)

// Threshold is the size from which requests bypass the pools.
const Threshold = sizeclass.Threshold

// Allocator serves Malloc, Free and Realloc from its own set of pools.
// Whether it's safe for concurrent use depends on its Strategy.
type Allocator struct {
	strategy Strategy
	sys      sysalloc.Allocator
	pools    [sizeclass.NumClasses]freelist.Pool
}

// New creates an Allocator. A nil o means DefaultOption().
// Pools are empty until the first request of their class.
func New(o *Option) *Allocator {
	if o == nil {
		o = DefaultOption()
	}
	sys := o.System
	if sys == nil {
		sys = sysalloc.Default()
	}
	a := &Allocator{strategy: o.Strategy, sys: sys}
	for i, c := range sizeclass.Classes {
		a.pools[i] = freelist.New(o.Strategy, c, sys)
	}
	return a
}

// Strategy returns the concurrency strategy of a.
func (a *Allocator) Strategy() Strategy {
	return a.strategy
}

// Malloc returns a buf with len(buf) == size. A size of 0 is served as 1.
// cap(buf) is the capacity of the backing block and may be used without reallocating.
// It panics if size < 0 or the system allocator runs out of memory.
func (a *Allocator) Malloc(size int) []byte {
	if size < 0 {
		panic("palloc: negative size")
	}
	if size == 0 {
		size = 1
	}
	if sizeclass.IsLarge(size) {
		return a.mallocLarge(size)
	}
	return a.mallocPooled(sizeclass.Classify(size), size)
}

// Free returns buf to its pool or to the system allocator. Free(nil) is a no-op.
func (a *Allocator) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	p := unsafe.Pointer(unsafe.SliceData(buf))
	h := readHeader(p)
	if h == largeMark {
		a.sys.Free(largeBuf(p, cap(buf)))
		return
	}
	a.pools[sizeclass.Classify(int(h))].Give(blockOf(p))
}

// Realloc resizes buf to size, preserving min(old size, size) bytes.
// It returns buf itself, resliced, when the new size falls in the same size class,
// and a new buf otherwise; the old buf must not be used once a different one is returned.
// Realloc(nil, size) is Malloc(size).
func (a *Allocator) Realloc(buf []byte, size int) []byte {
	if cap(buf) == 0 {
		return a.Malloc(size)
	}
	if size < 0 {
		panic("palloc: negative size")
	}
	if size == 0 {
		size = 1
	}
	p := unsafe.Pointer(unsafe.SliceData(buf))
	h := readHeader(p)

	if sizeclass.IsLarge(size) {
		if h == largeMark {
			nb, err := a.sys.Realloc(largeBuf(p, cap(buf)), size+headerLen)
			if err != nil {
				panic(fmt.Errorf("palloc: realloc %d bytes: %w", size, err))
			}
			stamp(unsafe.Pointer(&nb[headerLen]), largeMark)
			return nb[headerLen:]
		}
		ret := a.mallocLarge(size)
		copy(ret, unsafe.Slice((*byte)(p), int(h)))
		a.pools[sizeclass.Classify(int(h))].Give(blockOf(p))
		return ret
	}

	c := sizeclass.Classify(size)
	if h == largeMark {
		// large buffers are >= Threshold > size
		ret := a.mallocPooled(c, size)
		copy(ret, unsafe.Slice((*byte)(p), size))
		a.sys.Free(largeBuf(p, cap(buf)))
		return ret
	}
	oc := sizeclass.Classify(int(h))
	if oc == c {
		stamp(p, uint16(size))
		return unsafe.Slice((*byte)(p), sizeclass.Size(c))[:size]
	}
	ret := a.mallocPooled(c, size)
	copy(ret, unsafe.Slice((*byte)(p), int(h)))
	a.pools[oc].Give(blockOf(p))
	return ret
}

// Stats returns the stats of every size class, smallest first.
func (a *Allocator) Stats() []ClassStats {
	ret := make([]ClassStats, len(a.pools))
	for i, p := range a.pools {
		ret[i] = p.Stats()
	}
	return ret
}

func (a *Allocator) mallocLarge(size int) []byte {
	buf, err := a.sys.Alloc(size + headerLen)
	if err != nil {
		panic(fmt.Errorf("palloc: malloc %d bytes: %w", size, err))
	}
	stamp(unsafe.Pointer(&buf[headerLen]), largeMark)
	return buf[headerLen:]
}

func (a *Allocator) mallocPooled(c, size int) []byte {
	p := unsafe.Add(a.pools[c].Take(), headerLen)
	stamp(p, uint16(size))
	return unsafe.Slice((*byte)(p), sizeclass.Size(c))[:size]
}
