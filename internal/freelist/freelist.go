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

// Package freelist implements the per-class block pools.
//
// A block is laid out as:
//
//	[ header (HeaderLen) | payload (class size) | pad | link (uintptr) ]
//
// The link is only meaningful while the block is free and never overlaps the payload.
// Blocks are carved out of chunks obtained from a sysalloc.Allocator;
// chunks are never returned to it.
package freelist

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cloudwego/palloc/internal/sizeclass"
	"github.com/cloudwego/palloc/sysalloc"
)

// HeaderLen is the number of bytes reserved in front of every payload.
const HeaderLen = 2

const ptrSize = unsafe.Sizeof(uintptr(0))

// Pool is the free list of one size class.
// Take returns the start of a block (the header position), Give takes it back.
type Pool interface {
	Take() unsafe.Pointer
	Give(b unsafe.Pointer)
	Stats() Stats
}

// Stats describes the memory held by a Pool.
type Stats struct {
	Size   int // payload capacity of a block
	Batch  int // blocks per chunk
	Chunks int // chunks ever allocated, it never decreases
	Blocks int // blocks ever carved, Chunks * Batch
}

// New returns the pool of class c using strategy s. Chunks come from sys.
func New(s Strategy, c sizeclass.Class, sys sysalloc.Allocator) Pool {
	switch s {
	case Mutex:
		p := &mutexPool{}
		p.init(c, sys)
		return p
	case LockFree:
		p := &lockfreePool{}
		p.init(c, sys)
		return p
	default:
		p := &unsafePool{}
		p.init(c, sys)
		return p
	}
}

// chunks carves blocks of one class out of chunks from the system allocator.
type chunks struct {
	sys sysalloc.Allocator

	size   int
	batch  int
	link   uintptr // offset of the link word
	stride uintptr // distance between two blocks

	bufsMu sync.Mutex
	// bufs keeps every chunk reachable: free blocks are linked by address only.
	bufs [][]byte
	n    atomic.Int64
}

func (c *chunks) init(cl sizeclass.Class, sys sysalloc.Allocator) {
	c.sys = sys
	c.size = cl.Size
	c.batch = cl.Batch
	c.link = (HeaderLen + uintptr(cl.Size) + ptrSize - 1) &^ (ptrSize - 1)
	c.stride = c.link + ptrSize
}

// carve allocates one chunk and threads its blocks into a list.
// The last block in storage order becomes the head.
func (c *chunks) carve() unsafe.Pointer {
	buf, err := c.sys.Alloc(c.batch * int(c.stride))
	if err != nil {
		panic(fmt.Errorf("palloc: chunk of %d x %d-byte blocks: %w", c.batch, c.size, err))
	}
	base := unsafe.Pointer(unsafe.SliceData(buf))
	if uintptr(base)&(ptrSize-1) != 0 {
		panic("palloc: misaligned chunk")
	}
	c.bufsMu.Lock()
	c.bufs = append(c.bufs, buf)
	c.bufsMu.Unlock()
	c.n.Add(1)

	var head unsafe.Pointer
	for i := 0; i < c.batch; i++ {
		b := unsafe.Add(base, uintptr(i)*c.stride)
		c.setNext(b, head)
		head = b
	}
	return head
}

func (c *chunks) next(b unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(atomic.LoadUintptr((*uintptr)(unsafe.Add(b, c.link))))
}

func (c *chunks) setNext(b, next unsafe.Pointer) {
	atomic.StoreUintptr((*uintptr)(unsafe.Add(b, c.link)), uintptr(next))
}

// Stats implements Pool.
func (c *chunks) Stats() Stats {
	n := int(c.n.Load())
	return Stats{Size: c.size, Batch: c.batch, Chunks: n, Blocks: n * c.batch}
}

// unsafePool reads and writes its head directly.
type unsafePool struct {
	chunks
	head unsafe.Pointer
}

func (p *unsafePool) Take() unsafe.Pointer {
	if p.head == nil {
		p.head = p.carve()
	}
	b := p.head
	p.head = p.next(b)
	return b
}

func (p *unsafePool) Give(b unsafe.Pointer) {
	p.setNext(b, p.head)
	p.head = b
}

// mutexPool is an unsafePool guarded by one lock.
type mutexPool struct {
	mu sync.Mutex
	unsafePool
}

func (p *mutexPool) Take() unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsafePool.Take()
}

func (p *mutexPool) Give(b unsafe.Pointer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsafePool.Give(b)
}
