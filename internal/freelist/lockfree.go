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

package freelist

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// The head of a lockfreePool is one word packing a block address with a
// modification counter, the same way the runtime's lfstack does: a block
// that is popped and pushed back between a Load and a CAS carries a
// different counter, so the stale CAS fails.
//
// On 64-bit platforms block addresses are 8-byte aligned and fit in 48 bits,
// which leaves 19 bits for the counter.
const (
	addrBits = 48
	cntBits  = 64 - addrBits + 3
)

// refilling marks a head whose pool is being refilled by one goroutine.
// No packed block address can produce it.
const refilling = ^uint64(0)

func pack(b unsafe.Pointer, cnt uint64) uint64 {
	if ptrSize == 4 {
		return uint64(uintptr(b))<<32 | cnt&(1<<32-1)
	}
	return uint64(uintptr(b))<<(64-addrBits) | cnt&(1<<cntBits-1)
}

// unpack rebuilds a block address from a head word. The result is derived
// from an integer, not from a pointer, so checkptr (enabled by -race) can't
// relate it to its chunk and must not instrument it. Every address it sees
// was produced by pack from a block of a chunk kept alive in bufs.
//
//go:nocheckptr
func unpack(v uint64) unsafe.Pointer {
	if ptrSize == 4 {
		return unsafe.Pointer(uintptr(v >> 32))
	}
	return unsafe.Pointer(uintptr(int64(v) >> cntBits << 3))
}

// lockfreePool is a Treiber stack of blocks.
type lockfreePool struct {
	chunks
	head atomic.Uint64
}

func (p *lockfreePool) Take() unsafe.Pointer {
	for {
		old := p.head.Load()
		if old == refilling {
			// another goroutine is carving a chunk
			runtime.Gosched()
			continue
		}
		b := unpack(old)
		if b == nil {
			// only the goroutine moving the head from empty to refilling carves a chunk,
			// the others spin above until it publishes the new list.
			if p.head.CompareAndSwap(old, refilling) {
				p.refill(old)
			}
			continue
		}
		// b may be taken by someone else meanwhile, the counter makes the CAS fail then.
		next := p.next(b)
		if p.head.CompareAndSwap(old, pack(next, old+1)) {
			return b
		}
	}
}

func (p *lockfreePool) Give(b unsafe.Pointer) {
	for {
		old := p.head.Load()
		if old == refilling {
			// the refill publishes with a plain Store, wait for it
			runtime.Gosched()
			continue
		}
		p.setNext(b, unpack(old))
		if p.head.CompareAndSwap(old, pack(b, old+1)) {
			return
		}
	}
}

// refill carves a chunk and publishes it. The caller holds the refilling state.
func (p *lockfreePool) refill(old uint64) {
	done := false
	defer func() {
		if !done {
			// carve panicked, don't leave the spinners waiting forever
			p.head.Store(old)
		}
	}()
	first := p.carve()
	p.checkPackable(first)
	done = true
	p.head.Store(pack(first, old+1))
}

// checkPackable panics if the addresses of a fresh chunk don't survive pack/unpack.
// first is the head of the chunk list, which is its highest block.
func (p *lockfreePool) checkPackable(first unsafe.Pointer) {
	lowest := unsafe.Add(first, -int(p.stride)*(p.batch-1))
	if unpack(pack(first, 0)) != first || unpack(pack(lowest, 0)) != lowest {
		panic("palloc: chunk address does not fit the lock-free head")
	}
}
