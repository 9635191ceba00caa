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
	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

// Heap allocates from the Go heap without zeroing. Free drops the reference and lets GC reclaim it.
var Heap Allocator = heapAllocator{}

// Cached allocates power-of-two sized buffers from mcache and returns them to it on Free.
var Cached Allocator = cachedAllocator{}

type heapAllocator struct{}

func (heapAllocator) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	return dirtmake.Bytes(n, n), nil
}

func (heapAllocator) Free(b []byte) {}

func (a heapAllocator) Realloc(b []byte, n int) ([]byte, error) {
	return grow(a, b, n)
}

type cachedAllocator struct{}

func (cachedAllocator) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	return mcache.Malloc(n), nil
}

func (cachedAllocator) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	mcache.Free(b)
}

func (a cachedAllocator) Realloc(b []byte, n int) ([]byte, error) {
	return grow(a, b, n)
}
