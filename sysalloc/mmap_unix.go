//go:build linux || darwin || freebsd || netbsd || openbsd

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

	"golang.org/x/sys/unix"
)

// NewMmap returns an allocator backed by private anonymous mappings.
// Every buffer is rounded up to whole pages and lives outside the Go heap.
func NewMmap() Allocator {
	return &mmapAllocator{pageSize: unix.Getpagesize()}
}

type mmapAllocator struct {
	pageSize int
}

func (a *mmapAllocator) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	sz := (n + a.pageSize - 1) &^ (a.pageSize - 1)
	b, err := unix.Mmap(-1, 0, sz, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrOutOfMemory, sz, err)
	}
	return b[:n], nil
}

func (a *mmapAllocator) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	// munmap needs the whole mapping as returned by Mmap
	if err := unix.Munmap(b[:cap(b)]); err != nil {
		panic(fmt.Sprintf("sysalloc: munmap: %v", err))
	}
}

func (a *mmapAllocator) Realloc(b []byte, n int) ([]byte, error) {
	return grow(a, b, n)
}
