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

// Package sysalloc provides the system allocators palloc acquires chunks
// and large buffers from.
package sysalloc

import "errors"

var (
	// ErrOutOfMemory is returned when an allocator cannot serve a request.
	ErrOutOfMemory = errors.New("sysalloc: out of memory")

	// ErrInvalidSize is returned for sizes <= 0.
	ErrInvalidSize = errors.New("sysalloc: invalid size")
)

// Allocator is the system allocator capability.
//
// Buffers handed to Free or Realloc MUST be the full buffers returned by Alloc or Realloc:
// same data pointer and same cap. len may have been changed.
type Allocator interface {
	// Alloc returns a buffer with len == n. Contents are not zeroed.
	Alloc(n int) ([]byte, error)

	// Free releases b. It is a no-op if cap(b) == 0.
	Free(b []byte)

	// Realloc returns a buffer with len == n whose first min(len(b), n) bytes equal b's.
	// b must not be used after Realloc returns without error.
	Realloc(b []byte, n int) ([]byte, error)
}

// Default returns the allocator used when none is configured.
func Default() Allocator {
	return Heap
}

// grow implements Realloc on top of Alloc and Free.
func grow(a Allocator, b []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	if n <= cap(b) {
		return b[:n], nil
	}
	nb, err := a.Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(nb, b)
	a.Free(b)
	return nb, nil
}
