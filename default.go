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

package palloc

import (
	"sync"
	"sync/atomic"
)

var (
	stdMu sync.Mutex
	std   atomic.Pointer[Allocator]
)

// Init prepares the process-wide Allocator used by Malloc, Free, Realloc and Stats.
// Only the first call takes effect until Fini is called. A nil o means DefaultOption().
//
// Package functions call Init(nil) themselves if nobody did.
func Init(o *Option) {
	stdMu.Lock()
	defer stdMu.Unlock()
	if std.Load() == nil {
		std.Store(New(o))
	}
}

// Fini drops the process-wide Allocator. It must run after the last request:
// bufs returned before Fini MUST NOT be passed to Free or Realloc after it.
func Fini() {
	stdMu.Lock()
	defer stdMu.Unlock()
	std.Store(nil)
}

func defaultAllocator() *Allocator {
	for {
		if a := std.Load(); a != nil {
			return a
		}
		Init(nil)
	}
}

// Malloc calls Malloc of the process-wide Allocator.
func Malloc(size int) []byte {
	return defaultAllocator().Malloc(size)
}

// Free calls Free of the process-wide Allocator.
func Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	defaultAllocator().Free(buf)
}

// Realloc calls Realloc of the process-wide Allocator.
func Realloc(buf []byte, size int) []byte {
	return defaultAllocator().Realloc(buf, size)
}

// Stats calls Stats of the process-wide Allocator.
func Stats() []ClassStats {
	return defaultAllocator().Stats()
}
