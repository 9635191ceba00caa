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
	"github.com/cloudwego/palloc/internal/freelist"
	"github.com/cloudwego/palloc/sysalloc"
)

// Strategy selects how the pools of an Allocator synchronize.
type Strategy = freelist.Strategy

const (
	// Unsafe does no synchronization: the Allocator MUST NOT be used by more than one goroutine at a time.
	Unsafe = freelist.Unsafe

	// Mutex guards each size class with its own lock.
	Mutex = freelist.Mutex

	// LockFree uses CAS based free lists.
	LockFree = freelist.LockFree
)

// ParseStrategy returns the Strategy named "unsafe", "mutex" or "lockfree".
func ParseStrategy(s string) (Strategy, error) {
	return freelist.ParseStrategy(s)
}

// ClassStats describes the memory held by one size class.
type ClassStats = freelist.Stats

// Option ...
type Option struct {
	// Strategy is the concurrency strategy of the pools.
	// The default is DefaultStrategy, chosen at build time:
	//
	//	go build                        // Unsafe
	//	go build -tags palloc_mutex     // Mutex
	//	go build -tags palloc_lockfree  // LockFree
	//
	// The two tags are mutually exclusive.
	Strategy Strategy

	// System is used for chunks and for bufs >= Threshold.
	// The default is sysalloc.Default().
	System sysalloc.Allocator
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		Strategy: DefaultStrategy,
		System:   sysalloc.Default(),
	}
}
