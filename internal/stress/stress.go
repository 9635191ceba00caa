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

// Package stress runs concurrent malloc/realloc/free storms and checks that
// no buf is ever visible to two owners.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/bytedance/gopkg/util/xxhash3"
)

// freed is written over a buf right before it's freed.
const freed = 0xFF

// Allocator is what a storm runs against.
type Allocator interface {
	Malloc(size int) []byte
	Free(buf []byte)
	Realloc(buf []byte, size int) []byte
}

// Config ...
type Config struct {
	// Workers is the number of concurrent workers, in [1, 255).
	// Each worker fills its bufs with its own id.
	Workers int

	// Rounds is the number of operations per worker.
	Rounds int

	// Slots is the number of live bufs a worker juggles.
	Slots int

	// MaxSize is the max size of a buf. Sizes are uniform in [1, MaxSize].
	MaxSize int

	// Seed seeds the per-worker random sources. Same seed, same Result.Checksum.
	Seed int64
}

// DefaultConfig returns the default values of Config.
func DefaultConfig() *Config {
	return &Config{
		Workers: 64,
		Rounds:  100000,
		Slots:   16,
		MaxSize: 4096,
		Seed:    1,
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 || c.Workers >= freed {
		return fmt.Errorf("workers must be in [1, %d), got %d", freed, c.Workers)
	}
	if c.Rounds < 0 || c.Slots < 1 || c.MaxSize < 1 {
		return fmt.Errorf("invalid config: rounds=%d slots=%d maxsize=%d", c.Rounds, c.Slots, c.MaxSize)
	}
	return nil
}

// Result sums up a storm.
type Result struct {
	Mallocs  int64
	Reallocs int64
	Frees    int64

	// Checksum combines the contents every worker holds before its final frees.
	// It only depends on Config.
	Checksum uint64
}

// ErrCorrupted is returned when a worker finds bytes it didn't write.
var ErrCorrupted = errors.New("stress: buf corrupted")

// Run runs a storm against a and waits for all workers.
// a must be safe for concurrent use unless c.Workers == 1.
// It stops early and returns ctx.Err() if ctx is done.
func Run(ctx context.Context, a Allocator, c *Config) (*Result, error) {
	if c == nil {
		c = DefaultConfig()
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	var (
		res      Result
		checksum atomic.Uint64
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	pool := gopool.NewPool("palloc-stress", int32(c.Workers), gopool.NewConfig())
	for i := 0; i < c.Workers; i++ {
		w := &worker{
			id:    byte(i),
			a:     a,
			c:     c,
			rnd:   rand.New(rand.NewSource(c.Seed + int64(i)*12345)),
			bufs:  make([][]byte, c.Slots),
			sizes: make([]int, c.Slots),
		}
		wg.Add(1)
		pool.CtxGo(ctx, func() {
			defer wg.Done()
			// recover before wg.Done so Run sees the failure
			defer func() {
				if r := recover(); r != nil {
					log.Printf("STRESS: panic in worker %d: %v: %s", w.id, r, debug.Stack())
					fail(fmt.Errorf("stress: worker %d panicked: %v", w.id, r))
				}
			}()
			defer w.release()
			if err := w.run(ctx); err != nil {
				fail(err)
				return
			}
			checksum.Add(w.checksum())
			atomic.AddInt64(&res.Mallocs, w.mallocs)
			atomic.AddInt64(&res.Reallocs, w.reallocs)
			atomic.AddInt64(&res.Frees, w.frees)
		})
	}
	wg.Wait()

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	res.Checksum = checksum.Load()
	return &res, nil
}

type worker struct {
	id  byte
	a   Allocator
	c   *Config
	rnd *rand.Rand

	bufs  [][]byte
	sizes []int

	mallocs, reallocs, frees int64
}

func (w *worker) run(ctx context.Context) error {
	for i := 0; i < w.c.Rounds; i++ {
		if i&1023 == 0 && ctx.Err() != nil {
			return nil
		}
		idx := w.rnd.Intn(len(w.bufs))
		if err := w.check(idx); err != nil {
			return err
		}
		switch w.rnd.Intn(3) {
		case 0:
			if w.bufs[idx] != nil {
				w.a.Free(w.bufs[idx])
				w.frees++
			}
			n := 1 + w.rnd.Intn(w.c.MaxSize)
			w.bufs[idx] = w.a.Malloc(n)
			w.sizes[idx] = n
			w.mallocs++
		case 1:
			n := 1 + w.rnd.Intn(w.c.MaxSize)
			w.bufs[idx] = w.a.Realloc(w.bufs[idx], n)
			w.sizes[idx] = n
			w.reallocs++
		case 2:
			if w.bufs[idx] != nil {
				fill(w.bufs[idx], freed)
				w.a.Free(w.bufs[idx])
				w.frees++
			}
			w.bufs[idx] = nil
			w.sizes[idx] = 0
			continue
		}
		fill(w.bufs[idx][:w.sizes[idx]], w.id)
	}
	return nil
}

// check verifies slot idx only holds the worker's id.
func (w *worker) check(idx int) error {
	b := w.bufs[idx]
	for i := 0; i < w.sizes[idx]; i++ {
		if b[i] != w.id {
			return fmt.Errorf("%w: worker %d slot %d offset %d: got 0x%02x", ErrCorrupted, w.id, idx, i, b[i])
		}
	}
	return nil
}

func (w *worker) checksum() uint64 {
	var sum uint64
	for i, b := range w.bufs {
		if b != nil {
			sum += xxhash3.Hash(b[:w.sizes[i]])
		}
	}
	return sum
}

func (w *worker) release() {
	for i, b := range w.bufs {
		w.a.Free(b)
		w.bufs[i] = nil
		w.sizes[i] = 0
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
