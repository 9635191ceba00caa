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

// Command pallocstress runs a concurrent malloc/realloc/free storm against palloc
// and reports corrupted bufs, the per-class memory it ended up holding and a
// content checksum that only depends on the flags.
//
//	pallocstress --strategy lockfree --system mmap --workers 64 --rounds 1000000
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudwego/palloc"
	"github.com/cloudwego/palloc/internal/stress"
	"github.com/cloudwego/palloc/sysalloc"
)

var (
	strategy  string
	system    string
	arenaSize int
	timeout   time.Duration

	config = stress.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "pallocstress",
	Short: "Run a concurrent malloc/realloc/free storm against palloc",
	Long: `pallocstress starts a number of workers that each juggle a few live bufs,
randomly allocating, resizing and freeing them through the process-wide palloc
allocator. Every buf is filled with its owner's id and checked before each step,
so a block handed to two owners at once is reported as corruption.

Example:
  pallocstress --strategy mutex --system cached
  pallocstress --strategy unsafe --workers 1
  pallocstress --strategy lockfree --system arena --arena 268435456 --timeout 30s`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStorm(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&strategy, "strategy", palloc.DefaultStrategy.String(), "unsafe, mutex or lockfree")
	rootCmd.Flags().StringVar(&system, "system", "heap", "System allocator: heap, cached, mmap or arena")
	rootCmd.Flags().IntVar(&arenaSize, "arena", 64<<20, "Arena size in bytes when --system=arena")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this long, 0 means no limit")

	rootCmd.Flags().IntVar(&config.Workers, "workers", config.Workers, "Concurrent workers")
	rootCmd.Flags().IntVar(&config.Rounds, "rounds", config.Rounds, "Operations per worker")
	rootCmd.Flags().IntVar(&config.Slots, "slots", config.Slots, "Live bufs per worker")
	rootCmd.Flags().IntVar(&config.MaxSize, "maxsize", config.MaxSize, "Max buf size")
	rootCmd.Flags().Int64Var(&config.Seed, "seed", config.Seed, "Random seed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStorm(ctx context.Context) error {
	s, err := palloc.ParseStrategy(strategy)
	if err != nil {
		return err
	}
	if s == palloc.Unsafe && config.Workers > 1 {
		return fmt.Errorf("strategy %s requires --workers=1", s)
	}
	sys, err := newSystem(system, arenaSize)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	palloc.Init(&palloc.Option{Strategy: s, System: sys})
	defer palloc.Fini()

	log.Printf("storm: strategy=%s system=%s workers=%d rounds=%d slots=%d maxsize=%d seed=%d",
		s, system, config.Workers, config.Rounds, config.Slots, config.MaxSize, config.Seed)
	start := time.Now()
	res, err := stress.Run(ctx, allocator{}, config)
	if err != nil {
		return fmt.Errorf("storm failed after %v: %w", time.Since(start), err)
	}
	log.Printf("storm done in %v: mallocs=%d reallocs=%d frees=%d checksum=%016x",
		time.Since(start), res.Mallocs, res.Reallocs, res.Frees, res.Checksum)
	for _, st := range palloc.Stats() {
		fmt.Printf("class %5d: chunks=%d blocks=%d\n", st.Size, st.Chunks, st.Blocks)
	}
	return nil
}

func newSystem(name string, arenaSize int) (sysalloc.Allocator, error) {
	switch name {
	case "heap":
		return sysalloc.Heap, nil
	case "cached":
		return sysalloc.Cached, nil
	case "mmap":
		return sysalloc.NewMmap(), nil
	case "arena":
		a, err := sysalloc.NewArena(make([]byte, arenaSize))
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown system allocator %q", name)
}

// allocator routes the storm through the process-wide allocator.
type allocator struct{}

func (allocator) Malloc(size int) []byte { return palloc.Malloc(size) }

func (allocator) Free(buf []byte) { palloc.Free(buf) }

func (allocator) Realloc(buf []byte, size int) []byte { return palloc.Realloc(buf, size) }
