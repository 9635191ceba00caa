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

// Package sizeclass maps request sizes to the fixed set of pooled block capacities.
package sizeclass

import "math/bits"

const (
	// NumClasses is the number of pooled size classes.
	NumClasses = 8

	// MinSize is the capacity of the smallest class.
	MinSize = 16

	// Threshold is the large-object threshold.
	// Requests >= Threshold are never pooled and never reach the lookup table.
	Threshold = MinSize << (NumClasses - 1) // 2048
)

// Class describes one pooled size class.
type Class struct {
	// Size is the payload capacity of every block in the class.
	Size int

	// Batch is the number of blocks carved out of one chunk.
	// Larger blocks get smaller batches to bound up-front memory.
	Batch int
}

// Classes lists all size classes in ascending order. Capacities strictly double.
var Classes = [NumClasses]Class{
	{Size: 16, Batch: 4096},
	{Size: 32, Batch: 2048},
	{Size: 64, Batch: 1024},
	{Size: 128, Batch: 512},
	{Size: 256, Batch: 256},
	{Size: 512, Batch: 128},
	{Size: 1024, Batch: 64},
	{Size: 2048, Batch: 32},
}

// lookupLen is the number of distinct lookup indices: bits.Len(n-1) for n in [1, Threshold).
const lookupLen = 12

var (
	// lookup maps an exact byte count to its lookup index, bits.Len(n-1).
	// lookup[0] is never read: callers normalize 0 to 1.
	lookup [Threshold]uint8

	// dispatch maps a lookup index to a class.
	// Indices 0-4 (n <= 16) all resolve to class 0.
	dispatch [lookupLen]uint8
)

func init() {
	for n := 1; n < Threshold; n++ {
		lookup[n] = uint8(bits.Len(uint(n - 1)))
	}
	minShift := bits.Len(uint(MinSize - 1))
	for i := range dispatch {
		if i > minShift {
			dispatch[i] = uint8(i - minShift)
		}
	}
}

// Classify returns the smallest class whose capacity is >= n.
// n MUST be in [1, Threshold).
func Classify(n int) int {
	return int(dispatch[lookup[n]])
}

// IsLarge reports whether n bypasses the pools.
func IsLarge(n int) bool {
	return n >= Threshold
}

// Size returns the capacity of class c.
func Size(c int) int {
	return Classes[c].Size
}

// Batch returns the chunk batch size of class c.
func Batch(c int) int {
	return Classes[c].Batch
}
