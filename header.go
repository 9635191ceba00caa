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
	"encoding/binary"
	"unsafe"

	"github.com/cloudwego/palloc/internal/freelist"
)

// The header is a little-endian uint16 stored in the headerLen bytes right before
// the data pointer of every buf: the requested size for pooled bufs, largeMark otherwise.
// It's trusted as is, there's no magic or checksum.
const (
	headerLen = freelist.HeaderLen

	largeMark uint16 = 0xFFFF
)

func headerBytes(p unsafe.Pointer) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(p, -headerLen)), headerLen)
}

// stamp writes v into the header of the buf starting at p.
func stamp(p unsafe.Pointer, v uint16) {
	binary.LittleEndian.PutUint16(headerBytes(p), v)
}

func readHeader(p unsafe.Pointer) uint16 {
	return binary.LittleEndian.Uint16(headerBytes(p))
}

// blockOf returns the pool block holding the buf starting at p.
func blockOf(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(p, -headerLen)
}

// largeBuf rebuilds the system allocator buffer of a large buf starting at p with capacity c.
func largeBuf(p unsafe.Pointer, c int) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(p, -headerLen)), c+headerLen)
}
