// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bitmap

import (
	"fmt"
	"math/bits"
	"strings"
)

// Bitmap is a fixed length bitmap used for slot occupancy. It is not safe
// for concurrent use; callers serialize access.
//
// Bits past len in the last word are always zero.
type Bitmap struct {
	len  int64
	data []uint64
}

func New(len int64) Bitmap {
	var n Bitmap
	n.InitWithSize(len)
	return n
}

func (n *Bitmap) InitWithSize(len int64) {
	n.len = len
	n.data = make([]uint64, (len+63)/64)
}

// Reset clears every bit but keeps the length.
func (n *Bitmap) Reset() {
	clear(n.data)
}

// Len returns the number of bits in the Bitmap.
func (n *Bitmap) Len() int64 {
	return n.len
}

// We always assume that row < Len().
func (n *Bitmap) Add(row uint64) {
	n.data[row>>6] |= 1 << (row & 0x3F)
}

func (n *Bitmap) Remove(row uint64) {
	if row >= uint64(n.len) {
		return
	}
	n.data[row>>6] &^= (uint64(1) << (row & 0x3F))
}

// Contains returns true if the row is contained in the Bitmap
func (n *Bitmap) Contains(row uint64) bool {
	if row >= uint64(n.len) {
		return false
	}
	idx := row >> 6
	return (n.data[idx] & (1 << (row & 0x3F))) != 0
}

func (n *Bitmap) Count() int {
	var cnt int
	for _, w := range n.data {
		cnt += bits.OnesCount64(w)
	}
	return cnt
}

func (n *Bitmap) IsEmpty() bool {
	for _, w := range n.data {
		if w != 0 {
			return false
		}
	}
	return true
}

func (n *Bitmap) IsFull() bool {
	return n.Count() == int(n.len)
}

// FirstClear returns the lowest unset bit, or false if every bit is set.
func (n *Bitmap) FirstClear() (uint64, bool) {
	for i, w := range n.data {
		reverse := ^w
		if reverse == 0 {
			continue
		}
		row := uint64(i)*64 + uint64(bits.TrailingZeros64(reverse))
		if row >= uint64(n.len) {
			// tail bits of the last word
			return 0, false
		}
		return row, true
	}
	return 0, false
}

func (n *Bitmap) ToArray() []uint64 {
	var rows []uint64
	for i, w := range n.data {
		for w != 0 {
			offset := bits.TrailingZeros64(w)
			rows = append(rows, uint64(i)*64+uint64(offset))
			w &= w - 1
		}
	}
	return rows
}

func (n *Bitmap) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range n.ToArray() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", row)
	}
	b.WriteByte(']')
	return b.String()
}
