// Copyright 2024 Matrix Origin
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

package pdcache

import (
	"github.com/tidwall/btree"
)

type indexEntry struct {
	addr uint64
	id   SlabID
}

// reverseIndex maps block base addresses to their slab entry.
type reverseIndex struct {
	tree *btree.BTreeG[indexEntry]
}

func newReverseIndex() *reverseIndex {
	return &reverseIndex{
		tree: btree.NewBTreeGOptions(func(a, b indexEntry) bool {
			return a.addr < b.addr
		}, btree.Options{NoLocks: true}),
	}
}

// insert returns false if addr is already indexed.
func (r *reverseIndex) insert(addr uint64, id SlabID) bool {
	if _, ok := r.tree.Get(indexEntry{addr: addr}); ok {
		return false
	}
	r.tree.Set(indexEntry{addr: addr, id: id})
	return true
}

func (r *reverseIndex) lookup(addr uint64) (SlabID, bool) {
	item, ok := r.tree.Get(indexEntry{addr: addr})
	return item.id, ok
}

func (r *reverseIndex) remove(addr uint64) {
	r.tree.Delete(indexEntry{addr: addr})
}

func (r *reverseIndex) len() int {
	return r.tree.Len()
}

// scan visits entries in address order until fn returns false.
func (r *reverseIndex) scan(fn func(addr uint64, id SlabID) bool) {
	r.tree.Scan(func(item indexEntry) bool {
		return fn(item.addr, item.id)
	})
}
