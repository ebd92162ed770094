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
	"github.com/RoaringBitmap/roaring"
)

// bucketLists holds the partial and full sets of every bucket plus the
// direct set. Sets hold SlabIDs; the lowest id is picked first.
type bucketLists struct {
	partial []*roaring.Bitmap
	full    []*roaring.Bitmap
	direct  *roaring.Bitmap
}

func newBucketLists(n int) *bucketLists {
	l := &bucketLists{
		partial: make([]*roaring.Bitmap, n),
		full:    make([]*roaring.Bitmap, n),
		direct:  roaring.New(),
	}
	for i := 0; i < n; i++ {
		l.partial[i] = roaring.New()
		l.full[i] = roaring.New()
	}
	return l
}

func (l *bucketLists) set(bucket int, state slabState) *roaring.Bitmap {
	switch state {
	case statePartial:
		return l.partial[bucket]
	case stateFull:
		return l.full[bucket]
	default:
		return l.direct
	}
}

func (l *bucketLists) insert(bucket int, e *slabEntry) {
	l.set(bucket, e.state).Add(uint32(e.id))
}

func (l *bucketLists) remove(bucket int, e *slabEntry) {
	l.set(bucket, e.state).Remove(uint32(e.id))
}

func (l *bucketLists) move(bucket int, e *slabEntry, to slabState) {
	if e.state == to {
		return
	}
	l.remove(bucket, e)
	e.state = to
	l.insert(bucket, e)
}

func (l *bucketLists) firstPartial(bucket int) (SlabID, bool) {
	p := l.partial[bucket]
	if p.IsEmpty() {
		return 0, false
	}
	return SlabID(p.Minimum()), true
}

func (l *bucketLists) contains(bucket int, e *slabEntry) bool {
	return l.set(bucket, e.state).Contains(uint32(e.id))
}

func (l *bucketLists) count() int {
	n := l.direct.GetCardinality()
	for i := range l.partial {
		n += l.partial[i].GetCardinality() + l.full[i].GetCardinality()
	}
	return int(n)
}
