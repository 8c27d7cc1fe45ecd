// Package btree is the core described by spec.md: a paged B+Tree storing
// fixed-size (key, value) records behind the pager's file interface. It
// owns the page allocator, the insert path (leaf/directory split, root
// growth) and the delete path (steal/merge, root collapse). Everything the
// package does runs to completion before returning; the tree assumes
// exclusive ownership of its backing file for as long as it is open
// (spec.md §5 — no concurrent mutation).
package btree

import (
	"errors"
	"fmt"

	"github.com/pagedtree/pagedtree/internal/page"
	"github.com/pagedtree/pagedtree/internal/pager"
)

// ErrKeyNotFound is the sentinel for a missing key. None of Tree's methods
// return it: Get reports absence through its bool result, and Delete on an
// absent key is a no-op.
var ErrKeyNotFound = errors.New("btree: key not found")

// Tree is a handle on one paged B+Tree. It is not safe for concurrent use.
type Tree struct {
	p *pager.Pager
}

// New wraps an already-opened Pager in a Tree.
func New(p *pager.Pager) *Tree { return &Tree{p: p} }

// pathEntry records one step of a root-to-leaf descent: the directory page
// visited and the child slot taken. Retaining the whole path (spec.md §9)
// lets split/merge propagation walk back up without parent pointers.
type pathEntry struct {
	dirIdx page.PageIdx
	slot   int
}

// descend walks from the root to the leaf that would hold key, recording
// the path of (directory, slot) pairs taken along the way.
func (t *Tree) descend(key page.Key) (page.PageIdx, []pathEntry, error) {
	meta := t.p.Meta()
	idx := meta.RootPage
	path := make([]pathEntry, 0, meta.Depth)
	for i := uint32(0); i < meta.Depth; i++ {
		dir, err := t.p.GetDirectory(idx)
		if err != nil {
			return 0, nil, err
		}
		slot := dir.FindChildIndex(key)
		path = append(path, pathEntry{dirIdx: idx, slot: slot})
		idx = dir.Children[slot]
	}
	return idx, path, nil
}

// Get performs a point lookup. It never mutates the tree.
func (t *Tree) Get(key page.Key) (page.Value, bool, error) {
	leafIdx, _, err := t.descend(key)
	if err != nil {
		return 0, false, err
	}
	leaf, err := t.p.GetLeaf(leafIdx)
	if err != nil {
		return 0, false, err
	}
	idx, found := leaf.FindKey(key)
	if !found {
		return 0, false, nil
	}
	return leaf.Values[idx], true, nil
}

// Record is one (key, value) pair as surfaced by Scan.
type Record struct {
	Key   page.Key
	Value page.Value
}

// Scan walks the leaf chain from meta.data_head to meta.data_tail in key
// order, the in-order traversal spec.md §1 lists as a core operation. fn is
// called once per record in ascending key order; returning false stops the
// scan early.
func (t *Tree) Scan(fn func(Record) bool) error {
	idx := t.p.Meta().DataHead
	for idx != page.NullIdx {
		leaf, err := t.p.GetLeaf(idx)
		if err != nil {
			return err
		}
		for i := 0; i < leaf.Count; i++ {
			if !fn(Record{Key: leaf.Keys[i], Value: leaf.Values[i]}) {
				return nil
			}
		}
		idx = leaf.NextLeaf
	}
	return nil
}

// Stats is a read-only snapshot of allocator and shape state, consumed by
// the introspection server (SPEC_FULL.md §2.2). It never mutates the tree.
type Stats struct {
	PagesAllocated uint64
	Depth          uint32
	RootPage       page.PageIdx
	DataHead       page.PageIdx
	DataTail       page.PageIdx
	FreeListLength int
}

// Stats walks the free list to report its length alongside the metadata
// page's other fields.
func (t *Tree) Stats() (Stats, error) {
	meta := t.p.Meta()
	s := Stats{
		PagesAllocated: meta.PagesAllocated,
		Depth:          meta.Depth,
		RootPage:       meta.RootPage,
		DataHead:       meta.DataHead,
		DataTail:       meta.DataTail,
	}
	seen := make(map[page.PageIdx]bool)
	idx := meta.NextFreePage
	for idx != page.NullIdx {
		if seen[idx] {
			return s, fmt.Errorf("btree: free list cycle detected at page %d", idx)
		}
		seen[idx] = true
		s.FreeListLength++
		fp, err := t.p.GetFree(idx)
		if err != nil {
			return s, err
		}
		idx = fp.NextFreePage
	}
	return s, nil
}
