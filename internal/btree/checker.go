package btree

import (
	"fmt"

	"github.com/pagedtree/pagedtree/internal/page"
)

const boundless = page.Key(^uint32(0))

// CheckTree validates these structural invariants: directory fill and
// ordering, leaf fill and ordering, the next_leaf chain from data_head to
// data_tail, and a free list disjoint from the tree and free of cycles.
// pages_allocated is not checked against the file length. It returns a non-empty description of the first violation
// found, or an empty string if the tree is structurally sound. It never
// mutates the tree.
func (t *Tree) CheckTree() (string, error) {
	meta := t.p.Meta()

	owned := map[page.PageIdx]bool{meta.RootPage: true}
	leaves, violation, err := t.checkSubtree(meta.RootPage, meta.Depth, 0, boundless, true, owned)
	if err != nil {
		return "", err
	}
	if violation != "" {
		return violation, nil
	}

	if v := t.checkLeafChain(leaves); v != "" {
		return v, nil
	}

	return t.checkFreeList(owned)
}

// checkSubtree recursively descends from idx (a directory if levelsLeft > 0,
// else a leaf), checking fill and ordering, and returns the leaves visited
// in key order.
func (t *Tree) checkSubtree(idx page.PageIdx, levelsLeft uint32, low, high page.Key, isRoot bool, owned map[page.PageIdx]bool) ([]page.PageIdx, string, error) {
	if levelsLeft == 0 {
		leaf, err := t.p.GetLeaf(idx)
		if err != nil {
			return nil, "", err
		}
		owned[idx] = true

		meta := t.p.Meta()
		singleLeaf := meta.DataHead == meta.DataTail
		if leaf.IsUnderfull() && !singleLeaf {
			return nil, fmt.Sprintf("underfull leaf %d: count=%d", idx, leaf.Count), nil
		}
		for i := 0; i < leaf.Count; i++ {
			if leaf.Keys[i] < low || leaf.Keys[i] >= high {
				return nil, fmt.Sprintf("leaf %d key %d out of parent bound [%d, %d)", idx, leaf.Keys[i], low, high), nil
			}
			if i > 0 && leaf.Keys[i-1] >= leaf.Keys[i] {
				return nil, fmt.Sprintf("leaf %d keys not strictly ascending at index %d", idx, i), nil
			}
		}
		return []page.PageIdx{idx}, "", nil
	}

	dir, err := t.p.GetDirectory(idx)
	if err != nil {
		return nil, "", err
	}
	owned[idx] = true

	if isRoot {
		meta := t.p.Meta()
		if dir.Count == 0 && meta.Depth > 1 {
			// invariant 6(b): only a depth-1 root may be empty.
			return nil, fmt.Sprintf("root directory %d has no separators at depth %d", idx, meta.Depth), nil
		}
	} else if dir.IsUnderfull() {
		return nil, fmt.Sprintf("underfull directory %d: count=%d", idx, dir.Count), nil
	}

	for i := 0; i < dir.Count; i++ {
		if dir.Keys[i] < low || dir.Keys[i] >= high {
			return nil, fmt.Sprintf("directory %d separator %d out of bound [%d, %d)", idx, dir.Keys[i], low, high), nil
		}
		if i > 0 && dir.Keys[i-1] >= dir.Keys[i] {
			return nil, fmt.Sprintf("directory %d separators not strictly ascending at index %d", idx, i), nil
		}
	}

	var leaves []page.PageIdx
	for i := 0; i <= dir.Count; i++ {
		childLow, childHigh := low, high
		if i > 0 {
			childLow = dir.Keys[i-1]
		}
		if i < dir.Count {
			childHigh = dir.Keys[i]
		}
		childLeaves, violation, err := t.checkSubtree(dir.Children[i], levelsLeft-1, childLow, childHigh, false, owned)
		if err != nil {
			return nil, "", err
		}
		if violation != "" {
			return nil, violation, nil
		}
		leaves = append(leaves, childLeaves...)
	}
	return leaves, "", nil
}

// checkLeafChain verifies that following next_leaf from meta.data_head
// reproduces leaves (the key-order traversal discovered by descent)
// exactly and terminates at meta.data_tail with next_leaf = NULL_IDX.
func (t *Tree) checkLeafChain(leaves []page.PageIdx) string {
	meta := t.p.Meta()
	if len(leaves) == 0 {
		return "tree has no leaves"
	}
	if leaves[0] != meta.DataHead {
		return fmt.Sprintf("data_head %d does not match leftmost leaf %d", meta.DataHead, leaves[0])
	}

	idx := meta.DataHead
	var lastKey *page.Key
	for i, want := range leaves {
		if idx != want {
			return fmt.Sprintf("leaf chain diverges from descent order at position %d: chain has %d, descent has %d", i, idx, want)
		}
		leaf, err := t.p.GetLeaf(idx)
		if err != nil {
			return fmt.Sprintf("leaf chain: %v", err)
		}
		if leaf.Count > 0 {
			if lastKey != nil && *lastKey >= leaf.Keys[0] {
				return fmt.Sprintf("leaf %d key %d does not strictly follow previous leaf's last key %d", idx, leaf.Keys[0], *lastKey)
			}
			last := leaf.Keys[leaf.Count-1]
			lastKey = &last
		}
		idx = leaf.NextLeaf
	}
	if idx != page.NullIdx {
		return fmt.Sprintf("leaf chain does not terminate at NULL_IDX after data_tail %d", meta.DataTail)
	}
	if leaves[len(leaves)-1] != meta.DataTail {
		return fmt.Sprintf("data_tail %d does not match rightmost leaf %d", meta.DataTail, leaves[len(leaves)-1])
	}
	return ""
}

// checkFreeList walks the free list from meta.next_free_page, verifying it
// terminates without revisiting a page and without intersecting owned (the
// set of pages reachable from the tree).
func (t *Tree) checkFreeList(owned map[page.PageIdx]bool) (string, error) {
	meta := t.p.Meta()
	seen := make(map[page.PageIdx]bool)
	idx := meta.NextFreePage
	for idx != page.NullIdx {
		if seen[idx] {
			return fmt.Sprintf("free list revisits page %d", idx), nil
		}
		if owned[idx] {
			return fmt.Sprintf("free list page %d is also reachable from the tree", idx), nil
		}
		seen[idx] = true
		fp, err := t.p.GetFree(idx)
		if err != nil {
			return "", err
		}
		idx = fp.NextFreePage
	}
	return "", nil
}
