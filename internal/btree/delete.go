package btree

import "github.com/pagedtree/pagedtree/internal/page"

// Delete removes key if present; absence is a silent no-op (spec.md §4.4).
// Removal that underflows the leaf triggers steal-then-merge resolution,
// which may propagate underflow up the descent path and, in the limit,
// collapse the root.
func (t *Tree) Delete(key page.Key) error {
	leafIdx, path, err := t.descend(key)
	if err != nil {
		return err
	}
	leaf, err := t.p.GetLeaf(leafIdx)
	if err != nil {
		return err
	}

	idx, found := leaf.FindKey(key)
	if !found {
		return nil
	}
	removeLeafAt(leaf, idx)

	meta := t.p.Meta()
	if meta.DataHead == meta.DataTail || !leaf.IsUnderfull() {
		return t.p.PutLeaf(leafIdx, leaf)
	}

	return t.resolveLeafUnderflow(leafIdx, leaf, path)
}

func removeLeafAt(leaf *page.LeafPage, idx int) {
	copy(leaf.Keys[idx:leaf.Count-1], leaf.Keys[idx+1:leaf.Count])
	copy(leaf.Values[idx:leaf.Count-1], leaf.Values[idx+1:leaf.Count])
	leaf.Count--
}

// resolveLeafUnderflow implements spec.md §4.4's steal-before-merge policy:
// prefer stealing a boundary record from the left sibling, then the right,
// and only merge when neither sibling can spare one.
func (t *Tree) resolveLeafUnderflow(leafIdx page.PageIdx, leaf *page.LeafPage, path []pathEntry) error {
	parentEntry := path[len(path)-1]
	parent, err := t.p.GetDirectory(parentEntry.dirIdx)
	if err != nil {
		return err
	}
	slot := parentEntry.slot

	if slot > 0 {
		leftIdx := parent.Children[slot-1]
		left, err := t.p.GetLeaf(leftIdx)
		if err != nil {
			return err
		}
		if left.CanAllowStolenKey() {
			stolenKey, stolenVal := left.Keys[left.Count-1], left.Values[left.Count-1]
			left.Count--
			insertLeafAt(leaf, 0, stolenKey, stolenVal)
			parent.Keys[slot-1] = leaf.Keys[0]
			if err := t.p.PutLeaf(leftIdx, left); err != nil {
				return err
			}
			if err := t.p.PutLeaf(leafIdx, leaf); err != nil {
				return err
			}
			return t.p.PutDirectory(parentEntry.dirIdx, parent)
		}
	}

	if slot < parent.Count {
		rightIdx := parent.Children[slot+1]
		right, err := t.p.GetLeaf(rightIdx)
		if err != nil {
			return err
		}
		if right.CanAllowStolenKey() {
			stolenKey, stolenVal := right.Keys[0], right.Values[0]
			removeLeafAt(right, 0)
			insertLeafAt(leaf, leaf.Count, stolenKey, stolenVal)
			parent.Keys[slot] = right.Keys[0]
			if err := t.p.PutLeaf(rightIdx, right); err != nil {
				return err
			}
			if err := t.p.PutLeaf(leafIdx, leaf); err != nil {
				return err
			}
			return t.p.PutDirectory(parentEntry.dirIdx, parent)
		}
	}

	if slot > 0 {
		leftIdx := parent.Children[slot-1]
		left, err := t.p.GetLeaf(leftIdx)
		if err != nil {
			return err
		}
		return t.mergeLeaves(leftIdx, left, leafIdx, leaf, parentEntry.dirIdx, parent, slot-1, path[:len(path)-1])
	}

	rightIdx := parent.Children[slot+1]
	right, err := t.p.GetLeaf(rightIdx)
	if err != nil {
		return err
	}
	return t.mergeLeaves(leafIdx, leaf, rightIdx, right, parentEntry.dirIdx, parent, slot, path[:len(path)-1])
}

// mergeLeaves folds right into left, frees right, and removes the
// separator between them from parent, propagating any resulting directory
// underflow via finishDirectoryChange.
func (t *Tree) mergeLeaves(leftIdx page.PageIdx, left *page.LeafPage, rightIdx page.PageIdx, right *page.LeafPage, parentIdx page.PageIdx, parent *page.DirectoryPage, sepIdx int, ancestorPath []pathEntry) error {
	copy(left.Keys[left.Count:left.Count+right.Count], right.Keys[:right.Count])
	copy(left.Values[left.Count:left.Count+right.Count], right.Values[:right.Count])
	left.Count += right.Count
	left.NextLeaf = right.NextLeaf

	meta := t.p.Meta()
	if meta.DataTail == rightIdx {
		meta.DataTail = leftIdx
	}

	if err := t.p.PutLeaf(leftIdx, left); err != nil {
		return err
	}
	if err := t.freePage(rightIdx); err != nil {
		return err
	}

	removeDirEntry(parent, sepIdx)
	return t.finishDirectoryChange(parentIdx, parent, ancestorPath)
}

func removeDirEntry(dir *page.DirectoryPage, sepIdx int) {
	copy(dir.Keys[sepIdx:dir.Count-1], dir.Keys[sepIdx+1:dir.Count])
	copy(dir.Children[sepIdx+1:dir.Count], dir.Children[sepIdx+2:dir.Count+1])
	dir.Count--
}

// finishDirectoryChange writes dir back and, if it's underfull and isn't
// the root, resolves the underflow against a sibling; the root is exempt
// from the fill invariant (spec.md invariant 6a) but may need to collapse.
func (t *Tree) finishDirectoryChange(dirIdx page.PageIdx, dir *page.DirectoryPage, ancestorPath []pathEntry) error {
	meta := t.p.Meta()
	if dirIdx == meta.RootPage {
		if err := t.p.PutDirectory(dirIdx, dir); err != nil {
			return err
		}
		return t.maybeCollapseRoot(dirIdx, dir)
	}

	if !dir.IsUnderfull() {
		return t.p.PutDirectory(dirIdx, dir)
	}
	return t.resolveDirUnderflow(dirIdx, dir, ancestorPath)
}

// maybeCollapseRoot implements spec.md §4.4's root collapse: once the root
// holds a single child and no separators, that child becomes the new root
// and depth decreases by one, down to a floor of depth 1.
func (t *Tree) maybeCollapseRoot(dirIdx page.PageIdx, dir *page.DirectoryPage) error {
	if dir.Count != 0 {
		return nil
	}
	meta := t.p.Meta()
	if meta.Depth <= 1 {
		return nil
	}
	meta.RootPage = dir.Children[0]
	meta.Depth--
	return t.freePage(dirIdx)
}

// resolveDirUnderflow mirrors resolveLeafUnderflow one level up: steal a
// separator/child pair from a sibling directory if one can spare it, else
// merge with a sibling and propagate further up ancestorPath.
func (t *Tree) resolveDirUnderflow(dirIdx page.PageIdx, dir *page.DirectoryPage, ancestorPath []pathEntry) error {
	parentEntry := ancestorPath[len(ancestorPath)-1]
	parent, err := t.p.GetDirectory(parentEntry.dirIdx)
	if err != nil {
		return err
	}
	slot := parentEntry.slot

	if slot > 0 {
		leftIdx := parent.Children[slot-1]
		left, err := t.p.GetDirectory(leftIdx)
		if err != nil {
			return err
		}
		if left.CanAllowStolenKey() {
			return t.stealFromLeftDir(parentEntry.dirIdx, parent, slot, leftIdx, left, dirIdx, dir)
		}
	}

	if slot < parent.Count {
		rightIdx := parent.Children[slot+1]
		right, err := t.p.GetDirectory(rightIdx)
		if err != nil {
			return err
		}
		if right.CanAllowStolenKey() {
			return t.stealFromRightDir(parentEntry.dirIdx, parent, slot, dirIdx, dir, rightIdx, right)
		}
	}

	if slot > 0 {
		leftIdx := parent.Children[slot-1]
		left, err := t.p.GetDirectory(leftIdx)
		if err != nil {
			return err
		}
		return t.mergeDirectories(leftIdx, left, dirIdx, dir, parentEntry.dirIdx, parent, slot-1, ancestorPath[:len(ancestorPath)-1])
	}

	rightIdx := parent.Children[slot+1]
	right, err := t.p.GetDirectory(rightIdx)
	if err != nil {
		return err
	}
	return t.mergeDirectories(dirIdx, dir, rightIdx, right, parentEntry.dirIdx, parent, slot, ancestorPath[:len(ancestorPath)-1])
}

// stealFromLeftDir rotates the parent separator down to become dir's new
// first separator, rotates the left sibling's last separator up to replace
// it, and moves the left sibling's last child to the front of dir.
func (t *Tree) stealFromLeftDir(parentIdx page.PageIdx, parent *page.DirectoryPage, slot int, leftIdx page.PageIdx, left *page.DirectoryPage, dirIdx page.PageIdx, dir *page.DirectoryPage) error {
	downSep := parent.Keys[slot-1]
	upSep := left.Keys[left.Count-1]
	movedChild := left.Children[left.Count]

	copy(dir.Keys[1:dir.Count+1], dir.Keys[:dir.Count])
	dir.Keys[0] = downSep
	copy(dir.Children[1:dir.Count+2], dir.Children[:dir.Count+1])
	dir.Children[0] = movedChild
	dir.Count++

	left.Count--
	parent.Keys[slot-1] = upSep

	if err := t.p.PutDirectory(leftIdx, left); err != nil {
		return err
	}
	if err := t.p.PutDirectory(dirIdx, dir); err != nil {
		return err
	}
	return t.p.PutDirectory(parentIdx, parent)
}

// stealFromRightDir is the mirror image: the parent separator rotates down
// to become dir's new last separator, the right sibling's first separator
// rotates up, and the right sibling's first child moves to dir's end.
func (t *Tree) stealFromRightDir(parentIdx page.PageIdx, parent *page.DirectoryPage, slot int, dirIdx page.PageIdx, dir *page.DirectoryPage, rightIdx page.PageIdx, right *page.DirectoryPage) error {
	downSep := parent.Keys[slot]
	upSep := right.Keys[0]
	movedChild := right.Children[0]

	dir.Keys[dir.Count] = downSep
	dir.Children[dir.Count+1] = movedChild
	dir.Count++

	copy(right.Keys[:right.Count-1], right.Keys[1:right.Count])
	copy(right.Children[:right.Count], right.Children[1:right.Count+1])
	right.Count--

	parent.Keys[slot] = upSep

	if err := t.p.PutDirectory(dirIdx, dir); err != nil {
		return err
	}
	if err := t.p.PutDirectory(rightIdx, right); err != nil {
		return err
	}
	return t.p.PutDirectory(parentIdx, parent)
}

// mergeDirectories concatenates left's separators, the parent separator
// between the pair (which descends into the merged node), and right's
// separators (and children likewise), frees right, and removes that
// separator from parent, propagating further underflow up ancestorPath.
func (t *Tree) mergeDirectories(leftIdx page.PageIdx, left *page.DirectoryPage, rightIdx page.PageIdx, right *page.DirectoryPage, parentIdx page.PageIdx, parent *page.DirectoryPage, sepIdx int, ancestorPath []pathEntry) error {
	descending := parent.Keys[sepIdx]
	left.Keys[left.Count] = descending
	copy(left.Keys[left.Count+1:left.Count+1+right.Count], right.Keys[:right.Count])
	copy(left.Children[left.Count+1:left.Count+2+right.Count], right.Children[:right.Count+1])
	left.Count = left.Count + 1 + right.Count

	if err := t.p.PutDirectory(leftIdx, left); err != nil {
		return err
	}
	if err := t.freePage(rightIdx); err != nil {
		return err
	}

	removeDirEntry(parent, sepIdx)
	return t.finishDirectoryChange(parentIdx, parent, ancestorPath)
}
