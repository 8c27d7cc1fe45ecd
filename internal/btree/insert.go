package btree

import "github.com/pagedtree/pagedtree/internal/page"

// Put inserts key/value, overwriting any existing value for key. Splits
// propagate up the descent path recorded by descend; a split reaching past
// the root grows the tree's depth by one (spec.md §4.3).
func (t *Tree) Put(key page.Key, value page.Value) error {
	leafIdx, path, err := t.descend(key)
	if err != nil {
		return err
	}
	leaf, err := t.p.GetLeaf(leafIdx)
	if err != nil {
		return err
	}

	if idx, found := leaf.FindKey(key); found {
		leaf.Values[idx] = value
		return t.p.PutLeaf(leafIdx, leaf)
	} else if leaf.Count < page.LeafRecordCount {
		insertLeafAt(leaf, idx, key, value)
		return t.p.PutLeaf(leafIdx, leaf)
	}

	rightIdx, sep, err := t.splitLeaf(leafIdx, leaf, key, value)
	if err != nil {
		return err
	}
	return t.propagateSplit(path, sep, rightIdx)
}

func insertLeafAt(leaf *page.LeafPage, idx int, key page.Key, value page.Value) {
	copy(leaf.Keys[idx+1:leaf.Count+1], leaf.Keys[idx:leaf.Count])
	copy(leaf.Values[idx+1:leaf.Count+1], leaf.Values[idx:leaf.Count])
	leaf.Keys[idx] = key
	leaf.Values[idx] = value
	leaf.Count++
}

// splitLeaf inserts (key, value) into a full leaf and splits it in two:
// records [0, ceil(n/2)) stay put, [ceil(n/2), n) move to a newly allocated
// right leaf. The promoted separator is the first key of the right leaf
// (spec.md §4.3 tie-break rules).
func (t *Tree) splitLeaf(leafIdx page.PageIdx, leaf *page.LeafPage, key page.Key, value page.Value) (page.PageIdx, page.Key, error) {
	n := leaf.Count + 1
	keys := make([]page.Key, n)
	vals := make([]page.Value, n)

	idx, _ := leaf.FindKey(key)
	copy(keys[:idx], leaf.Keys[:idx])
	copy(vals[:idx], leaf.Values[:idx])
	keys[idx] = key
	vals[idx] = value
	copy(keys[idx+1:], leaf.Keys[idx:leaf.Count])
	copy(vals[idx+1:], leaf.Values[idx:leaf.Count])

	left := (n + 1) / 2

	leaf.Count = left
	copy(leaf.Keys[:left], keys[:left])
	copy(leaf.Values[:left], vals[:left])

	right := &page.LeafPage{Count: n - left, NextLeaf: leaf.NextLeaf}
	copy(right.Keys[:right.Count], keys[left:])
	copy(right.Values[:right.Count], vals[left:])

	rightIdx, err := t.allocLeaf(right)
	if err != nil {
		return 0, 0, err
	}
	leaf.NextLeaf = rightIdx

	meta := t.p.Meta()
	if meta.DataTail == leafIdx {
		meta.DataTail = rightIdx
	}
	if err := t.p.PutLeaf(leafIdx, leaf); err != nil {
		return 0, 0, err
	}
	if err := t.p.PutMeta(); err != nil {
		return 0, 0, err
	}

	return rightIdx, right.Keys[0], nil
}

// propagateSplit inserts (sep, rightIdx) into the directory named by the
// last entry of path (the immediate parent of the node that just split),
// splitting that directory in turn if it's full, and so on up the path.
// Once the path is exhausted, the split has reached past the root and the
// tree grows a new one (spec.md §4.3 "root growth").
func (t *Tree) propagateSplit(path []pathEntry, sep page.Key, rightIdx page.PageIdx) error {
	for i := len(path) - 1; i >= 0; i-- {
		entry := path[i]
		dir, err := t.p.GetDirectory(entry.dirIdx)
		if err != nil {
			return err
		}
		sepIdx := entry.slot

		if dir.Count < page.DirKeyCount {
			insertDirAt(dir, sepIdx, sep, rightIdx)
			return t.p.PutDirectory(entry.dirIdx, dir)
		}

		newRightIdx, midSep, err := t.splitDirectory(entry.dirIdx, dir, sepIdx, sep, rightIdx)
		if err != nil {
			return err
		}
		sep, rightIdx = midSep, newRightIdx
	}
	return t.growRoot(sep, rightIdx)
}

func insertDirAt(dir *page.DirectoryPage, sepIdx int, key page.Key, rightChild page.PageIdx) {
	childIdx := sepIdx + 1
	copy(dir.Keys[sepIdx+1:dir.Count+1], dir.Keys[sepIdx:dir.Count])
	dir.Keys[sepIdx] = key
	copy(dir.Children[childIdx+1:dir.Count+2], dir.Children[childIdx:dir.Count+1])
	dir.Children[childIdx] = rightChild
	dir.Count++
}

// splitDirectory inserts (sep, rightChild) into a full directory at sepIdx
// and splits it: left keeps separators [0, floor(n/2)) and the matching
// children, the separator at floor(n/2) is promoted (not copied to either
// side), and the right directory takes the rest (spec.md §4.3 tie-break
// rules).
func (t *Tree) splitDirectory(dirIdx page.PageIdx, dir *page.DirectoryPage, sepIdx int, sep page.Key, rightChild page.PageIdx) (page.PageIdx, page.Key, error) {
	n := dir.Count + 1
	keys := make([]page.Key, n)
	children := make([]page.PageIdx, n+1)

	childIdx := sepIdx + 1
	copy(keys[:sepIdx], dir.Keys[:sepIdx])
	keys[sepIdx] = sep
	copy(keys[sepIdx+1:], dir.Keys[sepIdx:dir.Count])

	copy(children[:childIdx], dir.Children[:childIdx])
	children[childIdx] = rightChild
	copy(children[childIdx+1:], dir.Children[childIdx:dir.Count+1])

	mid := n / 2

	dir.Count = mid
	copy(dir.Keys[:mid], keys[:mid])
	copy(dir.Children[:mid+1], children[:mid+1])

	right := &page.DirectoryPage{Count: n - mid - 1}
	copy(right.Keys[:right.Count], keys[mid+1:])
	copy(right.Children[:right.Count+1], children[mid+1:])

	rightIdx, err := t.allocDirectory(right)
	if err != nil {
		return 0, 0, err
	}
	if err := t.p.PutDirectory(dirIdx, dir); err != nil {
		return 0, 0, err
	}

	return rightIdx, keys[mid], nil
}

// growRoot allocates a new root directory with a single separator and the
// old root plus the newly split-off directory as its two children.
func (t *Tree) growRoot(sep page.Key, rightIdx page.PageIdx) error {
	meta := t.p.Meta()
	newRoot := &page.DirectoryPage{Count: 1}
	newRoot.Keys[0] = sep
	newRoot.Children[0] = meta.RootPage
	newRoot.Children[1] = rightIdx

	newRootIdx, err := t.allocDirectory(newRoot)
	if err != nil {
		return err
	}
	meta.RootPage = newRootIdx
	meta.Depth++
	return t.p.PutMeta()
}
