package btree

import "github.com/pagedtree/pagedtree/internal/page"

// reserveIndex implements spec.md §4.1's alloc_page policy, minus writing
// the page contents: pop the free list if it's non-empty, else extend the
// file by one page. The metadata write is issued before this returns.
func (t *Tree) reserveIndex() (page.PageIdx, error) {
	meta := t.p.Meta()
	if meta.NextFreePage != page.NullIdx {
		idx := meta.NextFreePage
		free, err := t.p.GetFree(idx)
		if err != nil {
			return 0, err
		}
		meta.NextFreePage = free.NextFreePage
		if err := t.p.PutMeta(); err != nil {
			return 0, err
		}
		return idx, nil
	}

	idx := page.PageIdx(meta.PagesAllocated)
	meta.PagesAllocated++
	if _, err := t.p.Extend(); err != nil {
		return 0, err
	}
	if err := t.p.PutMeta(); err != nil {
		return 0, err
	}
	return idx, nil
}

// allocDirectory reserves a page index and writes d there.
func (t *Tree) allocDirectory(d *page.DirectoryPage) (page.PageIdx, error) {
	idx, err := t.reserveIndex()
	if err != nil {
		return 0, err
	}
	if err := t.p.PutDirectory(idx, d); err != nil {
		return 0, err
	}
	return idx, nil
}

// allocLeaf reserves a page index and writes l there.
func (t *Tree) allocLeaf(l *page.LeafPage) (page.PageIdx, error) {
	idx, err := t.reserveIndex()
	if err != nil {
		return 0, err
	}
	if err := t.p.PutLeaf(idx, l); err != nil {
		return 0, err
	}
	return idx, nil
}

// freePage implements spec.md §4.1's free_page: write a FreePage at idx
// linking it to the current free-list head, then make it the new head.
// idx must not be the metadata page and must not still be referenced from
// the tree — enforcing that is the caller's job (an invariant violation
// here is a programmer error, not a recoverable condition).
func (t *Tree) freePage(idx page.PageIdx) error {
	if idx == page.NullIdx {
		panic("btree: attempted to free the metadata page index")
	}
	meta := t.p.Meta()
	fp := &page.FreePage{NextFreePage: meta.NextFreePage}
	if err := t.p.PutFree(idx, fp); err != nil {
		return err
	}
	meta.NextFreePage = idx
	return t.p.PutMeta()
}
