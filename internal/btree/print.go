package btree

import (
	"fmt"
	"io"
	"strings"

	"github.com/pagedtree/pagedtree/internal/page"
)

// PrintTree writes a diagnostic dump of every page reachable from the root
// to w, indented by depth (spec.md §6 "print_tree"). It's a pure read; w
// does the actual I/O so the core stays free of a logging dependency.
func (t *Tree) PrintTree(w io.Writer) error {
	meta := t.p.Meta()
	return t.printSubtree(w, meta.RootPage, 0, meta.Depth)
}

func (t *Tree) printSubtree(w io.Writer, idx page.PageIdx, depth uint32, levelsLeft uint32) error {
	indent := strings.Repeat("  ", int(depth))
	if levelsLeft == 0 {
		leaf, err := t.p.GetLeaf(idx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%sLEAF[%d] count=%d keys=%v next=%d\n", indent, idx, leaf.Count, leaf.Keys[:leaf.Count], leaf.NextLeaf)
		return nil
	}

	dir, err := t.p.GetDirectory(idx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%sDIR[%d] count=%d keys=%v\n", indent, idx, dir.Count, dir.Keys[:dir.Count])
	for i := 0; i <= dir.Count; i++ {
		if err := t.printSubtree(w, dir.Children[i], depth+1, levelsLeft-1); err != nil {
			return err
		}
	}
	return nil
}
