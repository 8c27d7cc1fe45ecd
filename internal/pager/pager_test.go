package pager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagedtree/pagedtree/internal/carbonaware"
	"github.com/pagedtree/pagedtree/internal/page"
)

func TestInitLaysOutInitialPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	p, err := Init(path)
	require.NoError(t, err)
	defer p.Close()

	meta := p.Meta()
	assert.Equal(t, page.PageIdx(1), meta.RootPage)
	assert.Equal(t, page.PageIdx(2), meta.DataHead)
	assert.Equal(t, page.PageIdx(2), meta.DataTail)
	assert.Equal(t, uint64(3), meta.PagesAllocated)
	assert.Equal(t, uint32(1), meta.Depth)
	assert.Equal(t, page.NullIdx, meta.NextFreePage)

	root, err := p.GetDirectory(1)
	require.NoError(t, err)
	assert.Equal(t, 0, root.Count)
	assert.Equal(t, page.PageIdx(2), root.Children[0])

	leaf, err := p.GetLeaf(2)
	require.NoError(t, err)
	assert.Equal(t, 0, leaf.Count)
	assert.Equal(t, page.NullIdx, leaf.NextLeaf)
}

func TestPutGetRoundTripsThroughPager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	p, err := Init(path)
	require.NoError(t, err)
	defer p.Close()

	leaf, err := p.GetLeaf(2)
	require.NoError(t, err)
	leaf.Count = 1
	leaf.Keys[0] = 42
	leaf.Values[0] = 84
	require.NoError(t, p.PutLeaf(2, leaf))

	got, err := p.GetLeaf(2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, page.Key(42), got.Keys[0])
}

func TestExtendGrowsFileByOnePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	p, err := Init(path)
	require.NoError(t, err)
	defer p.Close()

	p.meta.PagesAllocated++
	idx, err := p.Extend()
	require.NoError(t, err)
	assert.Equal(t, page.PageIdx(3), idx)

	leaf := &page.LeafPage{Count: 1, NextLeaf: page.NullIdx}
	leaf.Keys[0] = 7
	require.NoError(t, p.PutLeaf(idx, leaf))
	got, err := p.GetLeaf(idx)
	require.NoError(t, err)
	assert.Equal(t, page.Key(7), got.Keys[0])
}

func TestOpenReloadsPersistedMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	p, err := Init(path)
	require.NoError(t, err)
	p.meta.Depth = 3
	require.NoError(t, p.PutMeta())
	require.NoError(t, p.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint32(3), reopened.Meta().Depth)
}

func TestCarbonAwareFsyncDefersUnderHighIntensity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	mock := carbonaware.NewMockProvider("local", nil)
	mock.SetIntensity(false, 90.0)

	p, err := Init(path, WithCarbonAwareFsync(mock, "local"))
	require.NoError(t, err)
	defer p.Close()

	leaf, err := p.GetLeaf(2)
	require.NoError(t, err)
	require.NoError(t, p.PutLeaf(2, leaf))

	p.fsyncMu.Lock()
	dirty := p.dirtySync
	p.fsyncMu.Unlock()
	assert.True(t, dirty, "expected fsync to be deferred under high carbon intensity")
}
