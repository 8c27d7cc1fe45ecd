package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataPageRoundTrip(t *testing.T) {
	m := &MetadataPage{
		NextFreePage:   7,
		RootPage:       1,
		DataHead:       2,
		DataTail:       9,
		PagesAllocated: 12,
		Depth:          3,
	}
	buf := make([]byte, PageSize)
	m.Encode(buf)

	got, err := DecodeMetadataPage(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDirectoryPageRoundTrip(t *testing.T) {
	d := &DirectoryPage{Count: 3}
	d.Keys[0], d.Keys[1], d.Keys[2] = 10, 20, 30
	d.Children[0], d.Children[1], d.Children[2], d.Children[3] = 1, 2, 3, 4

	buf := make([]byte, PageSize)
	d.Encode(buf)

	got, err := DecodeDirectoryPage(buf)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestLeafPageRoundTrip(t *testing.T) {
	l := &LeafPage{Count: 2, NextLeaf: 42}
	l.Keys[0], l.Keys[1] = 5, 6
	l.Values[0], l.Values[1] = 50, 60

	buf := make([]byte, PageSize)
	l.Encode(buf)

	got, err := DecodeLeafPage(buf)
	require.NoError(t, err)
	assert.Equal(t, l, got)
}

func TestFreePageRoundTrip(t *testing.T) {
	f := &FreePage{NextFreePage: 99}
	buf := make([]byte, PageSize)
	f.Encode(buf)

	got, err := DecodeFreePage(buf)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeWrongTypeReturnsError(t *testing.T) {
	l := &LeafPage{}
	buf := make([]byte, PageSize)
	l.Encode(buf)

	_, err := DecodeDirectoryPage(buf)
	assert.Error(t, err)
}

func TestDirectoryFindChildIndex(t *testing.T) {
	d := &DirectoryPage{Count: 3}
	d.Keys[0], d.Keys[1], d.Keys[2] = 10, 20, 30

	assert.Equal(t, 0, d.FindChildIndex(5))
	assert.Equal(t, 1, d.FindChildIndex(10))
	assert.Equal(t, 1, d.FindChildIndex(15))
	assert.Equal(t, 3, d.FindChildIndex(30))
	assert.Equal(t, 3, d.FindChildIndex(99))
}

func TestLeafFindKey(t *testing.T) {
	l := &LeafPage{Count: 3}
	l.Keys[0], l.Keys[1], l.Keys[2] = 10, 20, 30

	idx, found := l.FindKey(20)
	assert.True(t, found)
	assert.Equal(t, 1, idx)

	idx, found = l.FindKey(15)
	assert.False(t, found)
	assert.Equal(t, 1, idx)

	idx, found = l.FindKey(99)
	assert.False(t, found)
	assert.Equal(t, 3, idx)
}

func TestUnderfullThresholds(t *testing.T) {
	d := &DirectoryPage{Count: DirKeyCount / 2}
	assert.False(t, d.IsUnderfull())
	assert.False(t, d.CanAllowStolenKey())

	d.Count = DirKeyCount/2 - 1
	assert.True(t, d.IsUnderfull())
	assert.False(t, d.CanAllowStolenKey())

	d.Count = DirKeyCount/2 + 1
	assert.False(t, d.IsUnderfull())
	assert.True(t, d.CanAllowStolenKey())

	l := &LeafPage{Count: LeafRecordCount / 2}
	assert.False(t, l.IsUnderfull())
	assert.False(t, l.CanAllowStolenKey())

	l.Count = LeafRecordCount/2 - 1
	assert.True(t, l.IsUnderfull())
	assert.False(t, l.CanAllowStolenKey())
}
