package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestLoadFileCachesAndHits(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", 100)

	c := New(1 << 20)
	h1, err := c.LoadFile("a.txt", path)
	require.NoError(t, err)
	require.Len(t, h1.Data, 100)
	h1.Release()

	h2, ok := c.Acquire("a.txt")
	require.True(t, ok)
	require.Len(t, h2.Data, 100)
	h2.Release()

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Items)
}

func TestEvictionSkipsPinnedEntries(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTempFile(t, dir, "a.bin", 60)
	pathB := writeTempFile(t, dir, "b.bin", 60)

	c := New(100) // tight enough that both can't fit at once
	hA, err := c.LoadFile("a.bin", pathA)
	require.NoError(t, err)

	// a.bin stays pinned; loading b.bin should evict nothing since a.bin
	// is the only other entry and it's pinned, so capacity is simply
	// exceeded until release.
	hB, err := c.LoadFile("b.bin", pathB)
	require.NoError(t, err)

	stats := c.Stats()
	require.Equal(t, int64(2), stats.Items, "pinned entry must survive over-capacity")

	hA.Release()
	hB.Release()

	// releasing a.bin while the cache is over capacity already evicted it
	// (the least-recently-used entry); loading c.bin now goes over capacity
	// again and evicts b.bin.
	pathC := writeTempFile(t, dir, "c.bin", 60)
	hC, err := c.LoadFile("c.bin", pathC)
	require.NoError(t, err)
	defer hC.Release()

	_, ok := c.Acquire("a.bin")
	require.False(t, ok, "a.bin should have been evicted")
}

func TestInvalidateRefusesPinnedEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", 10)

	c := New(1 << 20)
	h, err := c.LoadFile("a.txt", path)
	require.NoError(t, err)

	require.False(t, c.Invalidate("a.txt"), "pinned entry must not invalidate")
	h.Release()
	require.True(t, c.Invalidate("a.txt"))
}

func TestUsageObserverFires(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", 50)

	c := New(1 << 20)
	var gotItems, gotBytes int64
	c.SetUsageObserver(func(items, bytes int64) {
		gotItems, gotBytes = items, bytes
	})

	h, err := c.LoadFile("a.txt", path)
	require.NoError(t, err)
	defer h.Release()

	require.Equal(t, int64(1), gotItems)
	require.Equal(t, int64(50), gotBytes)
}
