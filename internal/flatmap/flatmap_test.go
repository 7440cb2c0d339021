package flatmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	m := New()
	m.Put(1, 100)
	m.Put(2, 200)

	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(100), v)

	m.Delete(1)
	_, ok = m.Get(1)
	assert.False(t, ok)

	v, ok = m.Get(2)
	require.True(t, ok)
	assert.Equal(t, uint64(200), v)
}

func TestContainsMatchesGet(t *testing.T) {
	m := New()
	m.Put(1, 100)
	assert.True(t, m.Contains(1))
	assert.False(t, m.Contains(2))

	m.Delete(1)
	assert.False(t, m.Contains(1))
}

func TestGetAbsentKeyReturnsFalse(t *testing.T) {
	m := New()
	_, ok := m.Get(999)
	assert.False(t, ok)
}

func TestOverwriteSameKey(t *testing.T) {
	m := New()
	m.Put(5, 1)
	m.Put(5, 2)
	v, ok := m.Get(5)
	require.True(t, ok)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, 1, m.Len())
}

// TestTombstoneDoesNotBreakProbeForLaterKeys verifies a key inserted after
// an earlier key's deletion (landing in the same probe run) is still found
// correctly: tombstones must be traversed, not treated as a stopping point.
func TestTombstoneDoesNotBreakProbeForLaterKeys(t *testing.T) {
	// At capacity 8, keys 4, 7, and 20 all hash into the same initial
	// bucket and land in one probe run: 4 first, then 7 and 20 each
	// bumped one slot further by linear probing.
	m := withCapacity(8)
	m.Put(4, 40)
	m.Put(7, 70)
	m.Put(20, 200)

	m.Delete(7)

	v, ok := m.Get(20)
	require.True(t, ok, "probe must not stop at the tombstone left by deleting 7")
	assert.Equal(t, uint64(200), v)

	v, ok = m.Get(4)
	require.True(t, ok)
	assert.Equal(t, uint64(40), v)

	_, ok = m.Get(7)
	assert.False(t, ok)
}

func TestGrowPreservesAllLiveEntries(t *testing.T) {
	m := New()
	const n = 500
	for i := uint64(0); i < n; i++ {
		m.Put(i, i*10)
	}
	for i := uint64(0); i < n; i++ {
		v, ok := m.Get(i)
		require.True(t, ok, "key %d should survive growth", i)
		assert.Equal(t, i*10, v)
	}
	assert.Equal(t, n, m.Len())
}

func TestDeleteThenReinsertDoesNotLeakTombstones(t *testing.T) {
	m := withCapacity(8)
	for i := uint64(0); i < 6; i++ {
		m.Put(i, i)
	}
	for i := uint64(0); i < 6; i++ {
		m.Delete(i)
	}
	// Heavy delete traffic should trigger a tombstone-fraction-triggered
	// grow/rebuild on the next insert rather than degrading every probe to
	// a near-full-table scan.
	m.Put(100, 1)
	v, ok := m.Get(100)
	require.True(t, ok)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 1, m.Len())
}
