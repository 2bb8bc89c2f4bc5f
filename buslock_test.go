package lime2node

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMutexExclusion(t *testing.T, m BusMutex) {
	t.Helper()

	lock, err := m.TryAcquire()
	require.NoError(t, err)

	start := time.Now()
	_, err = m.TryAcquire()
	assert.ErrorIs(t, err, ErrBusy)
	assert.Less(t, time.Since(start), time.Second, "must fail fast")

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release(), "release is idempotent")

	lock, err = m.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestNewBusMutex(t *testing.T) {
	testMutexExclusion(t, NewBusMutex(filepath.Join(t.TempDir(), "bus.lock")))
}

func TestLeaseMutex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.lease")
	m := NewLeaseMutex(path, time.Minute)
	testMutexExclusion(t, m)

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "lease removed on release")
}

func TestLeaseMutex_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.lease")
	now := time.Now()

	m := NewLeaseMutex(path, time.Minute)
	m.now = func() time.Time { return now }

	// Lease of a dead holder.
	require.NoError(t, os.WriteFile(path, fmt.Appendf(nil, "999999 %d\n", now.Add(-2*time.Minute).UnixNano()), 0o644))
	lock, err := m.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	// Lease of a live holder.
	require.NoError(t, os.WriteFile(path, fmt.Appendf(nil, "999999 %d\n", now.Add(-10*time.Second).UnixNano()), 0o644))
	_, err = m.TryAcquire()
	assert.ErrorIs(t, err, ErrBusy)
}
