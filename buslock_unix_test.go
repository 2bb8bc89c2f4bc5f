//go:build unix

package lime2node

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlockMutex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.lock")
	m := NewFlockMutex(path)

	lock, err := m.TryAcquire()
	require.NoError(t, err)

	p, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(p)))

	// Another opener of the same file, as a second process would do.
	_, err = NewFlockMutex(path).TryAcquire()
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, lock.Release())

	_, err = os.Stat(path)
	assert.NoError(t, err, "lock file is kept in place")
}
