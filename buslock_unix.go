//go:build unix

package lime2node

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

func newPlatformMutex(path string) BusMutex {
	return NewFlockMutex(path)
}

// A FlockMutex relies on flock(2) advisory locks. The kernel drops the lock
// when the holder dies, so it can not leak.
type FlockMutex struct {
	path string
}

func NewFlockMutex(path string) *FlockMutex {
	return &FlockMutex{path: path}
}

func (m *FlockMutex) TryAcquire() (BusLock, error) {
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, lockError(m.path, err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, lockError(m.path, ErrBusy)
		}
		return nil, lockError(m.path, err)
	}

	if err = writePID(f); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, lockError(m.path, err)
	}

	return &flock{f: f}, nil
}

type flock struct {
	once sync.Once
	f    *os.File
	err  error
}

// Release is idempotent. The file is kept in place: unlinking it would let a
// concurrent opener lock an orphaned inode.
func (l *flock) Release() error {
	l.once.Do(func() {
		l.err = errors.Join(
			unix.Flock(int(l.f.Fd()), unix.LOCK_UN),
			l.f.Close(),
		)
	})
	return l.err
}
