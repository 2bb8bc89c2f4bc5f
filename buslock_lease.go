package lime2node

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultLeaseTTL = 90 * time.Second

// A LeaseMutex is used where cooperative process-external locks are not
// available. The lock file holds the owner pid and a liveness timestamp
// refreshed by the holder; a lease not refreshed within the TTL belongs to
// a dead process and is reclaimed.
//
// Reclaiming is best effort: two processes reclaiming the same stale lease
// at the same instant may both succeed.
type LeaseMutex struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

func NewLeaseMutex(path string, ttl time.Duration) *LeaseMutex {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	return &LeaseMutex{
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}
}

func (m *LeaseMutex) TryAcquire() (BusLock, error) {
	l, err := m.create()
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, lockError(m.path, err)
	}

	if !m.stale() {
		return nil, lockError(m.path, ErrBusy)
	}

	if err = os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, lockError(m.path, err)
	}

	l, err = m.create()
	if errors.Is(err, os.ErrExist) {
		return nil, lockError(m.path, ErrBusy)
	}
	if err != nil {
		return nil, lockError(m.path, err)
	}
	return l, nil
}

func (m *LeaseMutex) create() (*lease, error) {
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	l := &lease{
		mutex: m,
		f:     f,
		done:  make(chan struct{}),
	}
	if err = l.refresh(); err != nil {
		f.Close()
		os.Remove(m.path)
		return nil, err
	}

	go l.heartbeat(m.ttl / 3)
	return l, nil
}

func (m *LeaseMutex) stale() bool {
	p, err := os.ReadFile(m.path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}

	fields := strings.Fields(string(p))
	if len(fields) != 2 {
		// Half written lease, give its owner a chance unless it is old.
		fi, err := os.Stat(m.path)
		return err == nil && m.now().Sub(fi.ModTime()) > m.ttl
	}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return true
	}

	return m.now().Sub(time.Unix(0, ts)) > m.ttl
}

type lease struct {
	sync  sync.Mutex
	once  sync.Once
	mutex *LeaseMutex
	f     *os.File
	done  chan struct{}
	err   error
}

func (l *lease) refresh() error {
	l.sync.Lock()
	defer l.sync.Unlock()

	content := fmt.Sprintf("%d %d\n", os.Getpid(), l.mutex.now().UnixNano())
	if _, err := l.f.WriteAt([]byte(content), 0); err != nil {
		return err
	}
	return l.f.Truncate(int64(len(content)))
}

func (l *lease) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = l.refresh()
		case <-l.done:
			return
		}
	}
}

func (l *lease) Release() error {
	l.once.Do(func() {
		close(l.done)

		l.sync.Lock()
		defer l.sync.Unlock()

		l.err = errors.Join(l.f.Close(), os.Remove(l.mutex.path))
	})
	return l.err
}
