package lime2node

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

const DefaultLockFile = "/tmp/lime2node_spi_bus.lock"

var ErrBusy = errors.New("bus busy: another operation is ongoing")

// A BusMutex guards the physical bus across processes.
// TryAcquire never blocks: it fails with ErrBusy when the bus is held.
type BusMutex interface {
	TryAcquire() (BusLock, error)
}

// A BusLock is held for a whole command and ACK wait cycle.
type BusLock interface {
	Release() error
}

// NewBusMutex returns the best process-external mutex of the platform.
func NewBusMutex(path string) BusMutex {
	if path == "" {
		path = DefaultLockFile
	}
	return newPlatformMutex(path)
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return err
}

func lockError(path string, err error) error {
	return fmt.Errorf("lock %s: %w", path, err)
}
