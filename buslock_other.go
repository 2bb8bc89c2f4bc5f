//go:build !unix

package lime2node

func newPlatformMutex(path string) BusMutex {
	return NewLeaseMutex(path, DefaultLeaseTTL)
}
