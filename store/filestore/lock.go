// OS-level file locking for cross-process coordination, layered under
// the in-process sync.RWMutex that already serializes Go-level access to
// one Store.
//
// fileLock wraps flock(2) / LockFileEx with a mutex guarding the file
// handle's lifetime: the mutex is held for the entire flock syscall so
// Fd() cannot race Close() on the same *os.File. Callers use setFile(nil)
// before closing the underlying file; this blocks until any in-flight
// flock completes, then turns subsequent Lock/Unlock calls into no-ops.
package filestore

import (
	"os"
	"sync"
)

// LockMode selects shared (read) or exclusive (write) locking.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

func (l *fileLock) Lock(mode LockMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock(mode)
}

func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
