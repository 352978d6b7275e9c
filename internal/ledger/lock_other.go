//go:build !unix

package ledger

import (
	"fmt"
	"os"
)

// Lock creates path + ".lock" exclusively. A stale lock file left by a
// crashed process has to be removed by hand.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path+lockSuffix, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	return &FileLock{file: f}, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	name := l.file.Name()
	err := l.file.Close()
	l.file = nil
	os.Remove(name)
	return err
}
