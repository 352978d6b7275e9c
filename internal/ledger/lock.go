package ledger

import (
	"errors"
	"os"
)

// ErrLocked means another process owns the ledger.
var ErrLocked = errors.New("ledger is locked by another process")

const lockSuffix = ".lock"

// FileLock is an advisory lock guarding a ledger path.
type FileLock struct {
	file *os.File
}
