// Package ledger keeps the persistent set of attachment fingerprints that
// have already been processed.
//
// A Ledger maps fingerprint to the time it was inserted and never holds more
// than its configured number of entries: inserting past the bound evicts the
// oldest entries until the bound holds again. The file form is replaced
// atomically, so a crash leaves either the previous or the new ledger on disk.
//
// A Ledger is not safe for concurrent use and its file must have a single
// writer; Lock provides an advisory guard against a second process.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"sm2p/internal/util"
)

var (
	// ErrCorrupt means the ledger file exists but cannot be decoded. The
	// dedup state is unknown, so callers should stop.
	ErrCorrupt = errors.New("corrupt ledger")

	// ErrPersist means the ledger could not be written. The file at the
	// canonical path still holds the previous state.
	ErrPersist = errors.New("failed to persist ledger")
)

const filePerm = 0600

// Ledger is a bounded fingerprint -> insertion time map.
type Ledger struct {
	entries    map[string]time.Time
	maxEntries int
}

// New returns an empty ledger holding at most maxEntries fingerprints.
// A maxEntries below one disables the bound.
func New(maxEntries int) *Ledger {
	return &Ledger{
		entries:    make(map[string]time.Time),
		maxEntries: maxEntries,
	}
}

// Load reads the ledger at path. A missing or empty file yields an empty
// ledger. Entries beyond maxEntries are kept until the next Insert.
func Load(path string, maxEntries int) (*Ledger, error) {
	l := New(maxEntries)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}

	var doc map[string]stamp
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s: not an object", ErrCorrupt, path)
	}
	for fp, at := range doc {
		if fp == "" {
			return nil, fmt.Errorf("%w: %s: empty fingerprint", ErrCorrupt, path)
		}
		l.entries[fp] = time.Time(at)
	}
	return l, nil
}

// Len returns the number of fingerprints held.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Contains reports whether fp has been recorded.
func (l *Ledger) Contains(fp string) bool {
	_, ok := l.entries[fp]
	return ok
}

// InsertedAt returns the insertion time of fp.
func (l *Ledger) InsertedAt(fp string) (time.Time, bool) {
	at, ok := l.entries[fp]
	return at, ok
}

// Entries returns a copy of the fingerprint -> insertion time map.
func (l *Ledger) Entries() map[string]time.Time {
	return maps.Clone(l.entries)
}

// Insert records fp at time at, then evicts the oldest entries until the
// ledger is within its bound. It returns the evicted fingerprints, oldest
// first.
func (l *Ledger) Insert(fp string, at time.Time) []string {
	l.entries[fp] = at

	var evicted []string
	for l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		oldest := l.oldest()
		delete(l.entries, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// oldest returns the fingerprint with the earliest insertion time. Equal
// times are broken by the smaller fingerprint so eviction is deterministic.
func (l *Ledger) oldest() string {
	var (
		best   string
		bestAt time.Time
		found  bool
	)
	for fp, at := range l.entries {
		if !found || at.Before(bestAt) || (at.Equal(bestAt) && fp < best) {
			best, bestAt, found = fp, at, true
		}
	}
	return best
}

// Persist writes the ledger to path, replacing the previous file atomically.
func (l *Ledger) Persist(path string) error {
	doc := make(map[string]stamp, len(l.entries))
	for fp, at := range l.entries {
		doc[fp] = stamp(at)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := util.WriteFileAtomic(path, data, filePerm); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
