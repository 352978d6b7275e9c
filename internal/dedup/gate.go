// Package dedup decides whether an attachment has been seen before.
//
// Attachments are identified by a keyed SHA-256 HMAC over their raw bytes.
// The key only separates these fingerprints from other content hashes; it is
// not a secret and gives no security guarantee.
package dedup

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"sm2p/internal/ledger"
)

// Verdict is the outcome of admitting an attachment.
type Verdict int

const (
	Accepted Verdict = iota + 1
	Duplicate
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Gate admits attachments whose fingerprint is not in the ledger and records
// them. Every admission is persisted before it is reported.
type Gate struct {
	key    []byte
	ledger *ledger.Ledger
	path   string
	now    func() time.Time
	log    zerolog.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces time.Now for insertion timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger used for admission decisions.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// NewGate returns a gate backed by l, persisting to path after every
// admission.
func NewGate(l *ledger.Ledger, path string, key []byte, opts ...Option) *Gate {
	g := &Gate{
		key:    key,
		ledger: l,
		path:   path,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fingerprint returns the base64 HMAC-SHA256 of data under the gate key.
func (g *Gate) Fingerprint(data []byte) string {
	return Fingerprint(g.key, data)
}

// Fingerprint returns the base64 HMAC-SHA256 of data under key.
func Fingerprint(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Admit records data and returns Accepted, or returns Duplicate when its
// fingerprint is already known. An error means the ledger could not be
// persisted; the in-memory ledger then still holds the new entry.
func (g *Gate) Admit(data []byte) (Verdict, error) {
	fp := g.Fingerprint(data)
	if g.ledger.Contains(fp) {
		g.logDuplicate(fp, data)
		return Duplicate, nil
	}
	if err := g.record(fp); err != nil {
		return Accepted, err
	}
	return Accepted, nil
}

// Process calls fn unless data is a duplicate. The fingerprint is recorded
// only after fn succeeds, so a failed attachment is tried again on the next
// run.
func (g *Gate) Process(data []byte, fn func() error) (Verdict, error) {
	fp := g.Fingerprint(data)
	if g.ledger.Contains(fp) {
		g.logDuplicate(fp, data)
		return Duplicate, nil
	}
	if err := fn(); err != nil {
		return Accepted, fmt.Errorf("processing %s: %w", fp, err)
	}
	if err := g.record(fp); err != nil {
		return Accepted, err
	}
	return Accepted, nil
}

func (g *Gate) record(fp string) error {
	evicted := g.ledger.Insert(fp, g.now())
	for _, old := range evicted {
		g.log.Debug().Str("hash", old).Msg("Evicted oldest hash from ledger")
	}
	if err := g.ledger.Persist(g.path); err != nil {
		return err
	}
	g.log.Debug().Str("hash", fp).Int("entries", g.ledger.Len()).Msg("Recorded hash")
	return nil
}

func (g *Gate) logDuplicate(fp string, data []byte) {
	g.log.Warn().
		Str("hash", fp).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("Saw same attachment again")
}
