package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	clamd "github.com/dutchcoders/go-clamd"

	"sm2p/internal/config"
)

// Section is the config section of the scanner.
const Section = "scan"

var schema = map[string]config.Option{
	"enabled": {Type: config.TypeBoolean, Default: false},
	"address": {Type: config.TypeString, Default: "localhost:3310"},
}

// ErrUnavailable means scanning is enabled but ClamAV does not answer.
var ErrUnavailable = errors.New("ClamAV is unavailable")

// Declare adds the scanner settings to store.
func Declare(store *config.Store) error {
	return store.Declare(Section, schema)
}

// Client is the part of the ClamAV client the scanner uses.
type Client interface {
	Ping() error
	ScanStream(r io.Reader, abort chan bool) (chan *clamd.ScanResult, error)
}

// Scanner provides virus scanning of attachment bytes
type Scanner struct {
	enabled bool
	client  Client
}

// ScanResult contains the result of a virus scan
type ScanResult struct {
	Scanned  bool
	Infected bool
	Threats  []string
}

// New declares the scanner settings on store and returns a scanner. A
// disabled scanner passes everything without contacting ClamAV.
func New(store *config.Store) (*Scanner, error) {
	if err := Declare(store); err != nil {
		return nil, err
	}
	r := store.Section(Section)
	enabled, address := r.Bool("enabled"), r.String("address")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if !enabled {
		return &Scanner{}, nil
	}
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}
	return NewWithClient(clamd.NewClamd(address))
}

// NewWithClient returns an enabled scanner using client. It fails when the
// daemon does not answer.
func NewWithClient(client Client) (*Scanner, error) {
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Scanner{enabled: true, client: client}, nil
}

// IsEnabled returns whether the scanner is enabled
func (s *Scanner) IsEnabled() bool {
	return s.enabled
}

// ScanBytes scans a byte slice for viruses
func (s *Scanner) ScanBytes(data []byte) (*ScanResult, error) {
	return s.ScanReader(bytes.NewReader(data))
}

// ScanReader scans an io.Reader for viruses
func (s *Scanner) ScanReader(reader io.Reader) (*ScanResult, error) {
	if !s.enabled {
		return &ScanResult{Scanned: false}, nil
	}

	result := &ScanResult{
		Scanned: true,
		Threats: []string{},
	}

	// closing abort ends the client's watcher goroutine for this scan
	abort := make(chan bool)
	defer close(abort)

	scanResults, err := s.client.ScanStream(reader, abort)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	for sr := range scanResults {
		switch sr.Status {
		case clamd.RES_FOUND:
			result.Infected = true
			result.Threats = append(result.Threats, sr.Description)
		case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
			return nil, fmt.Errorf("scan failed: %s", sr.Description)
		}
	}

	return result, nil
}
