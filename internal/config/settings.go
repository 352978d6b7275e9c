package config

import "fmt"

// SectionCore is the section holding the application settings.
const SectionCore = "sm2p"

// DefaultHashKey is the historical fingerprint key. It keeps fingerprints
// compatible with existing ledgers and is not a secret.
const DefaultHashKey = "1234567890"

// Settings holds application configuration
type Settings struct {
	// Logging
	LogFileName string
	MaxFileSize int // bytes before the log file rotates
	MaxBackups  int
	LogLevel    string
	LogFormat   string // "console" or "json"

	// Mailbox access
	TrustedSenders []string
	UserName       string
	Password       string
	MailServer     string
	Mailbox        string
	Pin            string // subject marker of scan mails

	// Deduplication
	HashBufferSize int
	HashStore      string
	HashKey        string
}

// coreSchema keeps the tag form the sm2p section has always been declared in.
var coreSchema = map[string]Option{
	"logFileName":    Tagged("String", "/tmp/sm2p.log"),
	"maxFileSize":    Tagged("Integer", 1024000),
	"maxBackups":     Tagged("Integer", 4),
	"logLevel":       Tagged("String", "info"),
	"logFormat":      Tagged("String", "console"),
	"trustedSender":  Tagged("Array", "scan@liebrand.io"),
	"userName":       Tagged("String", nil),
	"password":       Tagged("String", nil),
	"mailServer":     Tagged("String", nil),
	"mailbox":        Tagged("String", "INBOX"),
	"pin":            Tagged("String", "0000"),
	"hashBufferSize": Tagged("Integer", 1024),
	"hashStore":      Tagged("String", "./hash.db"),
	"hashKey":        Tagged("String", DefaultHashKey),
}

// LoadSettings declares the core schema on s and reads it.
func LoadSettings(s *Store) (*Settings, error) {
	if err := s.Declare(SectionCore, coreSchema); err != nil {
		return nil, err
	}

	r := s.Section(SectionCore)
	cfg := &Settings{
		LogFileName:    r.String("logFileName"),
		MaxFileSize:    r.Int("maxFileSize"),
		MaxBackups:     r.Int("maxBackups"),
		LogLevel:       r.String("logLevel"),
		LogFormat:      r.String("logFormat"),
		TrustedSenders: r.List("trustedSender"),
		UserName:       r.String("userName"),
		Password:       r.String("password"),
		MailServer:     r.String("mailServer"),
		Mailbox:        r.String("mailbox"),
		Pin:            r.String("pin"),
		HashBufferSize: r.Int("hashBufferSize"),
		HashStore:      r.String("hashStore"),
		HashKey:        r.String("hashKey"),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	if cfg.HashBufferSize < 1 {
		return nil, fmt.Errorf("%w: %s.hashBufferSize must be positive, got %d",
			ErrInvalidValue, SectionCore, cfg.HashBufferSize)
	}
	if cfg.HashKey == "" {
		return nil, fmt.Errorf("%w: %s.hashKey must not be empty", ErrInvalidValue, SectionCore)
	}
	return cfg, nil
}
