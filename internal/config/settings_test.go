package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	cfg, err := LoadSettings(newTestStore(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.HashBufferSize)
	assert.Equal(t, "./hash.db", cfg.HashStore)
	assert.Equal(t, DefaultHashKey, cfg.HashKey)
	assert.Equal(t, "INBOX", cfg.Mailbox)
	assert.Equal(t, "0000", cfg.Pin)
	assert.Equal(t, []string{"scan@liebrand.io"}, cfg.TrustedSenders)
	assert.Empty(t, cfg.Password)
}

func TestLoadSettingsFromFile(t *testing.T) {
	cfg, err := LoadSettings(newTestStore(t, `
[sm2p]
hashBufferSize = 16
trustedSender = scan@example.org:Copier <copier@example.org>
mailServer = imap.example.org
userName = scans
password = s3cret
logFormat = json
`))
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.HashBufferSize)
	assert.Equal(t, []string{"scan@example.org", "Copier <copier@example.org>"}, cfg.TrustedSenders)
	assert.Equal(t, "imap.example.org", cfg.MailServer)
	assert.Equal(t, "scans", cfg.UserName)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadSettingsValidates(t *testing.T) {
	_, err := LoadSettings(newTestStore(t, "[sm2p]\nhashBufferSize = 0\n"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = LoadSettings(newTestStore(t, "[sm2p]\nhashKey =\n"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = LoadSettings(newTestStore(t, "[sm2p]\nmaxBackups = few\n"))
	assert.ErrorIs(t, err, ErrInvalidValue)
}
