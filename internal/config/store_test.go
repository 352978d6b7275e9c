package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ini string, opts ...StoreOption) *Store {
	t.Helper()
	s, err := LoadBytes([]byte(ini), opts...)
	require.NoError(t, err)
	return s
}

func TestGetReturnsDefaultWhenNotStored(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
	}))

	v, err := s.Get("sm2p", "hashBufferSize")
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, v.Type())
	assert.Equal(t, 1024, v.AsInt())
}

func TestGetCoercesStoredValues(t *testing.T) {
	s := newTestStore(t, `
[sm2p]
hashBufferSize = 500
deskew = Yes
trustedSender = scan@example.org:copier@example.org
hashStore = /var/lib/sm2p/hash.db
`)
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
		"deskew":         {Type: TypeBoolean, Default: false},
		"trustedSender":  {Type: TypeList},
		"hashStore":      {Type: TypeString, Default: "./hash.db"},
	}))

	v, err := s.Get("sm2p", "hashBufferSize")
	require.NoError(t, err)
	assert.Equal(t, 500, v.AsInt())

	v, err = s.Get("sm2p", "deskew")
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = s.Get("sm2p", "trustedSender")
	require.NoError(t, err)
	assert.Equal(t, []string{"scan@example.org", "copier@example.org"}, v.AsList())

	v, err = s.Get("sm2p", "hashStore")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/sm2p/hash.db", v.AsString())
}

func TestGetOptionNamesAreCaseInsensitiveInFile(t *testing.T) {
	s := newTestStore(t, "[sm2p]\nHASHBUFFERSIZE = 7\n")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
	}))

	v, err := s.Get("sm2p", "hashBufferSize")
	require.NoError(t, err)
	assert.Equal(t, 7, v.AsInt())
}

func TestGetWithoutDefault(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"password":      {Type: TypeString},
		"trustedSender": {Type: TypeList},
	}))

	v, err := s.Get("sm2p", "password")
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, "", v.AsString())

	v, err = s.Get("sm2p", "trustedSender")
	require.NoError(t, err)
	assert.False(t, v.IsNull())
	assert.Empty(t, v.AsList())
}

func TestGetErrors(t *testing.T) {
	s := newTestStore(t, "[sm2p]\nhashBufferSize = lots\n")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
	}))

	_, err := s.Get("ocr", "tmpPath")
	assert.ErrorIs(t, err, ErrUnknownSection)

	_, err = s.Get("sm2p", "tmpPath")
	assert.ErrorIs(t, err, ErrUnknownOption)

	_, err = s.Get("sm2p", "hashBufferSize")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestDeclareMergesAndLastWriteWins(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("ocr", map[string]Option{
		"tmpPath": {Type: TypeString, Default: "/tmp"},
		"suffix":  {Type: TypeString, Default: ".pdf"},
	}))
	require.NoError(t, s.Declare("ocr", map[string]Option{
		"tmpPath": {Type: TypeString, Default: "/var/tmp"},
		"deskew":  {Type: TypeBoolean, Default: true},
	}))

	assert.Equal(t, []string{"deskew", "suffix", "tmpPath"}, s.Options("ocr"))

	v, err := s.Get("ocr", "tmpPath")
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp", v.AsString())

	v, err = s.Get("ocr", "suffix")
	require.NoError(t, err)
	assert.Equal(t, ".pdf", v.AsString())
}

func TestDeclareRejectsMismatchedDefault(t *testing.T) {
	s := newTestStore(t, "")
	err := s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: "1024"},
	})
	assert.ErrorIs(t, err, ErrInvalidDefault)
	assert.Empty(t, s.Sections())
}

func TestDeclareTaggedOptions(t *testing.T) {
	s := newTestStore(t, "[ocr]\ndeskew = off\n")
	require.NoError(t, s.Declare("ocr", map[string]Option{
		"deskew":   Tagged("Boolean", true),
		"language": Tagged("str", "deu"),
		"retries":  Tagged("int", 2),
	}))

	v, err := s.Get("ocr", "deskew")
	require.NoError(t, err)
	assert.Equal(t, TypeBoolean, v.Type())
	assert.False(t, v.AsBool())

	v, err = s.Get("ocr", "retries")
	require.NoError(t, err)
	assert.Equal(t, 2, v.AsInt())

	err = s.Declare("ocr", map[string]Option{"ratio": Tagged("Float", 0.5)})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestGetByFlatName(t *testing.T) {
	s := newTestStore(t, "[sm2p]\nhashBufferSize = 12\n[mail_box]\nfolder = Scans\n")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
		"hash_store":     {Type: TypeString, Default: "./hash.db"},
	}))
	require.NoError(t, s.Declare("mail_box", map[string]Option{
		"folder": {Type: TypeString, Default: "INBOX"},
	}))

	v, err := s.GetByFlatName("sm2p_hashBufferSize")
	require.NoError(t, err)
	assert.Equal(t, 12, v.AsInt())

	// option names may contain the separator themselves
	v, err = s.GetByFlatName("sm2p_hash_store")
	require.NoError(t, err)
	assert.Equal(t, "./hash.db", v.AsString())

	// so may section names
	v, err = s.GetByFlatName("mail_box_folder")
	require.NoError(t, err)
	assert.Equal(t, "Scans", v.AsString())
}

func TestGetByFlatNameFailures(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"pin": {Type: TypeString, Default: "0000"},
	}))

	_, err := s.GetByFlatName("pin")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = s.GetByFlatName("ocr_tmpPath")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = s.GetByFlatName("ocr_tmp_path")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = s.GetByFlatName("sm2p_password")
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestGetByFlatNameFoldsSectionCase(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"pin": {Type: TypeString, Default: "0000"},
	}))

	v, err := s.GetByFlatName("SM2P_pin")
	require.NoError(t, err)
	assert.Equal(t, "0000", v.AsString())
}

func TestSplitFlatNamePrefersExactSection(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("Ocr", map[string]Option{"x_y": {Type: TypeString}}))
	require.NoError(t, s.Declare("ocr_x", map[string]Option{"y": {Type: TypeString}}))

	section, option, err := s.SplitFlatName("ocr_x_y")
	require.NoError(t, err)
	assert.Equal(t, "ocr_x", section)
	assert.Equal(t, "y", option)
}

func TestMaterializeDefaults(t *testing.T) {
	s := newTestStore(t, "", WithMaterializeDefaults())
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
		"hashStore":      {Type: TypeString, Default: "./hash.db"},
		"password":       {Type: TypeString},
	}))

	_, err := s.Get("sm2p", "hashBufferSize")
	require.NoError(t, err)
	_, err = s.Get("sm2p", "password")
	require.NoError(t, err)
	_, err = s.GetByFlatName("sm2p_hashStore")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "[sm2p]")
	assert.Contains(t, out, "1024")
	assert.Contains(t, out, "hashBufferSize", "keys keep their declared spelling")
	assert.NotContains(t, out, "hashbuffersize")
	assert.NotContains(t, out, "hash.db", "flat-name lookups never write back")
	assert.NotContains(t, out, "password")
}

func TestMaterializeKeepsStoredKeys(t *testing.T) {
	s := newTestStore(t, "[sm2p]\nHASHSTORE = /var/lib/hash.db\n", WithMaterializeDefaults())
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashStore": {Type: TypeString, Default: "./hash.db"},
		"pin":       {Type: TypeString, Default: "0000"},
	}))

	v, err := s.Get("sm2p", "hashStore")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hash.db", v.AsString())
	_, err = s.Get("sm2p", "pin")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "HASHSTORE")
	assert.NotContains(t, out, "./hash.db")
	assert.Contains(t, out, "pin")
	assert.Contains(t, out, "0000")
}

func TestDefaultsNotMaterializedByDefault(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"hashBufferSize": {Type: TypeInteger, Default: 1024},
	}))
	_, err := s.Get("sm2p", "hashBufferSize")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "1024")
}

func TestEnvOverridesFile(t *testing.T) {
	env := map[string]string{"SM2P_SM2P_PASSWORD": "from-env"}
	s := newTestStore(t, "[sm2p]\npassword = from-file\npin = 4711\n",
		WithEnvPrefix("SM2P"),
		WithEnvLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"password": {Type: TypeString},
		"pin":      {Type: TypeString, Default: "0000"},
	}))

	v, err := s.Get("sm2p", "password")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v.AsString())

	v, err = s.Get("sm2p", "pin")
	require.NoError(t, err)
	assert.Equal(t, "4711", v.AsString())
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)
	require.NoError(t, s.Declare("sm2p", map[string]Option{
		"pin": {Type: TypeString, Default: "0000"},
	}))
	v, err := s.Get("sm2p", "pin")
	require.NoError(t, err)
	assert.Equal(t, "0000", v.AsString())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sm2p.ini")
	require.NoError(t, os.WriteFile(path, []byte("[ocr]\ntmpPath = /scratch # not a comment\n"), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Declare("ocr", map[string]Option{
		"tmpPath": {Type: TypeString, Default: "/tmp"},
	}))
	v, err := s.Get("ocr", "tmpPath")
	require.NoError(t, err)
	assert.Equal(t, "/scratch # not a comment", v.AsString())
}
