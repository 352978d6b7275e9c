package security

import (
	"errors"
	"io"
	"testing"

	clamd "github.com/dutchcoders/go-clamd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sm2p/internal/config"
)

type fakeClient struct {
	pingErr error
	results []*clamd.ScanResult
	scanned []byte
	aborts  []chan bool
}

func (f *fakeClient) Ping() error { return f.pingErr }

func (f *fakeClient) ScanStream(r io.Reader, abort chan bool) (chan *clamd.ScanResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.scanned = data
	f.aborts = append(f.aborts, abort)
	ch := make(chan *clamd.ScanResult, len(f.results))
	for _, res := range f.results {
		ch <- res
	}
	close(ch)
	return ch, nil
}

func TestNewDisabledByDefault(t *testing.T) {
	store, err := config.LoadBytes(nil)
	require.NoError(t, err)

	s, err := New(store)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())

	res, err := s.ScanBytes([]byte("anything"))
	require.NoError(t, err)
	assert.False(t, res.Scanned)
}

func TestScanBytesClean(t *testing.T) {
	client := &fakeClient{results: []*clamd.ScanResult{{Status: clamd.RES_OK}}}
	s, err := NewWithClient(client)
	require.NoError(t, err)

	res, err := s.ScanBytes([]byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, res.Scanned)
	assert.False(t, res.Infected)
	assert.Equal(t, []byte("%PDF-1.4"), client.scanned)
}

func TestScanBytesInfected(t *testing.T) {
	client := &fakeClient{results: []*clamd.ScanResult{
		{Status: clamd.RES_FOUND, Description: "Eicar-Test-Signature"},
	}}
	s, err := NewWithClient(client)
	require.NoError(t, err)

	res, err := s.ScanBytes([]byte("X5O!P%@AP"))
	require.NoError(t, err)
	assert.True(t, res.Infected)
	assert.Equal(t, []string{"Eicar-Test-Signature"}, res.Threats)
}

func TestScanBytesDaemonError(t *testing.T) {
	client := &fakeClient{results: []*clamd.ScanResult{
		{Status: clamd.RES_ERROR, Description: "size limit exceeded"},
	}}
	s, err := NewWithClient(client)
	require.NoError(t, err)

	_, err = s.ScanBytes([]byte("data"))
	assert.Error(t, err)
}

func TestNewWithClientPingFailure(t *testing.T) {
	_, err := NewWithClient(&fakeClient{pingErr: errors.New("connection refused")})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScanReleasesAbortChannel(t *testing.T) {
	client := &fakeClient{results: []*clamd.ScanResult{{Status: clamd.RES_OK}}}
	s, err := NewWithClient(client)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.ScanBytes([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}

	require.Len(t, client.aborts, 3)
	for _, abort := range client.aborts {
		_, open := <-abort
		assert.False(t, open, "abort channel must be closed once the scan is drained")
	}
}
