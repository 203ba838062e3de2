package cryptox

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumBytes_KnownVector(t *testing.T) {
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", ChecksumBytes([]byte("abc")))
}

func TestChecksum_MatchesChecksumBytes(t *testing.T) {
	got, err := Checksum(strings.NewReader("hello media"))
	require.NoError(t, err)
	assert.Equal(t, ChecksumBytes([]byte("hello media")), got)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read-fail") }

func TestChecksum_ReaderError(t *testing.T) {
	_, err := Checksum(failingReader{})
	require.Error(t, err)
}
