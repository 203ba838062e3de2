// Package cryptox holds the content checksums used by sync: SHA-1 hex digests,
// the format the sync server stores for media files.
package cryptox

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
)

// Checksum returns the hex SHA-1 of everything read from r.
func Checksum(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumBytes returns the hex SHA-1 of b.
func ChecksumBytes(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
