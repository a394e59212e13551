package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Checksum holds the digest and size of an archive
type Checksum struct {
	SHA256 string
	Size   int64
}

// CalculateChecksum streams the file at path through SHA-256
func CalculateChecksum(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   n,
	}, nil
}
