package datasets

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// DigestAlgorithm names a content hash used for artifact verification.
type DigestAlgorithm string

const (
	// DigestMD5 is the algorithm dataset providers publish checksums in.
	// It is the default when a digest carries no algorithm prefix.
	DigestMD5 DigestAlgorithm = "md5"

	// DigestSHA256 is SHA-256.
	DigestSHA256 DigestAlgorithm = "sha256"

	// DigestBLAKE3 is unkeyed 256-bit BLAKE3.
	DigestBLAKE3 DigestAlgorithm = "blake3"
)

// newHash returns a fresh hasher for the algorithm.
func (a DigestAlgorithm) newHash() (hash.Hash, error) {
	switch a {
	case DigestMD5:
		return md5.New(), nil
	case DigestSHA256:
		return sha256.New(), nil
	case DigestBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: digest algorithm %q", ErrUnsupportedFormat, string(a))
	}
}

// Sum returns the lowercase hex digest of data.
// Unknown algorithms yield an empty string, which never matches a digest.
func (a DigestAlgorithm) Sum(data []byte) string {
	h, err := a.newHash()
	if err != nil {
		return ""
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SumReader streams r through the hasher without buffering it in memory.
func (a DigestAlgorithm) SumReader(r io.Reader) (string, error) {
	h, err := a.newHash()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("computing %s digest: %w", a, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest computes the MD5 hex digest of data.
func Digest(data []byte) string {
	return DigestMD5.Sum(data)
}

// ParseDigest splits an expected digest of the form "<hex>" or "<algo>:<hex>".
// A bare hex string is taken to be MD5. The hex part is lowercased.
func ParseDigest(s string) (DigestAlgorithm, string, error) {
	algo, sum := DigestMD5, s
	if idx := strings.IndexByte(s, ':'); idx != -1 {
		algo, sum = DigestAlgorithm(strings.ToLower(s[:idx])), s[idx+1:]
	}
	if _, err := algo.newHash(); err != nil {
		return "", "", err
	}
	sum = strings.ToLower(strings.TrimSpace(sum))
	if sum == "" {
		return "", "", fmt.Errorf("%w: empty digest", ErrIntegrity)
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return "", "", fmt.Errorf("%w: digest %q is not hex", ErrIntegrity, s)
	}
	return algo, sum, nil
}

// verifyDigest checks data against an expected digest string.
// Returns nil if the digest matches, ErrIntegrity otherwise.
func verifyDigest(data []byte, expected string) error {
	algo, want, err := ParseDigest(expected)
	if err != nil {
		return err
	}
	if got := algo.Sum(data); got != want {
		return fmt.Errorf("%w: %s %s, want %s", ErrIntegrity, algo, got, want)
	}
	return nil
}

// DigestFile streams the file at path through the given algorithm.
func DigestFile(path string, algo DigestAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	return algo.SumReader(f)
}
