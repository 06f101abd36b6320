// Package digest computes and validates content-addressed identifiers for
// blobs stored by the patch engine.
//
// A Digest is the lowercase hex SHA256 of the git-style blob framing
// "blob <length>\0<content>", the same object header git uses for its own
// blob objects. Two byte strings with identical content always hash to the
// same Digest regardless of how they reached the hasher.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Digest is a validated, lowercase 64-character hex SHA256 digest.
type Digest string

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Parse validates s as a digest string, lowercasing it first so that
// case-insensitive input (e.g. from a manifest written by another tool) is
// accepted, while storage and comparison always use the lowercase form.
func Parse(s string) (Digest, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if !hexPattern.MatchString(lower) {
		return "", fmt.Errorf("digest: %q is not a 64-character hex string", s)
	}
	return Digest(lower), nil
}

// String returns the digest's lowercase hex representation.
func (d Digest) String() string {
	return string(d)
}

// Equal reports whether two digests identify the same content. Comparison
// is case-insensitive even though stored digests are always lowercase, so
// that a digest parsed from a differently-cased source still compares
// correctly.
func (d Digest) Equal(other Digest) bool {
	return strings.EqualFold(string(d), string(other))
}

// blobHeader returns the git-style object header for a blob of the given
// length: "blob <length>\0".
func blobHeader(length int64) []byte {
	return []byte(fmt.Sprintf("blob %d\x00", length))
}

// FromBytes computes the Digest of b.
func FromBytes(b []byte) Digest {
	h := sha256.New()
	h.Write(blobHeader(int64(len(b))))
	h.Write(b)
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// FromReader computes the Digest of exactly length bytes read from r.
func FromReader(r io.Reader, length int64) (Digest, error) {
	h := sha256.New()
	h.Write(blobHeader(length))

	n, err := io.Copy(h, io.LimitReader(r, length))
	if err != nil {
		return "", fmt.Errorf("digest: reading content: %w", err)
	}
	if n != length {
		return "", fmt.Errorf("digest: read %d bytes, expected %d", n, length)
	}

	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// FromFile computes the Digest of the file at path, following symlinks.
func FromFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("digest: stating %s: %w", path, err)
	}

	return FromReader(f, info.Size())
}
