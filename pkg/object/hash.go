package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the length of a printable Hash.
const HashSize = 64

// HashBytes computes the raw SHA-256 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-256 of the envelope "type len\0content".
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha256.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ParseHash validates s as a full-length lowercase hex object ID.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	if len(s) != HashSize {
		return "", fmt.Errorf("parse hash %q: want %d hex characters, got %d", s, HashSize, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("parse hash %q: invalid character %q", s, c)
		}
	}
	return Hash(s), nil
}

// IsZero reports whether h is unset.
func (h Hash) IsZero() bool { return h == "" }

// Short returns the abbreviated form used in human-facing output.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

func (h Hash) String() string { return string(h) }
