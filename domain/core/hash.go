package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, for logs and file names.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ComputeHash hashes an ordered list of parts. Parts are separated so that
// ("ab", "c") and ("a", "bc") differ.
func ComputeHash(parts ...string) Hash {
	var data strings.Builder
	for _, part := range parts {
		data.WriteString(fmt.Sprintf("%d:", len(part)))
		data.WriteString(part)
	}
	return NewHash([]byte(data.String()))
}

// ComputeMapHash hashes a map independent of iteration order.
func ComputeMapHash(values map[string]string) Hash {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		parts = append(parts, key, values[key])
	}
	return ComputeHash(parts...)
}
