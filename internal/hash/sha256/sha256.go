// Package sha256 provides the content digest used to name archived pages.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Shard spreads digests over two directory levels ("ab/cd/abcd...") so that
// archive listings stay small.
func Shard(digest string) string {
	if len(digest) < 4 {
		return digest
	}
	return digest[:2] + "/" + digest[2:4] + "/" + digest
}
