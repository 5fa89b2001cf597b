package driver

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"borrowck/internal/source"
)

// Digest is a SHA-256 cache key.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// cacheKey: H(schema || fingerprint || content hash).
func cacheKey(file *source.File, fingerprint string) Digest {
	h := sha256.New()
	var schema [2]byte
	binary.BigEndian.PutUint16(schema[:], diskCacheSchemaVersion)
	_, _ = h.Write(schema[:])
	_, _ = h.Write([]byte(fingerprint))
	_, _ = h.Write(file.Hash[:])
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
