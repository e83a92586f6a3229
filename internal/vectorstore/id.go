package vectorstore

import (
	"crypto/sha256"
	"encoding/binary"
)

// StableID derives a deterministic positive point id from a logical
// key. A cryptographic digest keeps the derivation stable across
// process restarts and collision-resistant, so re-ingesting the same
// logical chunk overwrites its previous record.
func StableID(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8]) &^ (1 << 63)
}
