// Package hash derives stable keys for cached model outputs.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLength is the length of keys returned by EmbeddingKey.
const KeyLength = 32

// EmbeddingKey derives a cache key for an embedding of source produced by model.
// The model name is part of the key so image and text embeddings of the same
// string never collide.
func EmbeddingKey(model, source string) string {
	h := sha256.Sum256([]byte(model + "|" + source))
	return hex.EncodeToString(h[:])[:KeyLength]
}
