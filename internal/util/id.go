package util

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateID returns a prefixed random identifier, e.g. "R1a2b3c4d5e6f708".
func GenerateID(prefix string) string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return prefix + hex.EncodeToString(bytes)
}
