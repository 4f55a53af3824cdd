package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "cnt_9f3a...". The prefix marks
// the entity kind in logs and foreign keys; 16 random bytes keep collisions
// out of the picture without coordinating anything.
func NewID(prefix string) string {
	raw := make([]byte, 16)
	_, _ = rand.Read(raw)
	if prefix == "" {
		return hex.EncodeToString(raw)
	}
	return prefix + "_" + hex.EncodeToString(raw)
}
