package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores synthesized audio keyed by voice and text
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// AudioKey derives the cache key for one synthesized utterance.
// The text is trimmed so trailing whitespace from the dialogue layer does not split entries.
func AudioKey(voiceID, modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(voiceID))
	h.Write([]byte{'|'})
	h.Write([]byte(modelID))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(text)))
	return "claimvoice-tts-v1-" + hex.EncodeToString(h.Sum(nil))
}
