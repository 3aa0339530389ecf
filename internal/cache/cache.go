package cache

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// CachedResponse represents a cached completion
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from a model and prompt
func GenerateCacheKey(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return fmt.Sprintf("%x", h.Sum(nil))
}
