// Package imagesource picks random images from an external provider.
package imagesource

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const defaultBaseURL = "https://picsum.photos"

// Source mints URLs for randomly seeded images. It keeps no state; repeated
// calls may occasionally produce the same seed.
type Source struct {
	baseURL string
}

// New creates a Source. baseURL overrides the default provider when
// non-empty.
func New(baseURL string) *Source {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Source{baseURL: baseURL}
}

// RandomURL returns a URL for a freshly seeded 1200x700 image.
func (s *Source) RandomURL() string {
	seed := make([]byte, 5)
	// rand.Read on the system source does not fail in practice; a short
	// read would only weaken seed variety, not correctness.
	_, _ = rand.Read(seed)
	return fmt.Sprintf("%s/seed/%s/1200/700", s.baseURL, hex.EncodeToString(seed))
}
