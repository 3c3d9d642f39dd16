// Package mediastore issues short-lived, single-use tokens for media
// references used in push notifications. Entries live in memory only and are
// removed on first read or when their TTL elapses, whichever happens first.
package mediastore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const tokenBytes = 16

// Kind distinguishes what an entry resolves to.
type Kind string

const (
	// KindRedirect entries resolve to an external URL the caller should
	// redirect to.
	KindRedirect Kind = "redirect"
	// KindBinary entries resolve to raw bytes served with a content type.
	KindBinary Kind = "binary"
)

// Entry is a media reference held until it is consumed or expires.
type Entry struct {
	Kind        Kind
	Target      string
	ContentType string
	Data        []byte
}

type storedEntry struct {
	Entry
	timer *time.Timer
}

// Store holds token -> entry mappings with per-entry expiry timers.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*storedEntry
}

// New creates a Store whose entries expire after ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*storedEntry),
	}
}

// Create stores the entry under a fresh random token and arms its expiry
// timer. The returned token is hex-encoded and guaranteed not to collide with
// any currently live token.
func (s *Store) Create(entry Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.newTokenLocked()
	if err != nil {
		return "", err
	}

	stored := &storedEntry{Entry: entry}
	stored.timer = time.AfterFunc(s.ttl, func() {
		s.expire(token)
	})
	s.entries[token] = stored

	return token, nil
}

// Consume atomically looks up and removes the entry for token, cancelling
// its expiry timer. The second return value is false when the token was
// never issued, already consumed, or already expired.
func (s *Store) Consume(token string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[token]
	if !ok {
		return Entry{}, false
	}

	stored.timer.Stop()
	delete(s.entries, token)

	return stored.Entry, true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// expire is the timer callback. If the entry was consumed first the token is
// already gone and this is a no-op.
func (s *Store) expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, token)
}

func (s *Store) newTokenLocked() (string, error) {
	for {
		buf := make([]byte, tokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate media token: %w", err)
		}
		token := hex.EncodeToString(buf)
		if _, exists := s.entries[token]; !exists {
			return token, nil
		}
	}
}
