// Package security holds sudo credentials and the policies around them.
package security

import (
	"sync"
	"time"

	"github.com/acolita/ptyd/internal/adapters/realclock"
	"github.com/acolita/ptyd/internal/ports"
)

// DefaultSudoTTL is how long a sudo password stays cached by default.
const DefaultSudoTTL = 5 * time.Minute

type secret struct {
	data    []byte
	expires time.Time
}

func (s *secret) wipe() {
	WipeBytes(s.data)
	s.data = nil
}

// SudoCache keeps one sudo password per session for a limited time.
// Expired and replaced passwords are wiped.
type SudoCache struct {
	mu      sync.Mutex
	secrets map[string]*secret
	ttl     time.Duration
	clock   ports.Clock
}

// SudoCacheOption configures a SudoCache.
type SudoCacheOption func(*SudoCache)

// WithSudoCacheClock sets the clock used for expiry.
func WithSudoCacheClock(clock ports.Clock) SudoCacheOption {
	return func(c *SudoCache) { c.clock = clock }
}

// NewSudoCache creates a cache. A ttl of zero disables caching.
func NewSudoCache(ttl time.Duration, opts ...SudoCacheOption) *SudoCache {
	c := &SudoCache{
		secrets: make(map[string]*secret),
		ttl:     ttl,
		clock:   realclock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTTL changes the lifetime of passwords cached from now on.
func (c *SudoCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// Set stores a copy of password for sessionID.
func (c *SudoCache) Set(sessionID string, password []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.secrets[sessionID]; ok {
		old.wipe()
		delete(c.secrets, sessionID)
	}
	if c.ttl <= 0 || len(password) == 0 {
		return
	}
	c.secrets[sessionID] = &secret{
		data:    append([]byte(nil), password...),
		expires: c.clock.Now().Add(c.ttl),
	}
}

// Get returns a copy of the cached password, or nil if there is none or it
// has expired. The caller owns the copy and should wipe it.
func (c *SudoCache) Get(sessionID string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.liveLocked(sessionID)
	if s == nil {
		return nil
	}
	return append([]byte(nil), s.data...)
}

// IsValid reports whether a live password is cached for sessionID.
func (c *SudoCache) IsValid(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(sessionID) != nil
}

// ExpiresIn returns the remaining lifetime, or zero.
func (c *SudoCache) ExpiresIn(sessionID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.liveLocked(sessionID)
	if s == nil {
		return 0
	}
	return s.expires.Sub(c.clock.Now())
}

func (c *SudoCache) liveLocked(sessionID string) *secret {
	s, ok := c.secrets[sessionID]
	if !ok {
		return nil
	}
	if !c.clock.Now().Before(s.expires) {
		s.wipe()
		delete(c.secrets, sessionID)
		return nil
	}
	return s
}

// Clear wipes the password cached for sessionID.
func (c *SudoCache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.secrets[sessionID]; ok {
		s.wipe()
		delete(c.secrets, sessionID)
	}
}

// ClearAll wipes every cached password.
func (c *SudoCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.secrets {
		s.wipe()
		delete(c.secrets, id)
	}
}

// Cleanup drops expired entries and returns how many were dropped.
func (c *SudoCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id := range c.secrets {
		if c.liveLocked(id) == nil {
			n++
		}
	}
	return n
}

// Len is the number of entries held, expired or not.
func (c *SudoCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.secrets)
}
