// Package fakerand is a deterministic ports.Random for tests.
package fakerand

import (
	"sync"

	"github.com/acolita/ptyd/internal/ports"
)

// Random cycles through a fixed byte pattern.
type Random struct {
	mu      sync.Mutex
	pattern []byte
	pos     int
}

// New cycles through pattern; an empty pattern yields 0x00..0xff.
func New(pattern []byte) *Random {
	if len(pattern) == 0 {
		pattern = make([]byte, 256)
		for i := range pattern {
			pattern[i] = byte(i)
		}
	}
	return &Random{pattern: append([]byte(nil), pattern...)}
}

// NewSequential is New(nil).
func NewSequential() *Random { return New(nil) }

func (r *Random) Read(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range b {
		b[i] = r.pattern[r.pos]
		r.pos = (r.pos + 1) % len(r.pattern)
	}
	return len(b), nil
}

// Reset rewinds to the start of the pattern.
func (r *Random) Reset() {
	r.mu.Lock()
	r.pos = 0
	r.mu.Unlock()
}

var _ ports.Random = (*Random)(nil)
