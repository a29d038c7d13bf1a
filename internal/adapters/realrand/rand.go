// Package realrand backs ports.Random with crypto/rand.
package realrand

import (
	"crypto/rand"

	"github.com/acolita/ptyd/internal/ports"
)

// Random reads from the operating system CSPRNG.
type Random struct{}

// New returns a crypto/rand backed source.
func New() *Random {
	return &Random{}
}

// Read fills b from crypto/rand.
func (Random) Read(b []byte) (int, error) {
	return rand.Read(b)
}

var _ ports.Random = (*Random)(nil)
