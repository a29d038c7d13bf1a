// Package realclock backs ports.Clock with the time package.
package realclock

import (
	"time"

	"github.com/acolita/ptyd/internal/ports"
)

// Clock is the wall clock used outside of tests.
type Clock struct{}

// New returns a wall clock.
func New() *Clock {
	return &Clock{}
}

func (Clock) Now() time.Time                         { return time.Now() }
func (Clock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (Clock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTicker starts a time.Ticker firing every d.
func (Clock) NewTicker(d time.Duration) ports.Ticker {
	return ticker{t: time.NewTicker(d)}
}

type ticker struct {
	t *time.Ticker
}

func (k ticker) C() <-chan time.Time { return k.t.C }
func (k ticker) Stop()               { k.t.Stop() }

var _ ports.Clock = (*Clock)(nil)
