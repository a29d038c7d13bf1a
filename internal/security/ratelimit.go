package security

import (
	"sync"
	"time"

	"github.com/acolita/ptyd/internal/adapters/realclock"
	"github.com/acolita/ptyd/internal/ports"
)

// DefaultMaxAuthFailures is the default number of failures before lockout.
const DefaultMaxAuthFailures = 3

// DefaultAuthLockoutDuration is the default lockout duration.
const DefaultAuthLockoutDuration = 5 * time.Minute

// AuthRateLimiter locks a key (a session id for sudo) after too many wrong
// passwords in a row.
type AuthRateLimiter struct {
	mu              sync.Mutex
	failures        map[string]*authFailure
	maxFailures     int
	lockoutDuration time.Duration
	clock           ports.Clock
}

type authFailure struct {
	count    int
	last     time.Time
	lockedAt time.Time
}

// RateLimiterOption configures an AuthRateLimiter.
type RateLimiterOption func(*AuthRateLimiter)

// WithRateLimiterClock sets the clock used for lockout windows.
func WithRateLimiterClock(clock ports.Clock) RateLimiterOption {
	return func(r *AuthRateLimiter) { r.clock = clock }
}

// NewAuthRateLimiter creates a limiter; non-positive arguments use the defaults.
func NewAuthRateLimiter(maxFailures int, lockoutDuration time.Duration, opts ...RateLimiterOption) *AuthRateLimiter {
	r := &AuthRateLimiter{
		failures: make(map[string]*authFailure),
		clock:    realclock.New(),
	}
	r.SetLimits(maxFailures, lockoutDuration)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLimits changes the thresholds; existing lockouts keep their start time.
func (r *AuthRateLimiter) SetLimits(maxFailures int, lockoutDuration time.Duration) {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxAuthFailures
	}
	if lockoutDuration <= 0 {
		lockoutDuration = DefaultAuthLockoutDuration
	}
	r.mu.Lock()
	r.maxFailures = maxFailures
	r.lockoutDuration = lockoutDuration
	r.mu.Unlock()
}

// IsLocked reports whether key is locked and for how much longer.
func (r *AuthRateLimiter) IsLocked(key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.failures[key]
	if !ok || f.lockedAt.IsZero() {
		return false, 0
	}
	elapsed := r.clock.Now().Sub(f.lockedAt)
	if elapsed >= r.lockoutDuration {
		delete(r.failures, key)
		return false, 0
	}
	return true, r.lockoutDuration - elapsed
}

// RecordFailure counts a wrong password and reports whether the key is now locked.
func (r *AuthRateLimiter) RecordFailure(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	f, ok := r.failures[key]
	if !ok || (!f.lockedAt.IsZero() && now.Sub(f.lockedAt) >= r.lockoutDuration) {
		f = &authFailure{}
		r.failures[key] = f
	}
	f.count++
	f.last = now
	if f.count >= r.maxFailures && f.lockedAt.IsZero() {
		f.lockedAt = now
	}
	return !f.lockedAt.IsZero()
}

// RecordSuccess forgets every failure for key.
func (r *AuthRateLimiter) RecordSuccess(key string) {
	r.mu.Lock()
	delete(r.failures, key)
	r.mu.Unlock()
}

// Failures returns the current failure count for key.
func (r *AuthRateLimiter) Failures(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.failures[key]; ok {
		return f.count
	}
	return 0
}

// Cleanup drops expired lockouts and failures older than twice the lockout.
func (r *AuthRateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for k, f := range r.failures {
		if !f.lockedAt.IsZero() && now.Sub(f.lockedAt) >= r.lockoutDuration {
			delete(r.failures, k)
			continue
		}
		if f.lockedAt.IsZero() && now.Sub(f.last) >= 2*r.lockoutDuration {
			delete(r.failures, k)
		}
	}
}
