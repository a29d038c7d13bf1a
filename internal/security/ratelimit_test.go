package security

import (
	"testing"
	"time"

	"github.com/acolita/ptyd/internal/testing/fakes/fakeclock"
)

func newTestLimiter(max int, lockout time.Duration) (*AuthRateLimiter, *fakeclock.Clock) {
	clock := fakeclock.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewAuthRateLimiter(max, lockout, WithRateLimiterClock(clock)), clock
}

func TestAuthRateLimiter_NotLockedInitially(t *testing.T) {
	r, _ := newTestLimiter(3, time.Minute)
	if locked, _ := r.IsLocked("s1"); locked {
		t.Error("new key should not be locked")
	}
}

func TestAuthRateLimiter_LockAfterMaxFailures(t *testing.T) {
	r, _ := newTestLimiter(3, time.Minute)
	if r.RecordFailure("s1") || r.RecordFailure("s1") {
		t.Fatal("locked before max failures")
	}
	if !r.RecordFailure("s1") {
		t.Fatal("RecordFailure() did not report the lock")
	}
	locked, remaining := r.IsLocked("s1")
	if !locked || remaining != time.Minute {
		t.Errorf("IsLocked() = %v, %v", locked, remaining)
	}
	if locked, _ := r.IsLocked("s2"); locked {
		t.Error("lock leaked to another key")
	}
}

func TestAuthRateLimiter_SuccessResets(t *testing.T) {
	r, _ := newTestLimiter(3, time.Minute)
	r.RecordFailure("s1")
	r.RecordFailure("s1")
	r.RecordSuccess("s1")
	if r.Failures("s1") != 0 {
		t.Errorf("Failures() = %d after success", r.Failures("s1"))
	}
	r.RecordFailure("s1")
	if locked, _ := r.IsLocked("s1"); locked {
		t.Error("count was not reset by success")
	}
}

func TestAuthRateLimiter_LockoutExpires(t *testing.T) {
	r, clock := newTestLimiter(1, 5*time.Minute)
	r.RecordFailure("s1")

	clock.Advance(4 * time.Minute)
	if locked, remaining := r.IsLocked("s1"); !locked || remaining != time.Minute {
		t.Fatalf("IsLocked() = %v, %v", locked, remaining)
	}
	clock.Advance(time.Minute)
	if locked, _ := r.IsLocked("s1"); locked {
		t.Error("lockout did not expire")
	}
}

func TestAuthRateLimiter_DefaultsAndSetLimits(t *testing.T) {
	r, _ := newTestLimiter(0, 0)
	for i := 0; i < DefaultMaxAuthFailures-1; i++ {
		r.RecordFailure("k")
	}
	if locked, _ := r.IsLocked("k"); locked {
		t.Fatal("locked before the default threshold")
	}
	r.SetLimits(1, time.Second)
	r.RecordFailure("other")
	if locked, _ := r.IsLocked("other"); !locked {
		t.Error("SetLimits not applied")
	}
}

func TestAuthRateLimiter_Cleanup(t *testing.T) {
	r, clock := newTestLimiter(2, time.Minute)
	r.RecordFailure("locked")
	r.RecordFailure("locked")
	r.RecordFailure("stale")

	clock.Advance(2 * time.Minute)
	r.Cleanup()
	if r.Failures("locked") != 0 || r.Failures("stale") != 0 {
		t.Errorf("Cleanup kept entries: locked=%d stale=%d", r.Failures("locked"), r.Failures("stale"))
	}
}
