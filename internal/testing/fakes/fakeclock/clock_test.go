package fakeclock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClock_AdvanceFiresAfter(t *testing.T) {
	c := New(epoch)
	ch := c.After(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(time.Second)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("After did not fire")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestClock_AfterNonPositive(t *testing.T) {
	c := New(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestClock_TickerFiresOnAdvance(t *testing.T) {
	c := New(epoch)
	tk := c.NewTicker(time.Minute)
	defer tk.Stop()

	c.Advance(30 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestClock_StoppedTickerIsSilent(t *testing.T) {
	c := New(epoch)
	tk := c.NewTicker(time.Second)
	if c.Tickers() != 1 {
		t.Fatalf("Tickers() = %d, want 1", c.Tickers())
	}
	tk.Stop()
	if c.Tickers() != 0 {
		t.Fatalf("Tickers() after Stop = %d, want 0", c.Tickers())
	}

	c.Advance(time.Hour)
	tk.(*Ticker).Tick()
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestClock_Set(t *testing.T) {
	c := New(epoch)
	later := epoch.Add(48 * time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() = %v, want %v", c.Now(), later)
	}
}

func TestClock_Periods(t *testing.T) {
	c := New(epoch)
	a := c.NewTicker(time.Second)
	c.NewTicker(time.Minute)
	a.Stop()
	if p := c.Periods(); len(p) != 1 || p[0] != time.Minute {
		t.Errorf("Periods() = %v, want [1m]", p)
	}
}
