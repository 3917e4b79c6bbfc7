package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnce(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	c.AfterFunc(time.Second, func() { fired++ })

	c.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}

	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}

	c.Advance(time.Hour)
	if fired != 1 {
		t.Errorf("fired = %d after deadline, want 1", fired)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
}

func TestFake_StopIsIdempotent(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}

	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}

	// Stopping after firing is also a no-op.
	fired2 := false
	t2 := c.AfterFunc(time.Second, func() { fired2 = true })
	c.Advance(time.Second)
	if !fired2 {
		t.Fatal("timer did not fire")
	}
	if t2.Stop() {
		t.Error("Stop after fire should report false")
	}
}

func TestFake_TickRepeats(t *testing.T) {
	c := NewFake(epoch)
	var at []time.Duration
	c.Tick(time.Second, func() { at = append(at, c.Now().Sub(epoch)) })

	c.Advance(3500 * time.Millisecond)
	if len(at) != 3 {
		t.Fatalf("ticks = %d, want 3", len(at))
	}
	for i, d := range at {
		want := time.Duration(i+1) * time.Second
		if d != want {
			t.Errorf("tick %d at %v, want %v", i, d, want)
		}
	}
	if got := c.Now().Sub(epoch); got != 3500*time.Millisecond {
		t.Errorf("Now = %v, want 3.5s", got)
	}
}

func TestFake_OrderAndReentrancy(t *testing.T) {
	c := NewFake(epoch)
	var order []string

	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() {
		order = append(order, "a")
		// Scheduling from inside a callback must not deadlock.
		c.AfterFunc(500*time.Millisecond, func() { order = append(order, "a2") })
	})

	c.Advance(3 * time.Second)

	want := []string{"a", "a2", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestFake_SetBackwardsIgnored(t *testing.T) {
	c := NewFake(epoch)
	c.Set(epoch.Add(-time.Hour))
	if !c.Now().Equal(epoch) {
		t.Errorf("Now = %v, want %v", c.Now(), epoch)
	}
}

func TestReal_TickStop(t *testing.T) {
	c := New()
	ticks := make(chan struct{}, 10)
	timer := c.Tick(5*time.Millisecond, func() { ticks <- struct{}{} })

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}

	if !timer.Stop() {
		t.Error("first Stop should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
}
