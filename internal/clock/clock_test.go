package clock

import (
	"context"
	"testing"
	"time"
)

func TestSystemSleepRespectsCancellation(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Sleep(ctx, time.Second); err == nil {
		t.Fatal("Sleep() error = nil, want context.Canceled")
	}
}

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var fired []string
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(30*time.Second, func() { fired = append(fired, "b") })

	f.Advance(20 * time.Second)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("fired after 20s = %v, want [a]", fired)
	}

	f.Advance(20 * time.Second)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("fired after 40s = %v, want [a b]", fired)
	}
}

func TestFakeTimerStopPreventsFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	timer := f.AfterFunc(5*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false, want true for pending timer")
	}

	f.Advance(10 * time.Second)
	if fired {
		t.Fatal("callback fired after Stop()")
	}
}

func TestFakeSleepUnblocksOnAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	done := make(chan error, 1)

	go func() {
		done <- f.Sleep(context.Background(), 5*time.Second)
	}()

	// Wait until Sleep has registered its timer, so Advance reaches it.
	for {
		f.mu.Lock()
		n := len(f.pending)
		f.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	f.Advance(5 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Sleep() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep() did not unblock after Advance()")
	}
}
