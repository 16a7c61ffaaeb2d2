package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowBurstThenDeny(t *testing.T) {
	rl := New(1, 3)
	defer rl.Stop()

	for i := range 3 {
		if !rl.Allow("begin") {
			t.Fatalf("attempt %d should fit the burst", i)
		}
	}
	if rl.Allow("begin") {
		t.Error("fourth attempt should be rejected")
	}
}

// Each pairing handshake gets its own bucket, so hammering one code
// cannot starve another device's attempt.
func TestIndependentKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	rl.Allow("complete:pair_a")
	if rl.Allow("complete:pair_a") {
		t.Error("pair_a bucket should be exhausted")
	}
	if !rl.Allow("complete:pair_b") {
		t.Error("pair_b should be independent and allowed")
	}
}

func TestWaitPacesUploads(t *testing.T) {
	rl := New(10, 1)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx, "upload"); err != nil {
		t.Fatalf("first Wait() failed: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("first Wait() should be immediate")
	}

	// At 10 rps the second permit arrives after roughly 100ms.
	start = time.Now()
	if err := rl.Wait(ctx, "upload"); err != nil {
		t.Fatalf("second Wait() failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("second Wait() took %v, want ~100ms", elapsed)
	}
}

func TestWaitContextCancelled(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()

	rl.Allow("begin")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx, "begin"); err == nil {
		t.Error("Wait() should fail when the context expires first")
	}
}

func TestStopResetsBudgets(t *testing.T) {
	rl := New(1, 1)

	rl.Allow("begin")
	if rl.Allow("begin") {
		t.Fatal("bucket should be exhausted before Stop")
	}

	rl.Stop()
	if !rl.Allow("begin") {
		t.Error("Stop should reset the key's budget")
	}
}
