package signal

import (
	"testing"
	"time"
)

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewRoomRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("room-1") {
			t.Fatalf("request %d blocked under the limit", i)
		}
	}
	if rl.Allow("room-1") {
		t.Fatal("request over the limit allowed")
	}
	// Other rooms have their own window.
	if !rl.Allow("room-2") {
		t.Fatal("independent room blocked")
	}
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRoomRateLimiter(1, time.Minute)
	if !rl.Allow("room-1") {
		t.Fatal("first request blocked")
	}
	if rl.Allow("room-1") {
		t.Fatal("second request allowed")
	}
	rl.Forget("room-1")
	if !rl.Allow("room-1") {
		t.Fatal("request blocked after Forget")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRoomRateLimiter(1, 10*time.Millisecond)
	if !rl.Allow("room-1") {
		t.Fatal("first request blocked")
	}
	if rl.Allow("room-1") {
		t.Fatal("second request allowed inside the window")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("room-1") {
		t.Fatal("request blocked after the window passed")
	}
}
