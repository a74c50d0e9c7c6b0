package ratelimit

import (
	"testing"
	"time"

	"github.com/trustguide/directory/internal/clock"
)

func TestLimiter_RejectsSixthWithinWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.Fixed(now)
	l := New(5, 60*time.Second, fc)

	for i := 0; i < 5; i++ {
		if !l.Allow("v1:f1") {
			t.Fatalf("accept %d should have been allowed", i)
		}
	}
	if l.Allow("v1:f1") {
		t.Fatal("sixth accept within window should have been rejected")
	}
}

func TestLimiter_FreesASlotAfterWindowElapses(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := start
	l := New(5, 60*time.Second, clockFunc(func() time.Time { return cur }))

	for i := 0; i < 5; i++ {
		if !l.Allow("v1:f1") {
			t.Fatalf("accept %d should have been allowed", i)
		}
	}
	if l.Allow("v1:f1") {
		t.Fatal("sixth accept should have been rejected before window elapsed")
	}

	cur = start.Add(61 * time.Second)
	if !l.Allow("v1:f1") {
		t.Fatal("accept after window elapsed should be allowed")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, time.Minute, clock.Fixed(now))
	if !l.Allow("a") {
		t.Fatal("a should be allowed")
	}
	if !l.Allow("b") {
		t.Fatal("b should be allowed independently of a")
	}
	if l.Allow("a") {
		t.Fatal("a should now be rejected")
	}
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }
