package timehealth

import (
	"testing"
	"time"
)

func TestClockLatchStaysFalseBeforeEpoch(t *testing.T) {
	var l ClockLatch
	l.Check(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if l.Valid() {
		t.Fatal("latch should not flip before the sentinel epoch")
	}
}

func TestClockLatchFlipsAfterEpochAndStays(t *testing.T) {
	var l ClockLatch
	l.Check(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if !l.Valid() {
		t.Fatal("latch should flip once past the sentinel epoch")
	}

	// One-way: feeding an earlier time afterward must not un-latch it.
	l.Check(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	if !l.Valid() {
		t.Fatal("latch must never flip back to false")
	}
}
