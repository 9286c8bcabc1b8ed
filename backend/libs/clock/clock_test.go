package clock

import (
	"testing"
	"time"
)

func TestSystemNowIsStoragePrecision(t *testing.T) {
	now := System{}.Now()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC, got %s", now.Location())
	}
	if now.Nanosecond()%1000 != 0 {
		t.Fatalf("expected microsecond precision, got %d ns", now.Nanosecond())
	}
}

func TestTruncatedNormalizesInnerClock(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	raw := time.Date(2026, 3, 2, 13, 0, 0, 123456789, zone)
	c := Truncated(Func(func() time.Time { return raw }))

	got := c.Now()
	want := time.Date(2026, 3, 2, 10, 0, 0, 123456000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
