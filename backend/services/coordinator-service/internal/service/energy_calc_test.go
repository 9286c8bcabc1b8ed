package service

import (
	"testing"
	"time"
)

func TestComputeCharge(t *testing.T) {
	cases := []struct {
		name       string
		start, end int64
		rate       float64
		kwh        float64
		cost       int64
	}{
		{name: "regular", start: 1000, end: 6000, rate: 20000, kwh: 5, cost: 100000},
		{name: "rounds cost", start: 0, end: 1234, rate: 33, kwh: 1.234, cost: 41},
		{name: "no energy", start: 500, end: 500, rate: 20000},
		{name: "meter rollback", start: 5000, end: 4000, rate: 20000},
	}
	for _, tc := range cases {
		got := ComputeCharge(tc.start, tc.end, tc.rate)
		if got.EnergyKWh != tc.kwh || got.Cost != tc.cost {
			t.Fatalf("%s: expected %v/%d, got %v/%d", tc.name, tc.kwh, tc.cost, got.EnergyKWh, got.Cost)
		}
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	h := func(n int) time.Time { return baseTime.Add(time.Duration(n) * time.Hour) }
	if !Overlaps(h(0), h(2), h(1), h(3)) {
		t.Fatalf("partial overlap not detected")
	}
	if !Overlaps(h(0), h(4), h(1), h(2)) {
		t.Fatalf("containment not detected")
	}
	if Overlaps(h(0), h(1), h(1), h(2)) {
		t.Fatalf("touching intervals must not overlap")
	}
}
