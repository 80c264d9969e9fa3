package statistics

import (
	"math"
	"testing"
)

func TestDistribution_Empty(t *testing.T) {
	var d Distribution

	s, err := d.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s != (Summary{}) {
		t.Errorf("Expected zero summary for empty distribution, got %+v", s)
	}
}

func TestDistribution_SingleValue(t *testing.T) {
	var d Distribution
	d.Add(4)

	s, err := d.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.Count != 1 || s.Sum != 4 || s.Mean != 4 || s.Median != 4 || s.P95 != 4 || s.Max != 4 {
		t.Errorf("Unexpected summary for single value: %+v", s)
	}
	if s.StdDev != 0 {
		t.Errorf("Expected stddev of 0 for single value, got %f", s.StdDev)
	}
}

func TestDistribution_Values(t *testing.T) {
	var d Distribution
	for v := 1; v <= 20; v++ {
		d.Add(float64(v))
	}

	s, err := d.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.Count != 20 {
		t.Errorf("Expected 20 samples, got %d", s.Count)
	}
	if s.Sum != 210 {
		t.Errorf("Expected sum of 210, got %f", s.Sum)
	}
	if s.Mean != 10.5 {
		t.Errorf("Expected mean of 10.5, got %f", s.Mean)
	}
	if s.Median != 10.5 {
		t.Errorf("Expected median of 10.5, got %f", s.Median)
	}
	if s.P95 != 19 {
		t.Errorf("Expected p95 of 19, got %f", s.P95)
	}
	if s.Max != 20 {
		t.Errorf("Expected max of 20, got %f", s.Max)
	}
	// Population standard deviation of 1..20.
	want := math.Sqrt((20*20 - 1) / 12.0)
	if math.Abs(s.StdDev-want) > 1e-9 {
		t.Errorf("Expected stddev of %f, got %f", want, s.StdDev)
	}
}

func TestDistribution_Merge(t *testing.T) {
	var a, b Distribution
	a.Add(1)
	a.Add(2)
	b.Add(3)

	a.Merge(&b)
	if a.Count() != 3 {
		t.Errorf("Expected 3 samples after merge, got %d", a.Count())
	}
	if b.Count() != 1 {
		t.Errorf("Merge must not modify its argument, got %d samples", b.Count())
	}
}
