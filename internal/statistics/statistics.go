// Package statistics summarises how a simulation run distributed its output
// across regions and steps.
package statistics

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Summary describes a distribution of samples.
type Summary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// Distribution accumulates samples, such as records written per region.
type Distribution struct {
	values []float64
}

// Add records one sample.
func (d *Distribution) Add(v float64) {
	d.values = append(d.values, v)
}

// Merge appends every sample of other.
func (d *Distribution) Merge(other *Distribution) {
	d.values = append(d.values, other.values...)
}

// Count returns the number of samples.
func (d *Distribution) Count() int {
	return len(d.values)
}

// Summary computes the summary statistics. An empty distribution summarises
// to zeros.
func (d *Distribution) Summary() (Summary, error) {
	if len(d.values) == 0 {
		return Summary{}, nil
	}
	data := stats.Float64Data(d.values)

	var (
		s   = Summary{Count: len(d.values)}
		err error
	)
	if s.Sum, err = stats.Sum(data); err != nil {
		return Summary{}, fmt.Errorf("sum: %w", err)
	}
	if s.Mean, err = stats.Mean(data); err != nil {
		return Summary{}, fmt.Errorf("mean: %w", err)
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Summary{}, fmt.Errorf("median: %w", err)
	}
	// Nearest rank is defined for a single sample, unlike the interpolating
	// percentile.
	if s.P95, err = stats.PercentileNearestRank(data, 95); err != nil {
		return Summary{}, fmt.Errorf("p95: %w", err)
	}
	if s.Max, err = stats.Max(data); err != nil {
		return Summary{}, fmt.Errorf("max: %w", err)
	}
	if s.StdDev, err = stats.StandardDeviation(data); err != nil {
		return Summary{}, fmt.Errorf("stddev: %w", err)
	}
	return s, nil
}
