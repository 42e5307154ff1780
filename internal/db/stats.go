package db

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises the stored elapsed times.
type Stats struct {
	Count   int     `json:"count"`
	BestSec float64 `json:"bestSec"`
	MeanSec float64 `json:"meanSec"`
	StdDev  float64 `json:"stdDev"`
	P50Sec  float64 `json:"p50Sec"`
	P90Sec  float64 `json:"p90Sec"`
}

// ResultStats computes summary statistics over all stored results. A session
// with no results yet returns the zero Stats.
func (db *DB) ResultStats() (Stats, error) {
	times, err := db.ElapsedTimes()
	if err != nil {
		return Stats{}, err
	}
	return computeStats(times), nil
}

func computeStats(times []float64) Stats {
	if len(times) == 0 {
		return Stats{}
	}

	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	s := Stats{
		Count:   len(sorted),
		BestSec: sorted[0],
		MeanSec: stat.Mean(sorted, nil),
		P50Sec:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90Sec:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}
