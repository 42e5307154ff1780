package db

import (
	"math"
	"testing"
)

func TestComputeStatsEmpty(t *testing.T) {
	s := computeStats(nil)
	if s.Count != 0 || s.BestSec != 0 || s.MeanSec != 0 {
		t.Errorf("empty stats = %+v, want zero value", s)
	}
}

func TestComputeStatsSingle(t *testing.T) {
	s := computeStats([]float64{3.85})
	if s.Count != 1 {
		t.Errorf("count = %d, want 1", s.Count)
	}
	if s.BestSec != 3.85 || s.MeanSec != 3.85 {
		t.Errorf("best = %v mean = %v, want 3.85", s.BestSec, s.MeanSec)
	}
	if s.StdDev != 0 {
		t.Errorf("stddev = %v, want 0 for a single sample", s.StdDev)
	}
}

func TestComputeStatsSummary(t *testing.T) {
	times := []float64{4.2, 3.9, 4.0, 3.6, 4.3}
	s := computeStats(times)

	if s.Count != 5 {
		t.Errorf("count = %d, want 5", s.Count)
	}
	if s.BestSec != 3.6 {
		t.Errorf("best = %v, want 3.6", s.BestSec)
	}
	if math.Abs(s.MeanSec-4.0) > 1e-9 {
		t.Errorf("mean = %v, want 4.0", s.MeanSec)
	}
	if s.StdDev <= 0 {
		t.Errorf("stddev = %v, want > 0", s.StdDev)
	}
	if s.P50Sec < s.BestSec || s.P50Sec > 4.3 {
		t.Errorf("p50 = %v outside sample range", s.P50Sec)
	}
	if s.P90Sec < s.P50Sec {
		t.Errorf("p90 = %v below p50 = %v", s.P90Sec, s.P50Sec)
	}
}

func TestResultStatsFromDB(t *testing.T) {
	database := setupTestDB(t)

	stats, err := database.ResultStats()
	if err != nil {
		t.Fatalf("ResultStats: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("count = %d on empty db, want 0", stats.Count)
	}

	for _, elapsed := range []float64{3.85, 4.15} {
		if _, err := database.RecordResult(ResultRow{
			SessionID: "s1", Mode: "live", DistanceMeters: 30, ElapsedSeconds: elapsed,
		}); err != nil {
			t.Fatalf("RecordResult: %v", err)
		}
	}

	stats, err = database.ResultStats()
	if err != nil {
		t.Fatalf("ResultStats: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("count = %d, want 2", stats.Count)
	}
	if stats.BestSec != 3.85 {
		t.Errorf("best = %v, want 3.85", stats.BestSec)
	}
	if math.Abs(stats.MeanSec-4.0) > 1e-9 {
		t.Errorf("mean = %v, want 4.0", stats.MeanSec)
	}
}
