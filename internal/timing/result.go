package timing

// Result is the payload produced by a completed run.
type Result struct {
	DistanceMeters float64 `json:"distanceMeters"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	SpeedMS        float64 `json:"speedMS"`
	SpeedKmh       float64 `json:"speedKmh"`

	// Interpolated crossing instants on the session time source.
	StartTime  float64 `json:"startTime"`
	FinishTime float64 `json:"finishTime"`
}

// computeResult derives elapsed time and speed from the two crossing events.
// A non-positive elapsed time is an invariant violation and yields
// InvalidTimingError, never a speed.
func computeResult(start, finish *CrossingEvent, distanceMeters float64) (*Result, error) {
	elapsed := finish.Time - start.Time
	if elapsed <= 0 {
		return nil, &InvalidTimingError{StartTime: start.Time, FinishTime: finish.Time}
	}

	speedMS := distanceMeters / elapsed
	return &Result{
		DistanceMeters: distanceMeters,
		ElapsedSeconds: elapsed,
		SpeedMS:        speedMS,
		SpeedKmh:       speedMS * 3.6,
		StartTime:      start.Time,
		FinishTime:     finish.Time,
	}, nil
}
