package timing

// CourseDistanceMeters is the calibrated length of the sprint course.
const CourseDistanceMeters = 30.0

// Config holds tunable parameters for crossing detection and session policy.
type Config struct {
	// DistanceMeters is the real-world distance between the lines.
	DistanceMeters float64

	// MaxInvalidGap is how many consecutive invalid frames the detector
	// tolerates before its sign tracking is considered stale and reset.
	// Roughly half a second at 30 fps.
	MaxInvalidGap int

	// RequireStartBeforeFinish discards a finish-line crossing observed
	// before any start crossing. Guards against noise and false early
	// triggers; switchable because it is policy, not physics.
	RequireStartBeforeFinish bool
}

// DefaultConfig returns the standard session configuration for the 30 m
// course.
func DefaultConfig() Config {
	return Config{
		DistanceMeters:           CourseDistanceMeters,
		MaxInvalidGap:            15,
		RequireStartBeforeFinish: true,
	}
}
