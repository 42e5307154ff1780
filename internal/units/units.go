// Package units provides speed unit validation and conversion for API
// responses. Results are computed and stored in m/s.
package units

// Supported unit identifiers.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists every accepted unit value.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid reports whether unit is one of ValidUnits.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ValidUnitsString returns the accepted units for error messages.
func ValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// Convert converts a speed in m/s to the target unit. Unknown units pass
// the value through unchanged.
func Convert(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
