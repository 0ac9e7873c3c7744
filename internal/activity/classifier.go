package activity

// Zone classifies an observed rate relative to a historical baseline.
type Zone string

const (
	ZoneVeryLow Zone = "very_low"
	ZoneLow     Zone = "low"
	ZoneNormal  Zone = "normal"
	ZoneHigh    Zone = "high"
	ZoneExtreme Zone = "extreme"
)

// Classify maps a current count and a baseline into a discrete zone and
// the current/baseline ratio. A zero baseline yields (normal, 1.0) so
// the function is total over all non-negative inputs.
//
// Boundaries: [0, 0.25) very_low, [0.25, 0.75) low, [0.75, 1.25] normal,
// (1.25, 2.0] high, (2.0, inf) extreme.
func Classify(current, baseline float64) (Zone, float64) {
	if baseline == 0 {
		return ZoneNormal, 1.0
	}
	ratio := current / baseline

	switch {
	case ratio < 0.25:
		return ZoneVeryLow, ratio
	case ratio < 0.75:
		return ZoneLow, ratio
	case ratio <= 1.25:
		return ZoneNormal, ratio
	case ratio <= 2.0:
		return ZoneHigh, ratio
	default:
		return ZoneExtreme, ratio
	}
}
