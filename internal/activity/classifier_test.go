package activity

import "testing"

func TestClassifyZeroBaseline(t *testing.T) {
	for _, current := range []float64{0, 1, 42, 1e9} {
		zone, ratio := Classify(current, 0)
		if zone != ZoneNormal || ratio != 1.0 {
			t.Fatalf("Classify(%v, 0) = (%v, %v), want (normal, 1.0)", current, zone, ratio)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		current  float64
		baseline float64
		zone     Zone
		ratio    float64
	}{
		{0, 100, ZoneVeryLow, 0},
		{24, 100, ZoneVeryLow, 0.24},
		{25, 100, ZoneLow, 0.25},
		{74, 100, ZoneLow, 0.74},
		{75, 100, ZoneNormal, 0.75},
		{100, 100, ZoneNormal, 1.0},
		{125, 100, ZoneNormal, 1.25},
		{126, 100, ZoneHigh, 1.26},
		{200, 100, ZoneHigh, 2.0},
		{201, 100, ZoneExtreme, 2.01},
	}
	for _, c := range cases {
		zone, ratio := Classify(c.current, c.baseline)
		if zone != c.zone || ratio != c.ratio {
			t.Fatalf("Classify(%v, %v) = (%v, %v), want (%v, %v)",
				c.current, c.baseline, zone, ratio, c.zone, c.ratio)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	z1, r1 := Classify(37, 50)
	z2, r2 := Classify(37, 50)
	if z1 != z2 || r1 != r2 {
		t.Fatalf("Classify not deterministic: (%v,%v) vs (%v,%v)", z1, r1, z2, r2)
	}
}
