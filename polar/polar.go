package polar

import "math"

// MinAngle is the close-hauled cutoff in radians. Below this apparent wind
// angle the hull makes no way.
const MinAngle = 0.75

// calibration scales the fitted reference polynomial down to the measured
// hull performance.
const calibration = 2.5

// reference holds the degree-6 polynomial fitted against the reference
// hull's speed table, ascending powers of |awa| in radians. The raw
// value is in knots before calibration.
var reference = [7]float64{
	-27.8970999363,
	80.7555456204,
	-85.6547925205,
	58.9414815895,
	-23.4798361168,
	4.7317667660,
	-0.3724763582,
}

// Curve maps an apparent wind angle to achievable boat speed.
type Curve struct {
	coef        [7]float64
	calibration float64
}

// ReferenceCurve returns the hull polar used by the guidance core.
func ReferenceCurve() Curve {
	return Curve{coef: reference, calibration: calibration}
}

// Speed evaluates the polar at an apparent wind angle in radians. The
// result is knots, zero inside the no-go zone and never negative.
func (c Curve) Speed(awa float64) float64 {
	a := math.Abs(awa)
	if a < MinAngle {
		return 0
	}

	s := 0.0
	for i := len(c.coef) - 1; i >= 0; i-- {
		s = s*a + c.coef[i]
	}
	s /= c.calibration

	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return s
}
