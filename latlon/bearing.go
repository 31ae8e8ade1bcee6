package latlon

import "math"

// Bearing is a great-circle direction and range. Angle is radians in
// [0, 2π), Distance is nautical miles and never negative.
type Bearing struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
}

// Compute returns the initial great-circle bearing and the haversine
// distance from one location to another.
func Compute(from, to Location) Bearing {
	φ1 := from.Lat
	φ2 := to.Lat
	Δλ := to.Lon - from.Lon

	c := math.Sin(φ1)*math.Sin(φ2) + math.Cos(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	d := math.Acos(c) * EarthRadius

	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	θ := math.Atan2(y, x)

	return Bearing{Angle: Absolute(θ), Distance: d}
}

// BackAngle is the reciprocal of the bearing angle.
func (b Bearing) BackAngle() float64 {
	return Absolute(b.Angle + π)
}

// Destination projects a location along the great circle described by the
// bearing.
func Destination(from Location, b Bearing) Location {
	δ := b.Distance / EarthRadius
	θ := b.Angle
	φ1 := from.Lat
	λ1 := from.Lon

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))

	return FromRadians(φ2, λ2)
}

// Destination is Location + Bearing.
func (l Location) Destination(b Bearing) Location {
	return Destination(l, b)
}
