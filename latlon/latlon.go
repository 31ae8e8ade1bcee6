package latlon

import (
	"fmt"
	"math"
)

const π = math.Pi

// EarthRadius is the mean Earth radius in nautical miles.
const EarthRadius = 3440.069528437724

// Location is a point on the sphere, latitude and longitude in radians.
// Latitude is kept in [-π/2, π/2], longitude in (-π, π]. A component that
// was never set is NaN and the location is not Valid.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// None is the empty location.
var None = Location{Lat: math.NaN(), Lon: math.NaN()}

func ToRadians(a float64) float64 {
	return a * π / 180.0
}

func ToDegrees(a float64) float64 {
	return a * 180.0 / π
}

// Absolute wraps an angle into [0, 2π).
func Absolute(θ float64) float64 {
	a := math.Mod(θ, 2*π)
	if a < 0 {
		a += 2 * π
	}
	return a
}

// NormalizePi wraps an angle into (-π, π].
func NormalizePi(θ float64) float64 {
	a := Absolute(θ)
	if a > π {
		a -= 2 * π
	}
	return a
}

func clampLat(φ float64) float64 {
	if φ > π/2 {
		return π / 2
	}
	if φ < -π/2 {
		return -π / 2
	}
	return φ
}

// FromRadians builds a Location from radian coordinates.
func FromRadians(lat, lon float64) Location {
	return Location{Lat: clampLat(lat), Lon: NormalizePi(lon)}
}

// FromDegrees builds a Location from degree coordinates.
func FromDegrees(lat, lon float64) Location {
	return FromRadians(ToRadians(lat), ToRadians(lon))
}

// Valid reports whether both components are present.
func (l Location) Valid() bool {
	return !math.IsNaN(l.Lat) && !math.IsNaN(l.Lon)
}

func (l Location) LatDegrees() float64 {
	return ToDegrees(l.Lat)
}

func (l Location) LonDegrees() float64 {
	return ToDegrees(l.Lon)
}

// DistanceTo is the great-circle distance to another location, in nautical
// miles.
func (l Location) DistanceTo(to Location) float64 {
	return Compute(l, to).Distance
}

// BearingTo is the bearing and range to another location.
func (l Location) BearingTo(to Location) Bearing {
	return Compute(l, to)
}

// FormatDD renders the location as decimal degrees, "D.dddddd, D.dddddd".
func (l Location) FormatDD() string {
	return fmt.Sprintf("%.6f, %.6f", l.LatDegrees(), l.LonDegrees())
}

// FormatDM renders the location as degrees and decimal minutes with
// hemisphere suffixes, the way positions are read to an operator.
func (l Location) FormatDM() string {
	return formatDM(l.LatDegrees(), "N", "S") + ", " + formatDM(l.LonDegrees(), "E", "W")
}

func (l Location) String() string {
	return l.FormatDD()
}

func formatDM(deg float64, pos, neg string) string {
	h := pos
	if deg < 0 {
		h = neg
		deg = -deg
	}
	d := math.Floor(deg)
	m := (deg - d) * 60.0
	return fmt.Sprintf("%d %06.3f %s", int(d), m, h)
}
