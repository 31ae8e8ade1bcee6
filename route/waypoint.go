package route

import (
	"math"

	"github.com/a-bouts/helm/latlon"
)

// ReachedDistance is the GPS error floor in nautical miles (about 10 m).
// Within this band a waypoint always counts as reached.
const ReachedDistance = 0.0054

// Waypoint is an attractor or repellor. The reached coverage is a half-disk
// of radius Range around Location, clipped by the half-plane perpendicular
// to Normal: the boat only gets credit for the radius when it arrives from
// the chord side.
type Waypoint struct {
	Name      string          `json:"name"`
	Location  latlon.Location `json:"location"`
	Normal    float64         `json:"normal"`
	Range     float64         `json:"range"`
	Attractor bool            `json:"attractor"`

	bearing  latlon.Bearing
	distance float64
}

// ComputeBearing refreshes the stored bearing and chord-adjusted distance
// from the given position.
func (w *Waypoint) ComputeBearing(from latlon.Location) latlon.Bearing {
	b := latlon.Compute(from, w.Location)

	d := b.Distance
	α := latlon.Absolute(b.BackAngle() - w.Normal)
	if α < math.Pi {
		d = math.Max(0, d-w.Range)
	}

	w.bearing = b
	w.distance = d
	return b
}

// Bearing is the last computed bearing from the boat to the waypoint.
func (w *Waypoint) Bearing() latlon.Bearing {
	return w.bearing
}

// Distance is the last computed chord-adjusted distance in nautical miles.
func (w *Waypoint) Distance() float64 {
	return w.distance
}

// Reached reports whether the last computed distance is inside the GPS
// error floor.
func (w *Waypoint) Reached() bool {
	return w.distance <= ReachedDistance
}
