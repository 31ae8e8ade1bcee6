package route

import (
	"math"

	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/polar"
)

// Tack names the side of the boat the wind comes over.
type Tack int

const (
	Port Tack = iota
	Starboard
)

func (t Tack) String() string {
	if t == Port {
		return "port"
	}
	return "starboard"
}

// Course couples heading, wind and apparent wind angle. Heading stays in
// [0, 2π), awa in (-π, π] with negative meaning port tack. SetHeading and
// SetWind keep awa = wind.Angle - heading; SetAWA sets awa alone and
// DeriveWind brings the wind back in line. Speed is re-derived from the
// polar whenever awa changes.
type Course struct {
	heading float64
	wind    latlon.Bearing
	awa     float64
	speed   float64
	curve   polar.Curve
}

// NewCourse returns a course at heading 0 with no wind.
func NewCourse(curve polar.Curve) *Course {
	return &Course{curve: curve}
}

func (c *Course) Heading() float64     { return c.heading }
func (c *Course) Wind() latlon.Bearing { return c.wind }
func (c *Course) AWA() float64         { return c.awa }
func (c *Course) Speed() float64       { return c.speed }

// SetHeading turns the boat, keeping the wind fixed.
func (c *Course) SetHeading(θ float64) {
	c.heading = latlon.Absolute(θ)
	c.awa = latlon.NormalizePi(c.wind.Angle - c.heading)
	c.computeSpeed()
}

// SetWind replaces the wind, keeping the heading fixed. The bearing's
// Distance field carries the wind speed in knots.
func (c *Course) SetWind(w latlon.Bearing) {
	c.wind = w
	c.wind.Angle = latlon.Absolute(w.Angle)
	c.awa = latlon.NormalizePi(c.wind.Angle - c.heading)
	c.computeSpeed()
}

// SetAWA replaces the apparent wind angle directly, as reported by the
// masthead sensor.
func (c *Course) SetAWA(a float64) {
	c.awa = latlon.NormalizePi(a)
	c.computeSpeed()
}

// DeriveWind recovers the wind direction from heading and awa. Used when
// heading and awa both come from instruments and the wind is the unknown.
func (c *Course) DeriveWind() {
	c.wind.Angle = latlon.Absolute(c.heading + c.awa)
}

// Tack is port when the apparent wind is on the port side.
func (c *Course) Tack() Tack {
	if c.awa < 0 {
		return Port
	}
	return Starboard
}

// RelativeVMG is the projection of boat velocity onto the bearing to the
// waypoint, normalized by the distance still to cover.
func (c *Course) RelativeVMG(w *Waypoint) float64 {
	return c.speed * math.Cos(w.Bearing().Angle-c.heading) / w.Distance()
}

// Clone copies the course so a candidate heading can be evaluated without
// touching the committed one.
func (c *Course) Clone() *Course {
	n := *c
	return &n
}

func (c *Course) computeSpeed() {
	c.speed = c.curve.Speed(c.awa)
}
