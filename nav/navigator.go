package nav

import (
	"context"
	"errors"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/otto"
	"github.com/a-bouts/helm/polar"
	"github.com/a-bouts/helm/route"
	"github.com/a-bouts/helm/state"
)

// Swing is the half-width of the heading search window, in degrees around
// the bearing to the current attractor.
const Swing = 45

// lookAhead is how many attractors past the current one pull on a
// candidate heading.
const lookAhead = 3

// ErrNoFix is returned when the latest GPS fix is not valid. The caller
// retries after a bounded delay.
var ErrNoFix = errors.New("nav: no valid fix")

// ErrNoCourse is returned when no candidate heading has usable utility.
// The boat holds its heading.
var ErrNoCourse = errors.New("nav: no sailable candidate")

// Helm is where the chosen heading goes.
type Helm interface {
	TrackCompass(rad float64)
	TrackAwa(rad float64)
}

// WindSource supplies a forecast wind prior when the masthead sensor has
// not reported yet. The bearing's Distance field carries knots.
type WindSource interface {
	WindAt(l latlon.Location, t time.Time) (latlon.Bearing, error)
}

// Navigator picks a heading each GPS cycle by searching a swing window
// around the bearing to the current attractor and scoring candidates by
// relative VMG against attractors and repellors.
type Navigator struct {
	store      state.Store
	helm       Helm
	alarms     *alarm.Raiser
	attractors []*route.Waypoint
	repellors  []*route.Waypoint
	forecast   WindSource
	course     *route.Course
	seenOtto   bool
	log        *log.Entry
}

func New(store state.Store, helm Helm, alarms *alarm.Raiser, attractors, repellors []*route.Waypoint, curve polar.Curve, forecast WindSource) *Navigator {
	return &Navigator{
		store:      store,
		helm:       helm,
		alarms:     alarms,
		attractors: attractors,
		repellors:  repellors,
		forecast:   forecast,
		course:     route.NewCourse(curve),
		log:        log.WithField("task", "navigator"),
	}
}

// Course exposes the committed course, for the status API.
func (n *Navigator) Course() *route.Course {
	return n.course
}

// Cycle runs one planning step. It mutates the mission status in place
// (waypoint advancement, begun missions) and reports true when the last
// attractor has been reached.
func (n *Navigator) Cycle(ctx context.Context, ms *state.MissionStatus) (bool, error) {
	var fix state.GpsFix
	if err := n.store.Load(ctx, &fix); err != nil {
		return false, err
	}
	if !fix.Valid || !fix.Location.Valid() {
		return false, ErrNoFix
	}

	var ost state.OttoState
	if err := n.store.Load(ctx, &ost); err != nil {
		return false, err
	}

	if ms.CurrentWaypoint < 0 {
		ms.CurrentWaypoint = 0
	}
	if int(ms.CurrentWaypoint) >= len(n.attractors) {
		return true, nil
	}

	n.updateCourse(fix, ost)

	for _, w := range n.attractors[ms.CurrentWaypoint:] {
		w.ComputeBearing(fix.Location)
	}
	for _, r := range n.repellors {
		r.ComputeBearing(fix.Location)
	}

	for ms.State.Active() && n.attractors[ms.CurrentWaypoint].Reached() {
		n.log.Infof("Waypoint '%s' reached at %s", n.attractors[ms.CurrentWaypoint].Name, fix.Location.FormatDM())
		n.alarms.Raise(ctx, alarm.WaypointReached)
		ms.CurrentWaypoint++
		if int(ms.CurrentWaypoint) >= len(n.attractors) {
			return true, nil
		}
	}

	best, err := n.search(ms)
	if err != nil {
		return false, err
	}

	if best.Tack() != n.course.Tack() {
		n.log.Infof("Tacking from %s to %s", n.course.Tack(), best.Tack())
	}
	n.course = best

	switch ms.State {
	case state.RadioControl:
		// the operator has the helm, keep planning but do not steer
	case state.WindFollow:
		n.helm.TrackAwa(best.AWA())
	default:
		n.helm.TrackCompass(best.Heading())
	}
	return false, nil
}

// updateCourse refreshes the committed course from the instruments: the
// compass gives heading, the masthead gives awa and the wind direction
// falls out of the two. Before the first controller status the forecast
// stands in for the sensors.
func (n *Navigator) updateCourse(fix state.GpsFix, ost state.OttoState) {
	if ost.Timestamp == 0 && !n.seenOtto {
		if n.forecast != nil {
			w, err := n.forecast.WindAt(fix.Location, fix.Time)
			if err != nil {
				n.log.WithError(err).Debug("No forecast wind")
				return
			}
			n.course.SetHeading(fix.Cmg)
			n.course.SetWind(w)
		}
		return
	}
	n.seenOtto = true

	n.course.SetHeading(otto.RegToCompass(ost.ActualCompass))
	n.course.SetAWA(otto.RegToAwa(ost.ActualAwa))
	n.course.DeriveWind()
}

// search scans the swing window and keeps the candidate with the best
// utility. Ties go to the candidate closest to the window center, which
// keeps the planner deterministic and the rudder quiet.
func (n *Navigator) search(ms *state.MissionStatus) (*route.Course, error) {
	current := int(ms.CurrentWaypoint)
	target := n.attractors[current]

	last := current + lookAhead
	if last >= len(n.attractors) {
		last = len(n.attractors) - 1
	}

	var best *route.Course
	bestU := math.Inf(-1)
	bestSwing := 0

	for α := -Swing; α <= Swing; α++ {
		candidate := n.course.Clone()
		candidate.SetHeading(target.Bearing().Angle + latlon.ToRadians(float64(α)))

		if candidate.Speed() < 0.001 {
			continue
		}

		u := candidate.RelativeVMG(target)
		for _, a := range n.attractors[current : last+1] {
			u += candidate.RelativeVMG(a)
		}
		for _, r := range n.repellors {
			u -= candidate.RelativeVMG(r)
		}

		if candidate.Tack() != n.course.Tack() {
			u *= 0.1
		}

		if math.IsNaN(u) || math.IsInf(u, 0) {
			continue
		}
		if u > bestU || (u == bestU && abs(α) < abs(bestSwing)) {
			best = candidate
			bestU = u
			bestSwing = α
		}
	}

	if best == nil {
		return nil, ErrNoCourse
	}
	return best, nil
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
