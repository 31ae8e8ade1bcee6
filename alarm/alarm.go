package alarm

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/helm/state"
)

// Application alarm bits, persisted in the shared alarm bitmap.
const (
	MotherUnresp uint16 = 1 << iota
	OttoRestart
	GpsInvalid
	WaypointReached
	MissionCommence
	MissionComplete
	MissionAbort
	CrossTrackError
	InsideFence
)

var names = map[uint16]string{
	MotherUnresp:    "MOTHER_UNRESP",
	OttoRestart:     "OTTO_RESTART",
	GpsInvalid:      "GPS_INVALID",
	WaypointReached: "WAYPOINT_REACHED",
	MissionCommence: "MISSION_COMMENCE",
	MissionComplete: "MISSION_COMPLETE",
	MissionAbort:    "MISSION_ABORT",
	CrossTrackError: "CROSS_TRACK_ERROR",
	InsideFence:     "INSIDE_FENCE",
}

// Name returns the wire name of an alarm bit.
func Name(bit uint16) string {
	if n, ok := names[bit]; ok {
		return n
	}
	return "UNKNOWN"
}

// Notifier forwards an alarm to an operator channel.
type Notifier interface {
	Send(message string) error
}

// Raiser persists alarm bits into the shared bitmap, publishes every raise
// and forwards it to the notifier.
type Raiser struct {
	store  state.Store
	notify Notifier
}

func NewRaiser(store state.Store, notify Notifier) *Raiser {
	return &Raiser{store: store, notify: notify}
}

// Raise sets the bit, saves and publishes the bitmap. Raising an already
// set bit still publishes and notifies.
func (r *Raiser) Raise(ctx context.Context, bit uint16) {
	r.set(ctx, bit, true)
}

// Clear drops the bit from the bitmap.
func (r *Raiser) Clear(ctx context.Context, bit uint16) {
	r.set(ctx, bit, false)
}

func (r *Raiser) set(ctx context.Context, bit uint16, raise bool) {
	var a state.Alarms
	if err := r.store.Load(ctx, &a); err != nil {
		log.WithError(err).Errorf("Cannot load alarms for %s", Name(bit))
		return
	}
	if raise {
		a.Raised |= bit
	} else {
		a.Raised &^= bit
	}
	if err := r.store.Save(ctx, a); err != nil {
		log.WithError(err).Errorf("Cannot save alarms for %s", Name(bit))
		return
	}
	if err := r.store.Publish(ctx, a.RecordName()); err != nil {
		log.WithError(err).Errorf("Cannot publish alarms for %s", Name(bit))
	}

	if !raise {
		return
	}
	log.Warnf("Alarm %s", Name(bit))
	if r.notify != nil {
		if err := r.notify.Send("alarm " + Name(bit)); err != nil {
			log.WithError(err).Debugf("Cannot notify alarm %s", Name(bit))
		}
	}
}
