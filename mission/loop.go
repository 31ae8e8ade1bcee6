package mission

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/land"
	"github.com/a-bouts/helm/nav"
	"github.com/a-bouts/helm/state"
)

// PollInterval is how often an idle mission re-reads its status.
const PollInterval = time.Minute

// Planner runs one navigation step.
type Planner interface {
	Cycle(ctx context.Context, ms *state.MissionStatus) (bool, error)
}

// Loop drives the mission state machine. While the mission is active every
// GPS publish triggers a planner cycle; otherwise the status is polled
// once a minute for an operator transition.
type Loop struct {
	store   state.Store
	planner Planner
	alarms  *alarm.Raiser
	fence   *land.Land
	poll    time.Duration
	log     *log.Entry
}

func NewLoop(store state.Store, planner Planner, alarms *alarm.Raiser, fence *land.Land) *Loop {
	return &Loop{
		store:   store,
		planner: planner,
		alarms:  alarms,
		fence:   fence,
		poll:    PollInterval,
		log:     log.WithField("task", "mission"),
	}
}

// Run loops until the context ends or the store becomes unreachable.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var ms state.MissionStatus
		if err := l.store.Load(ctx, &ms); err != nil {
			return err
		}

		if ms.State.Active() {
			if err := l.runActive(ctx); err != nil {
				return err
			}
			continue
		}

		if !sleep(ctx, l.poll) {
			return ctx.Err()
		}
	}
}

// runActive navigates on every GPS counter until the mission leaves the
// active states.
func (l *Loop) runActive(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := l.store.Subscribe(subCtx, state.GpsFix{}.RecordName())
	if err != nil {
		return err
	}
	l.log.Info("Mission active, navigating on GPS updates")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub:
			if !ok {
				return nil
			}
		}

		var ms state.MissionStatus
		if err := l.store.Load(ctx, &ms); err != nil {
			return err
		}
		if !ms.State.Active() {
			l.log.Infof("Mission no longer active (%s)", ms.State)
			return nil
		}

		l.checkFence(ctx)

		done, err := l.planner.Cycle(ctx, &ms)
		switch {
		case err == nil:
		case errors.Is(err, nav.ErrNoFix):
			l.log.Debug("No valid fix, waiting")
		case errors.Is(err, nav.ErrNoCourse):
			// hold the current heading and let the operator know
			l.log.Warn("No sailable candidate, holding heading")
			l.alarms.Raise(ctx, alarm.CrossTrackError)
		default:
			Fail(&ms)
			l.persist(ctx, ms)
			return err
		}

		if done {
			if err := CompleteMission(&ms); err == nil {
				l.log.Info("Mission complete")
				l.alarms.Raise(ctx, alarm.MissionComplete)
			}
		}

		l.persist(ctx, ms)
	}
}

func (l *Loop) checkFence(ctx context.Context) {
	if l.fence == nil {
		return
	}
	var fix state.GpsFix
	if err := l.store.Load(ctx, &fix); err != nil || !fix.Valid {
		return
	}
	if l.fence.Inside(fix.Location) {
		l.alarms.Raise(ctx, alarm.InsideFence)
	}
}

func (l *Loop) persist(ctx context.Context, ms state.MissionStatus) {
	if err := l.store.Save(ctx, ms); err != nil {
		l.log.WithError(err).Error("Cannot save mission status")
		return
	}
	if err := l.store.Publish(ctx, ms.RecordName()); err != nil {
		l.log.WithError(err).Error("Cannot publish mission status")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
