package mission

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/state"
)

const missionJSON = `{
  "title": "Galway Bay crossing",
  "url": "https://example.org/missions/galway",
  "description": "Out to the mouth of the bay and back",
  "launch": {"site": "Galway docks", "latitude": 53.2687, "longitude": -9.0536},
  "attractors": [
    {"latitude": 53.2300, "longitude": -9.1500, "name": "mouth", "normal": 270.0, "range": 0.1},
    {"latitude": 53.2687, "longitude": -9.0536, "name": "home", "normal": 90.0, "range": 0.05}
  ],
  "repellors": [
    {"latitude": 53.2475, "longitude": -9.1100, "name": "rocks", "normal": 0.0, "range": 0.2}
  ],
  "unknown_field": 42
}`

func TestLoadMission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.json")
	if err := os.WriteFile(path, []byte(missionJSON), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if m.Title != "Galway Bay crossing" {
		t.Errorf("title = %q", m.Title)
	}
	if m.Launch.Site != "Galway docks" {
		t.Errorf("launch site = %q", m.Launch.Site)
	}
	if len(m.Attractors) != 2 || len(m.Repellors) != 1 {
		t.Fatalf("%d attractors, %d repellors; want 2, 1", len(m.Attractors), len(m.Repellors))
	}

	mouth := m.Attractors[0]
	if mouth.Name != "mouth" {
		t.Errorf("name = %q", mouth.Name)
	}
	if math.Abs(mouth.Location.LatDegrees()-53.23) > 1e-9 {
		t.Errorf("lat = %f; want 53.23", mouth.Location.LatDegrees())
	}
	if math.Abs(mouth.Normal-latlon.ToRadians(270)) > 1e-12 {
		t.Errorf("normal = %f; want 270° in radians", mouth.Normal)
	}
	if !mouth.Attractor || m.Repellors[0].Attractor {
		t.Error("attractor flags wrong")
	}
}

func TestLoadMissionErrors(t *testing.T) {
	if _, err := Load("/nonexistent/mission.json"); err == nil {
		t.Error("expected error on missing file")
	}

	path := filepath.Join(t.TempDir(), "empty.json")
	os.WriteFile(path, []byte(`{"title": "nothing"}`), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error on mission without attractors")
	}
}

func TestTransitions(t *testing.T) {
	ms := state.DefaultMissionStatus()

	if err := Begin(&ms); err == nil {
		t.Error("Begin before Start should fail")
	}
	if err := Start(&ms); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := Start(&ms); err == nil {
		t.Error("double Start should fail")
	}
	if err := Begin(&ms); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := Commence(&ms, state.Complete); err == nil {
		t.Error("Commence into COMPLETE should fail")
	}
	if err := Commence(&ms, state.CompassFollow); err != nil {
		t.Fatalf("Commence: %v", err)
	}
	if ms.StartTime.IsZero() {
		t.Error("start time not stamped")
	}
	if !ms.State.Active() {
		t.Errorf("state %s not active", ms.State)
	}

	if err := Terminate(&ms); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if ms.EndTime.IsZero() {
		t.Error("end time not stamped")
	}
	if err := Terminate(&ms); err == nil {
		t.Error("double Terminate should fail")
	}
}

func TestFailFromAnywhere(t *testing.T) {
	ms := state.DefaultMissionStatus()
	Fail(&ms)
	if ms.State != state.Failure {
		t.Errorf("state = %v; want FAILURE", ms.State)
	}

	done := state.MissionStatus{State: state.Complete}
	Fail(&done)
	if done.State != state.Complete {
		t.Error("Fail overwrote a terminal state")
	}
}

type fakePlanner struct {
	cycles  int
	doneAt  int
	lastErr error
}

func (p *fakePlanner) Cycle(ctx context.Context, ms *state.MissionStatus) (bool, error) {
	p.cycles++
	if p.lastErr != nil {
		return false, p.lastErr
	}
	return p.doneAt > 0 && p.cycles >= p.doneAt, nil
}

func TestLoopNavigatesToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := state.NewMemory()
	planner := &fakePlanner{doneAt: 3}
	loop := NewLoop(st, planner, alarm.NewRaiser(st, nil), nil)
	loop.poll = 10 * time.Millisecond

	if err := st.Save(ctx, state.MissionStatus{State: state.CompassFollow, CurrentWaypoint: 0}); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	fix := state.GpsFix{Location: latlon.FromDegrees(53, -9), Valid: true}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st.Save(ctx, fix)
		st.Publish(ctx, "gps")

		var ms state.MissionStatus
		st.Load(ctx, &ms)
		if ms.State == state.Complete {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	var ms state.MissionStatus
	st.Load(ctx, &ms)
	if ms.State != state.Complete {
		t.Fatalf("state = %v after %d cycles; want COMPLETE", ms.State, planner.cycles)
	}
	if planner.cycles < 3 {
		t.Errorf("planner ran %d cycles; want >= 3", planner.cycles)
	}

	var a state.Alarms
	st.Load(ctx, &a)
	if a.Raised&alarm.MissionComplete == 0 {
		t.Error("MISSION_COMPLETE not raised")
	}

	cancel()
	select {
	case <-errc:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancellation")
	}
}

func TestLoopIdleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	st := state.NewMemory()
	loop := NewLoop(st, &fakePlanner{}, alarm.NewRaiser(st, nil), nil)
	loop.poll = 10 * time.Millisecond

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run = %v; want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("idle loop did not stop on cancellation")
	}
}
