package state

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/a-bouts/helm/latlon"
)

func TestGpsFixRoundTrip(t *testing.T) {
	fix := GpsFix{
		Time:     time.Date(2021, 6, 12, 14, 30, 15, 500000000, time.UTC),
		Location: latlon.FromDegrees(53.156583, -9.035317),
		Sog:      4.2,
		Cmg:      1.75,
		Magvar:   -0.06,
		Valid:    true,
	}

	var got GpsFix
	if err := got.UnmarshalFields(fix.MarshalFields()); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !got.Time.Equal(fix.Time) {
		t.Errorf("time = %v; want %v", got.Time, fix.Time)
	}
	if math.Abs(got.Location.Lat-fix.Location.Lat) > 1e-12 {
		t.Errorf("lat = %v; want %v", got.Location.Lat, fix.Location.Lat)
	}
	if got.Sog != fix.Sog || got.Cmg != fix.Cmg || got.Magvar != fix.Magvar || !got.Valid {
		t.Errorf("got %+v; want %+v", got, fix)
	}
}

func TestGpsFixDefaults(t *testing.T) {
	var fix GpsFix
	if err := fix.UnmarshalFields(Fields{}); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fix.Location.Valid() {
		t.Error("default location is valid; want invalid")
	}
	if fix.Valid {
		t.Error("default fix is valid; want invalid")
	}
}

func TestGpsFixKeyspace(t *testing.T) {
	f := GpsFix{}.MarshalFields()
	for _, key := range []string{"time", "location.latitude", "location.longitude", "sog", "cmg", "magvar", "valid"} {
		if _, ok := f[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
}

func TestOttoStateRoundTrip(t *testing.T) {
	o := OttoState{
		Mode:          2,
		AlarmStatus:   0xA05F,
		ActualRudder:  200,
		ActualSail:    128,
		ActualCompass: 64,
		ActualAwa:     212,
		Timestamp:     0x00FFFFFE,
	}
	for i := range o.Telemetry {
		o.Telemetry[i] = uint16(i * 100)
	}

	var got OttoState
	if err := got.UnmarshalFields(o.MarshalFields()); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != o {
		t.Errorf("got %+v; want %+v", got, o)
	}

	if _, ok := o.MarshalFields()["telemetry16"]; !ok {
		t.Error("missing field telemetry16")
	}
}

func TestMissionStatusDefaults(t *testing.T) {
	var m MissionStatus
	if err := m.UnmarshalFields(Fields{}); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.State != Awaiting {
		t.Errorf("state = %v; want AWAITING", m.State)
	}
	if m.CurrentWaypoint != -1 {
		t.Errorf("current waypoint = %d; want -1", m.CurrentWaypoint)
	}
}

func TestStateActive(t *testing.T) {
	for s, want := range map[State]bool{
		Awaiting:      false,
		ReadyToStart:  false,
		StartTest:     true,
		RadioControl:  true,
		CompassFollow: true,
		WindFollow:    true,
		Complete:      false,
		Terminated:    false,
		Failure:       false,
	} {
		if s.Active() != want {
			t.Errorf("%v.Active() = %t; want %t", s, s.Active(), want)
		}
	}
}

func TestMemorySaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	fix := GpsFix{Time: time.Now().UTC(), Location: latlon.FromDegrees(53, -9), Sog: 3.3, Valid: true}
	if err := s.Save(ctx, fix); err != nil {
		t.Fatalf("save: %v", err)
	}

	var got GpsFix
	if err := s.Load(ctx, &got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Sog != 3.3 || !got.Valid {
		t.Errorf("got %+v", got)
	}
	if s.Counter("gps") != 1 {
		t.Errorf("counter = %d; want 1", s.Counter("gps"))
	}
}

func TestMemorySetupIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Setup(ctx, DefaultMissionStatus()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	ms := MissionStatus{State: CompassFollow, CurrentWaypoint: 2}
	if err := s.Save(ctx, ms); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Setup(ctx, DefaultMissionStatus()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	var got MissionStatus
	if err := s.Load(ctx, &got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != CompassFollow || got.CurrentWaypoint != 2 {
		t.Errorf("setup overwrote saved record: %+v", got)
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemory()

	ch, err := s.Subscribe(ctx, "gps")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	fix := GpsFix{Valid: true}
	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, fix); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := s.Publish(ctx, "gps"); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	var last int64
	for i := 0; i < 3; i++ {
		select {
		case count := <-ch:
			if count <= last && i > 0 {
				t.Errorf("counter not monotonic: %d after %d", count, last)
			}
			last = count
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for publish")
		}
	}
	if last != 3 {
		t.Errorf("last counter = %d; want 3", last)
	}
}
