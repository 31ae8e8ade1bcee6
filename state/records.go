package state

import (
	"math"
	"strconv"
	"time"

	"github.com/a-bouts/helm/latlon"
)

// Fields is a flattened record: scalar values keyed by field name, arrays
// as field1, field2, ... and composites as field.sub.
type Fields map[string]string

// Marshaler is the write side of a typed record persisted in the shared
// store under a flat keyspace prefixed with its name. MarshalFields of the
// zero value doubles as the schema: it enumerates every key with its
// default.
type Marshaler interface {
	RecordName() string
	MarshalFields() Fields
}

// Record can also be loaded back.
type Record interface {
	Marshaler
	UnmarshalFields(Fields) error
}

func encodeFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func encodeBool(v bool) string {
	return strconv.FormatBool(v)
}

// Timestamps are stored as fractional seconds since the epoch.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func decodeFloat(f Fields, key string, into *float64) {
	if s, ok := f[key]; ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*into = v
		}
	}
}

func decodeInt(f Fields, key string, into *int64) {
	if s, ok := f[key]; ok {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			*into = v
		}
	}
}

func decodeBool(f Fields, key string, into *bool) {
	if s, ok := f[key]; ok {
		if v, err := strconv.ParseBool(s); err == nil {
			*into = v
		}
	}
}

func decodeTime(f Fields, key string, into *time.Time) {
	if s, ok := f[key]; ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			if v == 0 {
				*into = time.Time{}
			} else {
				sec, frac := math.Modf(v)
				*into = time.Unix(int64(sec), int64(frac*1e9)).UTC()
			}
		}
	}
}

func encodeLocation(f Fields, key string, l latlon.Location) {
	f[key+".latitude"] = encodeFloat(l.Lat)
	f[key+".longitude"] = encodeFloat(l.Lon)
}

func decodeLocation(f Fields, key string, into *latlon.Location) {
	decodeFloat(f, key+".latitude", &into.Lat)
	decodeFloat(f, key+".longitude", &into.Lon)
}

// GpsFix is the latest position report. Valid implies the location is valid
// and Time is current wall clock.
type GpsFix struct {
	Time     time.Time
	Location latlon.Location
	Sog      float64 // knots
	Cmg      float64 // radians
	Magvar   float64 // radians, east positive
	Valid    bool
}

func (GpsFix) RecordName() string { return "gps" }

func (g GpsFix) MarshalFields() Fields {
	f := Fields{
		"time":   encodeTime(g.Time),
		"sog":    encodeFloat(g.Sog),
		"cmg":    encodeFloat(g.Cmg),
		"magvar": encodeFloat(g.Magvar),
		"valid":  encodeBool(g.Valid),
	}
	encodeLocation(f, "location", g.Location)
	return f
}

func (g *GpsFix) UnmarshalFields(f Fields) error {
	*g = GpsFix{Location: latlon.None}
	decodeTime(f, "time", &g.Time)
	decodeLocation(f, "location", &g.Location)
	decodeFloat(f, "sog", &g.Sog)
	decodeFloat(f, "cmg", &g.Cmg)
	decodeFloat(f, "magvar", &g.Magvar)
	decodeBool(f, "valid", &g.Valid)
	return nil
}

// TelemetryChannels is the number of 12-bit telemetry slots the controller
// reports.
const TelemetryChannels = 16

// OttoState mirrors the last known state of the low-level controller.
// Rudder, sail, compass and awa are raw register units; the otto package
// owns the unit conversions.
type OttoState struct {
	Mode          uint8
	AlarmStatus   uint16
	ActualRudder  uint8
	ActualSail    uint8
	ActualCompass uint8
	ActualAwa     uint8
	Timestamp     uint32 // seconds since controller boot, 24 bits
	Telemetry     [TelemetryChannels]uint16
}

func (OttoState) RecordName() string { return "otto" }

func (o OttoState) MarshalFields() Fields {
	f := Fields{
		"mode":           encodeInt(int64(o.Mode)),
		"alarm_status":   encodeInt(int64(o.AlarmStatus)),
		"actual_rudder":  encodeInt(int64(o.ActualRudder)),
		"actual_sail":    encodeInt(int64(o.ActualSail)),
		"actual_compass": encodeInt(int64(o.ActualCompass)),
		"actual_awa":     encodeInt(int64(o.ActualAwa)),
		"otto_timestamp": encodeInt(int64(o.Timestamp)),
	}
	for i, v := range o.Telemetry {
		f["telemetry"+strconv.Itoa(i+1)] = encodeInt(int64(v))
	}
	return f
}

func (o *OttoState) UnmarshalFields(f Fields) error {
	*o = OttoState{}
	var v int64
	decodeInt(f, "mode", &v)
	o.Mode = uint8(v)
	v = 0
	decodeInt(f, "alarm_status", &v)
	o.AlarmStatus = uint16(v)
	v = 0
	decodeInt(f, "actual_rudder", &v)
	o.ActualRudder = uint8(v)
	v = 0
	decodeInt(f, "actual_sail", &v)
	o.ActualSail = uint8(v)
	v = 0
	decodeInt(f, "actual_compass", &v)
	o.ActualCompass = uint8(v)
	v = 0
	decodeInt(f, "actual_awa", &v)
	o.ActualAwa = uint8(v)
	v = 0
	decodeInt(f, "otto_timestamp", &v)
	o.Timestamp = uint32(v)
	for i := range o.Telemetry {
		v = 0
		decodeInt(f, "telemetry"+strconv.Itoa(i+1), &v)
		o.Telemetry[i] = uint16(v)
	}
	return nil
}

// State is the mission lifecycle state. It only moves forward.
type State int

const (
	Awaiting State = iota
	ReadyToStart
	StartTest
	RadioControl
	CompassFollow
	WindFollow
	Complete
	Terminated
	Failure
)

var stateNames = map[State]string{
	Awaiting:      "AWAITING",
	ReadyToStart:  "READY_TO_START",
	StartTest:     "START_TEST",
	RadioControl:  "RADIO_CONTROL",
	CompassFollow: "COMPASS_FOLLOW",
	WindFollow:    "WIND_FOLLOW",
	Complete:      "COMPLETE",
	Terminated:    "TERMINATED",
	Failure:       "FAILURE",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Active is true from the start test until a terminal state.
func (s State) Active() bool {
	return s >= StartTest && s < Complete
}

// MissionStatus tracks mission progress. CurrentWaypoint is -1 until the
// navigator takes the first attractor.
type MissionStatus struct {
	State           State
	CurrentWaypoint int32
	StartTime       time.Time
	EndTime         time.Time
}

func (MissionStatus) RecordName() string { return "mission" }

// DefaultMissionStatus is the pre-start status.
func DefaultMissionStatus() MissionStatus {
	return MissionStatus{State: Awaiting, CurrentWaypoint: -1}
}

func (m MissionStatus) MarshalFields() Fields {
	return Fields{
		"state":            encodeInt(int64(m.State)),
		"current_waypoint": encodeInt(int64(m.CurrentWaypoint)),
		"start_time":       encodeTime(m.StartTime),
		"end_time":         encodeTime(m.EndTime),
	}
}

func (m *MissionStatus) UnmarshalFields(f Fields) error {
	*m = DefaultMissionStatus()
	var v int64
	decodeInt(f, "state", &v)
	m.State = State(v)
	v = int64(m.CurrentWaypoint)
	decodeInt(f, "current_waypoint", &v)
	m.CurrentWaypoint = int32(v)
	decodeTime(f, "start_time", &m.StartTime)
	decodeTime(f, "end_time", &m.EndTime)
	return nil
}

// Alarms is the application alarm bitmap. Bit names live in the alarm
// package.
type Alarms struct {
	Raised uint16
}

func (Alarms) RecordName() string { return "alarm" }

func (a Alarms) MarshalFields() Fields {
	return Fields{"raised": encodeInt(int64(a.Raised))}
}

func (a *Alarms) UnmarshalFields(f Fields) error {
	*a = Alarms{}
	var v int64
	decodeInt(f, "raised", &v)
	a.Raised = uint16(v)
	return nil
}
