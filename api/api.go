package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/helm/alarm"
	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/mission"
	"github.com/a-bouts/helm/otto"
	"github.com/a-bouts/helm/state"
)

type server struct {
	store  state.Store
	m      *mission.Mission
	alarms *alarm.Raiser
}

// InitServer wires the operator surface: status reads and the mission
// transitions.
func InitServer(store state.Store, m *mission.Mission, alarms *alarm.Raiser) *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	s := server{store: store, m: m, alarms: alarms}

	api := router.PathPrefix("/").Subrouter()
	api.HandleFunc("/helm/-/healthz", s.healthz).Methods(http.MethodGet)

	apiV1 := router.PathPrefix("/helm/api/v1").Subrouter()
	apiV1.HandleFunc("/status", s.status).Methods(http.MethodGet)
	apiV1.HandleFunc("/mission", s.mission).Methods(http.MethodGet)
	apiV1.HandleFunc("/commence", s.commence).Methods(http.MethodPost)
	apiV1.HandleFunc("/abort", s.abort).Methods(http.MethodPost)

	return router
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status string `json:"status"`
	}

	json.NewEncoder(w).Encode(health{Status: "Ok"})
}

type statusResponse struct {
	State           string    `json:"state"`
	CurrentWaypoint int32     `json:"currentWaypoint"`
	StartTime       time.Time `json:"startTime,omitempty"`
	EndTime         time.Time `json:"endTime,omitempty"`
	Position        string    `json:"position,omitempty"`
	Sog             float64   `json:"sog"`
	CmgDegrees      float64   `json:"cmg"`
	FixValid        bool      `json:"fixValid"`
	Mode            uint8     `json:"mode"`
	CompassDegrees  float64   `json:"compass"`
	AwaDegrees      float64   `json:"awa"`
	RudderDegrees   float64   `json:"rudder"`
	SailPercent     float64   `json:"sail"`
	OttoAlarms      uint16    `json:"ottoAlarms"`
	Alarms          []string  `json:"alarms"`
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ms state.MissionStatus
	var fix state.GpsFix
	var ost state.OttoState
	var al state.Alarms
	for _, rec := range []state.Record{&ms, &fix, &ost, &al} {
		if err := s.store.Load(ctx, rec); err != nil {
			log.WithError(err).Error("Cannot load status")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}

	res := statusResponse{
		State:           ms.State.String(),
		CurrentWaypoint: ms.CurrentWaypoint,
		StartTime:       ms.StartTime,
		EndTime:         ms.EndTime,
		Sog:             fix.Sog,
		CmgDegrees:      latlon.ToDegrees(fix.Cmg),
		FixValid:        fix.Valid,
		Mode:            ost.Mode,
		CompassDegrees:  latlon.ToDegrees(otto.RegToCompass(ost.ActualCompass)),
		AwaDegrees:      latlon.ToDegrees(otto.RegToAwa(ost.ActualAwa)),
		RudderDegrees:   otto.RegToRudder(ost.ActualRudder),
		SailPercent:     otto.RegToSail(ost.ActualSail),
		OttoAlarms:      ost.AlarmStatus,
	}
	if fix.Location.Valid() {
		res.Position = fix.Location.FormatDM()
	}
	for bit := uint16(1); bit != 0; bit <<= 1 {
		if al.Raised&bit != 0 {
			res.Alarms = append(res.Alarms, alarm.Name(bit))
		}
	}

	json.NewEncoder(w).Encode(res)
}

type missionResponse struct {
	Title      string         `json:"title"`
	Url        string         `json:"url"`
	Launch     mission.Launch `json:"launch"`
	Attractors []waypoint     `json:"attractors"`
	Repellors  []waypoint     `json:"repellors"`
}

type waypoint struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Normal    float64 `json:"normal"`
	Range     float64 `json:"range"`
}

func (s *server) mission(w http.ResponseWriter, r *http.Request) {
	res := missionResponse{
		Title:  s.m.Title,
		Url:    s.m.Url,
		Launch: s.m.Launch,
	}
	for _, a := range s.m.Attractors {
		res.Attractors = append(res.Attractors, toWaypoint(a.Name, a.Location, a.Normal, a.Range))
	}
	for _, p := range s.m.Repellors {
		res.Repellors = append(res.Repellors, toWaypoint(p.Name, p.Location, p.Normal, p.Range))
	}

	json.NewEncoder(w).Encode(res)
}

func toWaypoint(name string, l latlon.Location, normal, rng float64) waypoint {
	return waypoint{
		Name:      name,
		Latitude:  l.LatDegrees(),
		Longitude: l.LonDegrees(),
		Normal:    latlon.ToDegrees(normal),
		Range:     rng,
	}
}

type commenceRequest struct {
	Mode string `json:"mode"`
}

// commence walks an awaiting mission through the start states into a
// follow mode.
func (s *server) commence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req commenceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	mode := state.CompassFollow
	switch req.Mode {
	case "", "compass":
	case "wind":
		mode = state.WindFollow
	case "radio":
		mode = state.RadioControl
	default:
		http.Error(w, "unknown mode "+req.Mode, http.StatusBadRequest)
		return
	}

	var ms state.MissionStatus
	if err := s.store.Load(ctx, &ms); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if ms.State == state.Awaiting {
		if err := mission.Start(&ms); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}
	if ms.State == state.ReadyToStart {
		if err := mission.Begin(&ms); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}
	if err := mission.Commence(&ms, mode); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.persist(ctx, ms); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	log.Infof("Mission commenced in %s", ms.State)
	s.alarms.Raise(ctx, alarm.MissionCommence)
	json.NewEncoder(w).Encode(ms.State.String())
}

func (s *server) abort(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ms state.MissionStatus
	if err := s.store.Load(ctx, &ms); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if err := mission.Terminate(&ms); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.persist(ctx, ms); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	log.Warn("Mission aborted by operator")
	s.alarms.Raise(ctx, alarm.MissionAbort)
	json.NewEncoder(w).Encode(ms.State.String())
}

func (s *server) persist(ctx context.Context, ms state.MissionStatus) error {
	if err := s.store.Save(ctx, ms); err != nil {
		log.WithError(err).Error("Cannot save mission status")
		return err
	}
	if err := s.store.Publish(ctx, ms.RecordName()); err != nil {
		log.WithError(err).Error("Cannot publish mission status")
	}
	return nil
}
