package mission

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/a-bouts/helm/latlon"
	"github.com/a-bouts/helm/route"
)

// Launch is where the boat goes in the water.
type Launch struct {
	Site      string  `json:"site"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// fileWaypoint is a waypoint as it appears in the mission file, angles in
// degrees. Unknown fields are ignored.
type fileWaypoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Normal    float64 `json:"normal"`
	Range     float64 `json:"range"`
}

type missionFile struct {
	Title       string         `json:"title"`
	Url         string         `json:"url"`
	Description string         `json:"description"`
	Launch      Launch         `json:"launch"`
	Attractors  []fileWaypoint `json:"attractors"`
	Repellors   []fileWaypoint `json:"repellors"`
}

// Mission is the voyage plan: an ordered list of attractors to visit and
// the repellors to stay away from. Immutable once loaded.
type Mission struct {
	Title       string
	Url         string
	Description string
	Launch      Launch
	Attractors  []*route.Waypoint
	Repellors   []*route.Waypoint
}

// Load reads a mission file, converting file degrees to radians.
func Load(path string) (*Mission, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mission: read %s: %w", path, err)
	}

	var f missionFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("mission: parse %s: %w", path, err)
	}
	if len(f.Attractors) == 0 {
		return nil, fmt.Errorf("mission: %s has no attractors", path)
	}

	m := &Mission{
		Title:       f.Title,
		Url:         f.Url,
		Description: f.Description,
		Launch:      f.Launch,
	}
	for _, w := range f.Attractors {
		m.Attractors = append(m.Attractors, convert(w, true))
	}
	for _, w := range f.Repellors {
		m.Repellors = append(m.Repellors, convert(w, false))
	}
	return m, nil
}

func convert(w fileWaypoint, attractor bool) *route.Waypoint {
	return &route.Waypoint{
		Name:      w.Name,
		Location:  latlon.FromDegrees(w.Latitude, w.Longitude),
		Normal:    latlon.ToRadians(w.Normal),
		Range:     w.Range,
		Attractor: attractor,
	}
}
