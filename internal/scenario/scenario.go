package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/station"
)

// Scenario is a mission preset loaded at startup: stations, waypoints,
// teams and planned sequences.
type Scenario struct {
	Name        string        `yaml:"name,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Home        *Position     `yaml:"home,omitempty"`
	Stations    []StationDef  `yaml:"stations,omitempty"`
	Waypoints   []WaypointDef `yaml:"waypoints,omitempty"`
	Teams       [][]int       `yaml:"teams,omitempty"`
	Sequences   []SequenceDef `yaml:"sequences,omitempty"`
}

// Position is a point with an optional altitude.
type Position struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
	Alt float64 `yaml:"alt,omitempty"`
}

// StationDef declares an extra ground station.
type StationDef struct {
	Name     string `yaml:"name"`
	Position `yaml:",inline"`
}

// WaypointDef declares a waypoint. Waypoints get ids in list order.
type WaypointDef struct {
	Name string  `yaml:"name,omitempty"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

// SequenceDef plans steps for one drone or for the n-th entry of Teams
// (1-based).
type SequenceDef struct {
	Drone int      `yaml:"drone,omitempty"`
	Team  int      `yaml:"team,omitempty"`
	Steps []string `yaml:"steps"`
}

// Planner is the part of the ground station a scenario writes to.
type Planner interface {
	SetUserHome(lat, lng, alt float64) station.GroundStation
	AddStation(name string, lat, lng, alt float64) station.GroundStation
	AddWaypoint(lat, lng float64, name string) mission.Waypoint
	FormTeam(ids []int) (mission.Team, error)
	ReplaceSequence(key mission.Key, labels []string) error
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks sequence targets and step labels without touching a
// station.
func (s *Scenario) Validate() error {
	var errs []error
	for i, seq := range s.Sequences {
		switch {
		case (seq.Drone == 0) == (seq.Team == 0):
			errs = append(errs, fmt.Errorf("sequence %d: exactly one of drone or team is required", i+1))
		case seq.Team > len(s.Teams) || seq.Team < 0:
			errs = append(errs, fmt.Errorf("sequence %d: team %d is not declared", i+1, seq.Team))
		}
		for _, step := range seq.Steps {
			if _, err := mission.Parse(step); err != nil {
				errs = append(errs, fmt.Errorf("sequence %d: %w", i+1, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply writes the scenario into p. Team entries are formed in order so
// sequences can refer to them by position.
func (s *Scenario) Apply(p Planner) error {
	if s.Home != nil {
		p.SetUserHome(s.Home.Lat, s.Home.Lng, s.Home.Alt)
	}
	for _, st := range s.Stations {
		p.AddStation(st.Name, st.Lat, st.Lng, st.Alt)
	}
	for _, wp := range s.Waypoints {
		p.AddWaypoint(wp.Lat, wp.Lng, wp.Name)
	}
	teamIDs := make([]int, len(s.Teams))
	for i, ids := range s.Teams {
		t, err := p.FormTeam(ids)
		if err != nil {
			return fmt.Errorf("team %d: %w", i+1, err)
		}
		teamIDs[i] = t.ID
	}
	for i, seq := range s.Sequences {
		key := mission.DroneKey(seq.Drone)
		if seq.Team > 0 {
			key = mission.TeamKey(teamIDs[seq.Team-1])
		}
		if err := p.ReplaceSequence(key, seq.Steps); err != nil {
			return fmt.Errorf("sequence %d: %w", i+1, err)
		}
	}
	return nil
}
