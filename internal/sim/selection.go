package sim

import (
	"fmt"

	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/telemetry"
)

// SelectionKind tells a pinned drone from a pinned team.
type SelectionKind string

const (
	SelectionDrone SelectionKind = "drone"
	SelectionTeam  SelectionKind = "team"
)

// Selection is the operator's current focus: one drone or one team, never
// both. The zero value selects nothing.
type Selection struct {
	Kind SelectionKind `json:"kind,omitempty"`
	ID   int           `json:"id,omitempty"`
}

// Key returns the selection key of the focus.
func (sel Selection) Key() (mission.Key, bool) {
	switch sel.Kind {
	case SelectionDrone:
		return mission.DroneKey(sel.ID), true
	case SelectionTeam:
		return mission.TeamKey(sel.ID), true
	}
	return "", false
}

// Entity is the selection resolved against live telemetry. For a team,
// Latest is synthesized from the members' newest samples and is nil when
// no member reported yet.
type Entity struct {
	Kind    SelectionKind     `json:"kind"`
	ID      int               `json:"id"`
	Key     mission.Key       `json:"key"`
	Members []int             `json:"members"`
	Latest  *telemetry.Sample `json:"latest,omitempty"`
}

// SelectDrone pins a single drone.
func (s *Simulator) SelectDrone(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drones[id]; !ok {
		return fmt.Errorf("drone %d: %w", id, ErrUnknownDrone)
	}
	s.selection = Selection{Kind: SelectionDrone, ID: id}
	return nil
}

// SelectTeam pins a team.
func (s *Simulator) SelectTeam(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams.Get(id); !ok {
		return fmt.Errorf("team %d: %w", id, ErrUnknownTeam)
	}
	s.selection = Selection{Kind: SelectionTeam, ID: id}
	return nil
}

// Select pins whatever key names.
func (s *Simulator) Select(key mission.Key) error {
	if id, ok := key.Team(); ok {
		return s.SelectTeam(id)
	}
	if id, ok := key.Drone(); ok {
		return s.SelectDrone(id)
	}
	return fmt.Errorf("%q: %w", key, mission.ErrInvalidKey)
}

// ClearSelection drops the focus.
func (s *Simulator) ClearSelection() {
	s.mu.Lock()
	s.selection = Selection{}
	s.mu.Unlock()
}

// Selection returns the current focus.
func (s *Simulator) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// SelectedEntity resolves the focus. It reports false when nothing valid
// is selected.
func (s *Simulator) SelectedEntity() (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

func (s *Simulator) selectedLocked() (Entity, bool) {
	key, ok := s.selection.Key()
	if !ok {
		return Entity{}, false
	}
	members, err := s.membersLocked(key)
	if err != nil {
		return Entity{}, false
	}
	e := Entity{Kind: s.selection.Kind, ID: s.selection.ID, Key: key, Members: members}
	if s.selection.Kind == SelectionDrone {
		if latest, ok := s.drones[s.selection.ID].Latest(); ok {
			e.Latest = &latest
		}
		return e, true
	}
	var samples []telemetry.Sample
	for _, id := range members {
		if latest, ok := s.drones[id].Latest(); ok {
			samples = append(samples, latest)
		}
	}
	if len(samples) > 0 {
		avg := averageSamples(samples)
		e.Latest = &avg
	}
	return e, true
}

// averageSamples averages position, battery and signal; armed holds only if
// every sample is armed. Heading and command come from the first sample.
func averageSamples(samples []telemetry.Sample) telemetry.Sample {
	first := samples[0]
	out := telemetry.Sample{
		UptimeSec:   first.UptimeSec,
		Heading:     first.Heading,
		Command:     first.Command,
		RescuePhase: first.RescuePhase,
	}
	armed := true
	var rssiSum float64
	var rssiN int
	for _, smp := range samples {
		out.Lat += smp.Lat
		out.Lng += smp.Lng
		out.Alt += smp.Alt
		out.Battery += smp.Battery
		if smp.RSSI != nil {
			rssiSum += *smp.RSSI
			rssiN++
		}
		armed = armed && smp.IsArmed()
	}
	n := float64(len(samples))
	out.Lat /= n
	out.Lng /= n
	out.Alt /= n
	out.Battery /= n
	if rssiN > 0 {
		out.RSSI = telemetry.Float(rssiSum / float64(rssiN))
	}
	out.Armed = telemetry.Bool(armed)
	return out
}

// FormTeam unions ids into one team, merging teams that already hold any
// of them, and selects it. Teams absorbed by the merge lose their planned
// sequence.
func (s *Simulator) FormTeam(ids []int) (mission.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.teams.List()
	team, err := s.teams.Ensure(ids, func(id int) bool {
		_, ok := s.drones[id]
		return ok
	})
	if err != nil {
		return mission.Team{}, err
	}
	for _, t := range before {
		if _, ok := s.teams.Get(t.ID); !ok {
			s.clearSequenceLocked(mission.TeamKey(t.ID))
		}
	}
	s.selection = Selection{Kind: SelectionTeam, ID: team.ID}
	return team, nil
}

// DetachFromTeam removes a drone from its team. When the team dissolves
// its planned sequence is dropped and a lone remaining member becomes the
// selection.
func (s *Simulator) DetachFromTeam(droneID int) (mission.DetachResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.teams.Detach(droneID)
	if err != nil {
		return res, fmt.Errorf("drone %d: %w", droneID, err)
	}
	gone := Selection{Kind: SelectionTeam, ID: res.Team.ID}
	if res.Dissolved {
		s.clearSequenceLocked(mission.TeamKey(res.Team.ID))
	}
	switch {
	case res.Dissolved && res.Remaining != 0:
		s.selection = Selection{Kind: SelectionDrone, ID: res.Remaining}
	case res.Dissolved && s.selection == gone:
		s.selection = Selection{}
	}
	return res, nil
}

// Teams returns every team ordered by id.
func (s *Simulator) Teams() []mission.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teams.List()
}

// SelectedKey returns the key of the focus, or ErrNothingSelected.
func (s *Simulator) SelectedKey() (mission.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.selection.Key()
	if !ok {
		return "", ErrNothingSelected
	}
	return key, nil
}
