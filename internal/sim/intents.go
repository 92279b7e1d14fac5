package sim

import (
	"fmt"

	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/station"
)

// AddWaypoint places a waypoint on the map.
func (s *Simulator) AddWaypoint(lat, lng float64, name string) mission.Waypoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waypoints.Add(lat, lng, name)
}

// MoveWaypoint drags a waypoint. Drones flying to it follow the new
// position on their next update.
func (s *Simulator) MoveWaypoint(id int, lat, lng float64) (mission.Waypoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wp, err := s.waypoints.Move(id, lat, lng)
	if err != nil {
		return wp, fmt.Errorf("waypoint %d: %w", id, err)
	}
	return wp, nil
}

// RenameWaypoint changes a waypoint's label.
func (s *Simulator) RenameWaypoint(id int, name string) (mission.Waypoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wp, err := s.waypoints.Rename(id, name)
	if err != nil {
		return wp, fmt.Errorf("waypoint %d: %w", id, err)
	}
	return wp, nil
}

// DeleteWaypoint removes a waypoint and every directive aimed at it,
// including orbits and flanks anchored there. It returns the drones whose
// directive was dropped.
func (s *Simulator) DeleteWaypoint(id int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.waypoints.Delete(id); err != nil {
		return nil, fmt.Errorf("waypoint %d: %w", id, err)
	}
	cleared := s.relations.ClearWaypoint(id)
	anchor := planning.Anchor{Kind: planning.AnchorWaypoint, ID: id}
	for _, droneID := range s.order {
		if o, ok := s.relations.Orbit[droneID]; ok && o.Anchor == anchor {
			delete(s.relations.Orbit, droneID)
			delete(s.flights, droneID)
			cleared = append(cleared, droneID)
		}
	}
	return cleared, nil
}

// Waypoints returns every waypoint ordered by id.
func (s *Simulator) Waypoints() []mission.Waypoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waypoints.List()
}

// SetUserHome places the operator's home station, relocating it if it
// already exists.
func (s *Simulator) SetUserHome(lat, lng, alt float64) station.GroundStation {
	return s.stations.SetUserHome(lat, lng, alt)
}

// AddStation adds a static ground station.
func (s *Simulator) AddStation(name string, lat, lng, alt float64) station.GroundStation {
	return s.stations.Add(name, lat, lng, alt)
}

// MoveStation applies a partial position update to a station.
func (s *Simulator) MoveStation(id int, u station.PositionUpdate) (station.GroundStation, error) {
	st, err := s.stations.Move(id, u)
	if err != nil {
		return st, fmt.Errorf("station %d: %w", id, err)
	}
	return st, nil
}

// TrackStation makes a station follow a live location feed. Feed failures
// end tracking and leave a notice.
func (s *Simulator) TrackStation(id int, p station.LocationProvider) error {
	if err := s.stations.Track(id, p); err != nil {
		return fmt.Errorf("station %d: %w", id, err)
	}
	return nil
}

// StopTracking returns a station to static positioning.
func (s *Simulator) StopTracking(id int) error {
	if err := s.stations.StopTracking(id); err != nil {
		return fmt.Errorf("station %d: %w", id, err)
	}
	return nil
}

// Stations returns every ground station ordered by id.
func (s *Simulator) Stations() []station.GroundStation {
	return s.stations.List()
}
