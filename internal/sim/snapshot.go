package sim

import (
	"time"

	"github.com/brunoga/deep"

	"swarm-gcs/internal/geo"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/station"
	"swarm-gcs/internal/telemetry"
)

// pathPoints is the resolution of the flight paths handed to renderers.
const pathPoints = 48

// DroneStatus is one row of the status list.
type DroneStatus struct {
	ID           int                 `json:"id"`
	Latest       *telemetry.Sample   `json:"latest,omitempty"`
	History      int                 `json:"history"`
	AgeSec       *float64            `json:"age_sec,omitempty"`
	Stale        bool                `json:"stale"`
	Armed        bool                `json:"armed"`
	InAir        bool                `json:"in_air"`
	BatteryRate  *float64            `json:"battery_rate_per_min,omitempty"`
	RemainingMin *float64            `json:"remaining_min,omitempty"`
	SpeedMps     *float64            `json:"speed_mps,omitempty"`
	CooldownMs   int64               `json:"cooldown_ms,omitempty"`
	TeamID       int                 `json:"team_id,omitempty"`
	Assigned     *mission.Assignment `json:"assigned,omitempty"`
	Mismatch     bool                `json:"mismatch"`
}

// FlightPlan is the solved trajectory of an orbiting or flanking drone.
type FlightPlan struct {
	Orbit  *planning.OrbitPlan `json:"orbit,omitempty"`
	Flank  *planning.FlankPlan `json:"flank,omitempty"`
	Path   []geo.LatLng        `json:"path,omitempty"`
	ETASec *float64            `json:"eta_sec,omitempty"`
}

// Snapshot is the read model handed to renderers. It shares nothing with
// the simulator's state.
type Snapshot struct {
	SessionID  string                        `json:"session_id"`
	Time       time.Time                     `json:"time"`
	Drones     []DroneStatus                 `json:"drones"`
	Stations   []station.GroundStation       `json:"stations"`
	UserHomeID int                           `json:"user_home_id,omitempty"`
	Teams      []mission.Team                `json:"teams"`
	Waypoints  []mission.Waypoint            `json:"waypoints"`
	Relations  mission.Relations             `json:"relations"`
	Planned    map[mission.Key]mission.Plan  `json:"planned"`
	Playback   map[mission.Key]PlaybackState `json:"playback"`
	Selection  Selection                     `json:"selection"`
	Selected   *Entity                       `json:"selected,omitempty"`
	Flights    map[int]FlightPlan            `json:"flights"`
	Notices    []Notice                      `json:"notices,omitempty"`
	State      telemetry.StateRow            `json:"state"`
}

// Snapshot captures the current read model.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()
	return deep.MustCopy(snap)
}

func (s *Simulator) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		SessionID: s.sessionID,
		Time:      now,
		Stations:  s.stations.List(),
		Teams:     s.teams.List(),
		Waypoints: s.waypoints.List(),
		Relations: copyRelations(s.relations),
		Planned:   make(map[mission.Key]mission.Plan),
		Playback:  make(map[mission.Key]PlaybackState),
		Selection: s.selection,
		Flights:   make(map[int]FlightPlan),
		Notices:   append([]Notice(nil), s.notices...),
	}
	if id, ok := s.stations.UserHomeID(); ok {
		snap.UserHomeID = id
	}
	for _, key := range s.ledger.Keys() {
		snap.Planned[key], _ = s.ledger.Planned(key)
	}
	for key, st := range s.playback {
		snap.Playback[key] = *st
	}
	if e, ok := s.selectedLocked(); ok {
		snap.Selected = &e
	}
	for _, id := range s.order {
		snap.Drones = append(snap.Drones, s.statusLocked(id, now))
		if fp, ok := s.flightLocked(id); ok {
			snap.Flights[id] = fp
		}
	}
	snap.State = s.stateRowLocked(snap.Drones, now)
	return snap
}

func (s *Simulator) statusLocked(id int, now time.Time) DroneStatus {
	d := s.drones[id]
	window := s.cfg.Swarm.BatteryWindowSec
	st := DroneStatus{
		ID:      id,
		History: d.Len(),
		Stale:   d.IsStale(now, s.cfg.StaleThreshold()),
		Armed:   d.IsArmed(),
		InAir:   d.InAir(),
	}
	if latest, ok := d.Latest(); ok {
		st.Latest = &latest
		st.Mismatch = s.ledger.Mismatch(id, latest.Command)
	}
	if age, ok := d.SecondsSinceLastUpdate(now); ok {
		st.AgeSec = &age
	}
	if rate, ok := d.BatteryRatePerMinute(window); ok {
		st.BatteryRate = &rate
	}
	if rem, ok := d.EstimatedTimeRemainingMinutes(window); ok {
		st.RemainingMin = &rem
	}
	if v, ok := d.GroundSpeedMps(); ok {
		st.SpeedMps = &v
	}
	st.CooldownMs = d.CooldownRemaining(now).Milliseconds()
	if team, ok := s.teams.TeamOf(id); ok {
		st.TeamID = team.ID
	}
	if a, ok := s.ledger.Assigned(id); ok {
		st.Assigned = &a
	}
	return st
}

// flightLocked refreshes the drone's plan for display. Orbits follow their
// anchor; flank plans stay as solved at issuance.
func (s *Simulator) flightLocked(id int) (FlightPlan, bool) {
	fp, ok := s.flights[id]
	if !ok {
		return FlightPlan{}, false
	}
	latest, _ := s.drones[id].Latest()
	pos := geo.LatLng{Lat: latest.Lat, Lng: latest.Lng}
	var (
		eta   time.Duration
		etaOK bool
	)
	switch {
	case fp.Orbit != nil:
		plan := s.liveOrbitLocked(id, *fp.Orbit, pos)
		fp.Orbit = &plan
		fp.Path = plan.Path(pathPoints)
		eta, etaOK = plan.ETA(plan.SpeedMps)
	case fp.Flank != nil:
		fp.Path = fp.Flank.Path(pathPoints)
		if o, ok := s.relations.Orbit[id]; ok {
			eta, etaOK = fp.Flank.ETA(o.SpeedKmh / 3.6)
		}
	}
	if etaOK {
		sec := eta.Seconds()
		fp.ETASec = &sec
	}
	return fp, true
}

// liveOrbitLocked re-solves an orbit around the anchor's current position,
// keeping the stored center when the anchor is gone.
func (s *Simulator) liveOrbitLocked(id int, stored planning.OrbitPlan, pos geo.LatLng) planning.OrbitPlan {
	center := stored.Center
	if o, ok := s.relations.Orbit[id]; ok {
		if ll, ok := s.resolveLocked(o.Anchor); ok {
			center = ll
		}
	}
	return planning.SolveOrbit(center, stored.RadiusM, stored.PeriodSec, stored.Direction, pos)
}

// stateRowLocked summarizes drones for the state writers.
func (s *Simulator) stateRowLocked(drones []DroneStatus, now time.Time) telemetry.StateRow {
	row := telemetry.StateRow{
		SessionID: s.sessionID,
		Drones:    len(drones),
		Teams:     s.teams.Len(),
		Waypoints: s.waypoints.Len(),
		Timestamp: now,
	}
	for _, d := range drones {
		if d.Stale {
			row.StaleDrones++
		}
		if d.Armed {
			row.ArmedDrones++
		}
		if d.Mismatch {
			row.Mismatches++
		}
	}
	for _, key := range s.ledger.Keys() {
		if plan, ok := s.ledger.Planned(key); ok {
			row.PlannedSteps += len(plan.Steps)
		}
	}
	return row
}
