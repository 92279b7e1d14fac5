package mission

import (
	"sort"

	"swarm-gcs/internal/planning"
)

// WaypointTarget is a drone's goto directive.
type WaypointTarget struct {
	WaypointID int     `json:"waypoint_id"`
	SpeedKmh   float64 `json:"speed_kmh"`
	AltM       float64 `json:"alt_m"`
}

// HomeTarget is a drone's return-home directive.
type HomeTarget struct {
	StationID int      `json:"station_id"`
	Mode      HomeMode `json:"mode"`
}

// OrbitMode separates plain orbits from flank approaches in the orbit map.
type OrbitMode string

const (
	ModeOrbit OrbitMode = "orbit"
	ModeFlank OrbitMode = "flank"
)

// OrbitTarget is a drone's orbit or flank directive. Flank targets carry a
// diameter and bearing instead of a period.
type OrbitTarget struct {
	Mode       OrbitMode          `json:"mode"`
	Anchor     planning.Anchor    `json:"anchor"`
	RadiusM    float64            `json:"radius_m"`
	PeriodSec  float64            `json:"period_sec,omitempty"`
	AltM       float64            `json:"alt_m"`
	Direction  planning.Direction `json:"direction,omitempty"`
	SpeedKmh   float64            `json:"speed_kmh"`
	BearingDeg float64            `json:"bearing_deg,omitempty"`
}

// Relations are the per-drone directive maps. A drone appears in at most
// one of them.
type Relations struct {
	Waypoint map[int]WaypointTarget `json:"waypoint"`
	Follow   map[int]int            `json:"follow"`
	Home     map[int]HomeTarget     `json:"home"`
	Orbit    map[int]OrbitTarget    `json:"orbit"`
}

// NewRelations returns empty relation maps.
func NewRelations() *Relations {
	return &Relations{
		Waypoint: make(map[int]WaypointTarget),
		Follow:   make(map[int]int),
		Home:     make(map[int]HomeTarget),
		Orbit:    make(map[int]OrbitTarget),
	}
}

// Clear removes the drone from every map.
func (r *Relations) Clear(droneID int) {
	delete(r.Waypoint, droneID)
	delete(r.Follow, droneID)
	delete(r.Home, droneID)
	delete(r.Orbit, droneID)
}

// Apply is the single transition for issuing cmd: the drone's previous
// directive is dropped and the one cmd implies, if any, is recorded.
func (r *Relations) Apply(droneID int, cmd Command) {
	r.Clear(droneID)
	switch c := cmd.(type) {
	case GotoWaypoint:
		r.Waypoint[droneID] = WaypointTarget{WaypointID: c.WaypointID, SpeedKmh: c.SpeedKmh, AltM: c.AltM}
	case ReturnHome:
		r.Home[droneID] = HomeTarget{StationID: c.StationID, Mode: c.Mode}
	case Follow:
		if c.TargetID != 0 {
			r.Follow[droneID] = c.TargetID
		}
	case Orbit:
		r.Orbit[droneID] = OrbitTarget{
			Mode:      ModeOrbit,
			Anchor:    c.Anchor,
			RadiusM:   planning.ClampRadius(c.RadiusM),
			PeriodSec: c.PeriodMin * 60,
			AltM:      c.AltM,
			Direction: c.Direction,
			SpeedKmh:  c.SpeedKmh(),
		}
	case Flank:
		r.Orbit[droneID] = OrbitTarget{
			Mode:       ModeFlank,
			Anchor:     c.Anchor,
			RadiusM:    planning.ClampDiameter(c.DiameterM) / 2,
			AltM:       c.AltM,
			SpeedKmh:   c.SpeedKmh,
			BearingDeg: c.BearingDeg,
		}
	}
}

// ClearOnCommandChange drops the waypoint, follow and home directives after
// the telemetry command changed. Orbit entries are kept.
func (r *Relations) ClearOnCommandChange(droneID int) {
	delete(r.Waypoint, droneID)
	delete(r.Follow, droneID)
	delete(r.Home, droneID)
}

// ClearWaypoint removes every goto directive aimed at wpID and returns the
// affected drones in ascending order.
func (r *Relations) ClearWaypoint(wpID int) []int {
	var cleared []int
	for id, t := range r.Waypoint {
		if t.WaypointID == wpID {
			delete(r.Waypoint, id)
			cleared = append(cleared, id)
		}
	}
	sort.Ints(cleared)
	return cleared
}

// Count returns how many maps hold the drone.
func (r *Relations) Count(droneID int) int {
	n := 0
	if _, ok := r.Waypoint[droneID]; ok {
		n++
	}
	if _, ok := r.Follow[droneID]; ok {
		n++
	}
	if _, ok := r.Home[droneID]; ok {
		n++
	}
	if _, ok := r.Orbit[droneID]; ok {
		n++
	}
	return n
}
