package sim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"swarm-gcs/internal/geo"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/station"
	"swarm-gcs/internal/telemetry"
)

// Issuance limits for goto directives.
const (
	minSpeedKmh = 10.0
	maxSpeedKmh = 100.0
	minAltM     = 5.0
	maxAltM     = 100.0
	takeoffAltM = 5.0
	landStepM   = 5.0
)

var errSelfFollow = errors.New("a drone cannot follow itself")

// IssueOptions qualify one issuance.
type IssueOptions struct {
	// FromPlayback marks re-issued sequence steps; they are not appended to
	// the planned sequence again.
	FromPlayback bool
	// Confirmed acknowledges disarming a drone that is still in the air.
	Confirmed bool
}

// IssueResult reports which drones a directive reached.
type IssueResult struct {
	Key     mission.Key    `json:"key"`
	Command string         `json:"command"`
	Issued  []int          `json:"issued"`
	Skipped map[int]string `json:"skipped,omitempty"`
}

// Issue sends cmd to the drone or team named by target. A team directive
// fans out to every member but is planned once. Members that reject the
// directive (cooldown, missing confirmation) are skipped; when no member
// accepted it the first rejection is returned.
func (s *Simulator) Issue(target mission.Key, cmd mission.Command, opts IssueOptions) (IssueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(target, cmd, opts)
}

func (s *Simulator) issueLocked(target mission.Key, cmd mission.Command, opts IssueOptions) (IssueResult, error) {
	res := IssueResult{Key: target}
	members, err := s.membersLocked(target)
	if err != nil {
		s.metrics.CommandRejected("target")
		return res, err
	}
	cmd, err = s.normalizeLocked(cmd)
	if err != nil {
		s.metrics.CommandRejected("invalid")
		return res, err
	}
	res.Command = cmd.Label()

	now := s.now()
	var first error
	for _, id := range members {
		if err := s.applyLocked(id, target, cmd, opts, now); err != nil {
			if first == nil {
				first = err
			}
			if res.Skipped == nil {
				res.Skipped = make(map[int]string)
			}
			res.Skipped[id] = err.Error()
			s.metrics.CommandRejected(rejectReason(err))
			continue
		}
		res.Issued = append(res.Issued, id)
	}
	if len(res.Issued) == 0 {
		return res, first
	}
	if !opts.FromPlayback {
		s.ledger.Append(target, cmd, now)
	}
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrCooldown):
		return "cooldown"
	case errors.Is(err, ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, errSelfFollow):
		return "self_follow"
	}
	return "other"
}

// normalizeLocked fills defaults, clamps parameters and checks that every
// entity the command refers to exists. Parameters are rounded to label
// precision so relations, flight plans and the planned label agree.
func (s *Simulator) normalizeLocked(cmd mission.Command) (mission.Command, error) {
	cmd, err := s.fillLocked(cmd)
	if err != nil {
		return nil, err
	}
	return mission.Canonical(cmd), nil
}

func (s *Simulator) fillLocked(cmd mission.Command) (mission.Command, error) {
	d := s.cfg.Defaults
	switch c := cmd.(type) {
	case mission.Simple:
		switch c.Action {
		case mission.Arm, mission.Disarm, mission.Takeoff, mission.Land, mission.HoldPosition:
			return c, nil
		}
		return nil, fmt.Errorf("%q: %w", c.Action, mission.ErrUnknownCommand)
	case mission.GotoWaypoint:
		if _, ok := s.waypoints.Get(c.WaypointID); !ok {
			return nil, fmt.Errorf("waypoint %d: %w", c.WaypointID, ErrUnknownWaypoint)
		}
		c.SpeedKmh = clamp(orDefault(c.SpeedKmh, d.SpeedKmh), minSpeedKmh, maxSpeedKmh)
		c.AltM = clamp(orDefault(c.AltM, d.AltM), minAltM, maxAltM)
		return c, nil
	case mission.ReturnHome:
		if c.StationID == 0 {
			c.StationID = s.homeStationLocked()
		}
		if _, ok := s.stations.Get(c.StationID); !ok {
			return nil, fmt.Errorf("station %d: %w", c.StationID, ErrUnknownStation)
		}
		if c.Mode != mission.HomeHover {
			c.Mode = mission.HomeLand
		}
		return c, nil
	case mission.Follow:
		if _, ok := s.drones[c.TargetID]; !ok {
			return nil, fmt.Errorf("follow target %d: %w", c.TargetID, ErrUnknownDrone)
		}
		return c, nil
	case mission.Orbit:
		if _, err := planning.Resolve(lockedResolver{s}, c.Anchor); err != nil {
			return nil, err
		}
		c.RadiusM = planning.ClampRadius(orDefault(c.RadiusM, d.OrbitRadiusM))
		c.AltM = clamp(orDefault(c.AltM, d.AltM), minAltM, maxAltM)
		c.PeriodMin = orDefault(c.PeriodMin, d.OrbitPeriodMin)
		if !c.Direction.Valid() {
			c.Direction = planning.CW
		}
		return c, nil
	case mission.Flank:
		if _, err := planning.Resolve(lockedResolver{s}, c.Anchor); err != nil {
			return nil, err
		}
		c.DiameterM = planning.ClampDiameter(orDefault(c.DiameterM, d.FlankDiameterM))
		c.AltM = clamp(orDefault(c.AltM, d.AltM), minAltM, maxAltM)
		c.SpeedKmh = clamp(orDefault(c.SpeedKmh, d.SpeedKmh), minSpeedKmh, maxSpeedKmh)
		c.BearingDeg = geo.NormalizeHeading(c.BearingDeg)
		return c, nil
	}
	return nil, mission.ErrUnknownCommand
}

// homeStationLocked is the station "return home" uses without an id: the
// user's home when placed, HQ otherwise.
func (s *Simulator) homeStationLocked() int {
	if id, ok := s.stations.UserHomeID(); ok {
		return id
	}
	return station.HQID
}

// applyLocked issues cmd to one drone: it swaps the directive, edits the
// newest sample and records the ledger entry.
func (s *Simulator) applyLocked(id int, key mission.Key, cmd mission.Command, opts IssueOptions, now time.Time) error {
	d := s.drones[id]
	latest, has := d.Latest()

	var action mission.Action
	if c, ok := cmd.(mission.Simple); ok {
		action = c.Action
	}
	switch action {
	case mission.Arm, mission.Disarm, mission.Takeoff:
		if rem := d.CooldownRemaining(now); rem > 0 {
			return fmt.Errorf("drone %d: %w (%s left)", id, ErrCooldown, rem.Round(time.Millisecond))
		}
	}
	if action == mission.Disarm && has && latest.InAir() && s.cfg.Safety.ConfirmInAirDisarm && !opts.Confirmed {
		return fmt.Errorf("drone %d: %w", id, ErrNotConfirmed)
	}
	if f, ok := cmd.(mission.Follow); ok && f.TargetID == id {
		return fmt.Errorf("drone %d: %w", id, errSelfFollow)
	}

	s.relations.Apply(id, cmd)
	delete(s.flights, id)
	if has {
		s.planFlightLocked(id, cmd, geo.LatLng{Lat: latest.Lat, Lng: latest.Lng})
	}

	label := cmd.Label()
	d.Amend(func(smp *telemetry.Sample) {
		smp.Command = label
		switch action {
		case mission.Arm:
			smp.Armed = telemetry.Bool(true)
		case mission.Disarm:
			smp.Armed = telemetry.Bool(false)
			smp.Alt = 0
		case mission.Takeoff:
			if !smp.InAir() {
				smp.Armed = telemetry.Bool(true)
				smp.Alt = math.Max(smp.Alt, takeoffAltM)
			}
		case mission.Land:
			smp.Alt = math.Max(0, smp.Alt-landStepM)
		}
	})
	if action == mission.Disarm {
		d.SetCooldown(s.cfg.DisarmCooldown(), now)
	}

	source := telemetry.SourceOperator
	if opts.FromPlayback {
		source = telemetry.SourceSequence
	}
	entry := s.ledger.Assign(id, key, cmd, source, now)
	s.metrics.CommandIssued(mission.Kind(cmd))
	if cw, ok := s.writer.(CommandWriter); ok {
		row := telemetry.CommandRow{
			SessionID:    s.sessionID,
			ID:           entry.ID,
			DroneID:      id,
			SelectionKey: string(key),
			Command:      entry.Command,
			Source:       source,
			IssuedAt:     now,
		}
		if err := cw.WriteCommand(row); err != nil {
			s.log.Error("command write failed", "drone_id", id, "err", err)
		}
	}
	return nil
}

// planFlightLocked stores the orbit or flank plan computed from the drone's
// position at issuance.
func (s *Simulator) planFlightLocked(id int, cmd mission.Command, from geo.LatLng) {
	switch c := cmd.(type) {
	case mission.Orbit:
		center, ok := s.resolveLocked(c.Anchor)
		if !ok {
			return
		}
		plan := planning.SolveOrbit(center, c.RadiusM, c.PeriodMin*60, c.Direction, from)
		s.flights[id] = FlightPlan{Orbit: &plan}
	case mission.Flank:
		target, ok := s.resolveLocked(c.Anchor)
		if !ok {
			return
		}
		plan := planning.SolveFlank(planning.FlankInput{
			Target:     target,
			BearingDeg: c.BearingDeg,
			DiameterM:  c.DiameterM,
			From:       from,
		})
		s.flights[id] = FlightPlan{Flank: &plan}
	}
}

// IssueLocalCommand issues a parameterless state command.
func (s *Simulator) IssueLocalCommand(key mission.Key, action mission.Action, confirmed bool) (IssueResult, error) {
	return s.Issue(key, mission.Simple{Action: action}, IssueOptions{Confirmed: confirmed})
}

// IssueGotoWaypoint sends the selection to a waypoint. Zero speed or
// altitude use the configured defaults.
func (s *Simulator) IssueGotoWaypoint(key mission.Key, waypointID int, speedKmh, altM float64) (IssueResult, error) {
	return s.Issue(key, mission.GotoWaypoint{WaypointID: waypointID, SpeedKmh: speedKmh, AltM: altM}, IssueOptions{})
}

// IssueReturnHome sends the selection to a ground station; station 0 is
// the user's home or HQ.
func (s *Simulator) IssueReturnHome(key mission.Key, stationID int, mode mission.HomeMode) (IssueResult, error) {
	return s.Issue(key, mission.ReturnHome{StationID: stationID, Mode: mode}, IssueOptions{})
}

// IssueFollow makes the selection trail another drone.
func (s *Simulator) IssueFollow(key mission.Key, targetID int) (IssueResult, error) {
	return s.Issue(key, mission.Follow{TargetID: targetID}, IssueOptions{})
}

// AddOrbit issues an orbit around anchor.
func (s *Simulator) AddOrbit(key mission.Key, anchor planning.Anchor, radiusM, altM, periodMin float64, dir planning.Direction) (IssueResult, error) {
	return s.Issue(key, mission.Orbit{
		Anchor:    anchor,
		RadiusM:   radiusM,
		AltM:      altM,
		PeriodMin: periodMin,
		Direction: dir,
	}, IssueOptions{})
}

// AddFlank issues a flanking approach on anchor.
func (s *Simulator) AddFlank(key mission.Key, anchor planning.Anchor, diameterM, bearingDeg, altM, speedKmh float64) (IssueResult, error) {
	return s.Issue(key, mission.Flank{
		Anchor:     anchor,
		DiameterM:  diameterM,
		BearingDeg: bearingDeg,
		AltM:       altM,
		SpeedKmh:   speedKmh,
	}, IssueOptions{})
}

// IssueLabel parses a command label, as typed on the console or posted to
// the admin API, and issues it.
func (s *Simulator) IssueLabel(key mission.Key, label string, confirmed bool) (IssueResult, error) {
	cmd, err := mission.Parse(label)
	if err != nil {
		return IssueResult{Key: key}, err
	}
	return s.Issue(key, cmd, IssueOptions{Confirmed: confirmed})
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
