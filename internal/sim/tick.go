package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/brunoga/deep"

	"swarm-gcs/internal/geo"
	"swarm-gcs/internal/logging"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/telemetry"
)

// Steering constants for the mock feed.
const (
	followDistanceM = 15.0
	carrotLeadM     = 40.0
)

// Run starts the mock telemetry feed and the refresh loop and stops when
// the context is done. Each drone reports on its own jittered timer; the
// reports are applied here one at a time.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	s.mu.Lock()
	s.log = log
	s.mu.Unlock()

	refresh := s.cfg.RefreshInterval()
	log.Info("starting simulator", "drones", len(s.order), "refresh_interval", refresh)

	due := make(chan int, len(s.order))
	for _, id := range s.order {
		go s.feed(ctx, id, due)
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case id := <-due:
			s.step(ctx, id)
		case <-ticker.C:
			s.refresh(ctx)
		case <-ctx.Done():
			log.Info("stopping simulator")
			return
		}
	}
}

// feed posts the drone's id on due after every randomized delay.
func (s *Simulator) feed(ctx context.Context, id int, due chan<- int) {
	r := rand.New(rand.NewSource(s.cfg.Feed.Seed + int64(id)))
	if s.cfg.Feed.Seed == 0 {
		r = rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	}
	timer := time.NewTimer(s.nextDelay(r))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case due <- id:
		case <-ctx.Done():
			return
		}
		timer.Reset(s.nextDelay(r))
	}
}

// nextDelay draws the next report interval. A small share of reports is
// delayed further to mimic link loss.
func (s *Simulator) nextDelay(r *rand.Rand) time.Duration {
	lo, hi, gap := s.cfg.FeedInterval()
	d := lo
	if hi > lo {
		d += time.Duration(r.Int63n(int64(hi - lo)))
	}
	if r.Float64() < s.cfg.Feed.GapChance {
		d += gap
	}
	return d
}

// step produces and ingests the drone's next mock sample.
func (s *Simulator) step(ctx context.Context, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[id]
	if !ok {
		return
	}
	prev, ok := d.Latest()
	if !ok {
		return
	}
	now := s.now()
	dt := now.Sub(d.LastReceivedAt())
	next := s.gen.Next(prev, dt, s.steerLocked(id, prev))
	if err := s.ingestLocked(id, next, now); err != nil {
		logging.FromContext(ctx).Error("ingest failed", "drone_id", id, "err", err)
	}
}

// steerLocked turns the drone's directive into generator input. Drones
// without a directive hold, land or drift according to their last command.
func (s *Simulator) steerLocked(id int, cur telemetry.Sample) *telemetry.Steer {
	pos := geo.LatLng{Lat: cur.Lat, Lng: cur.Lng}
	if t, ok := s.relations.Waypoint[id]; ok {
		if wp, ok := s.waypoints.Get(t.WaypointID); ok {
			return &telemetry.Steer{
				Target:   &geo.LatLng{Lat: wp.Lat, Lng: wp.Lng},
				SpeedMps: t.SpeedKmh / 3.6,
				AltM:     t.AltM,
			}
		}
	}
	if target, ok := s.relations.Follow[id]; ok {
		if lead, ok := s.drones[target].Latest(); ok {
			behind := geo.DestinationPoint(lead.Lat, lead.Lng, geo.NormalizeHeading(lead.Heading+180), followDistanceM)
			return &telemetry.Steer{
				Target:   &behind,
				SpeedMps: s.cfg.Defaults.SpeedKmh / 3.6,
				AltM:     lead.Alt,
			}
		}
	}
	if h, ok := s.relations.Home[id]; ok {
		if st, ok := s.stations.Get(h.StationID); ok {
			return &telemetry.Steer{
				Target:   &geo.LatLng{Lat: st.Lat, Lng: st.Lng},
				SpeedMps: s.cfg.Defaults.SpeedKmh / 3.6,
				AltM:     s.cfg.Defaults.AltM,
				Land:     h.Mode == mission.HomeLand,
			}
		}
	}
	if o, ok := s.relations.Orbit[id]; ok {
		if carrot, ok := s.orbitCarrotLocked(id, o, pos); ok {
			return &telemetry.Steer{
				Target:   &carrot,
				SpeedMps: o.SpeedKmh / 3.6,
				AltM:     o.AltM,
			}
		}
	}

	switch mission.Action(cur.Command) {
	case mission.HoldPosition:
		return &telemetry.Steer{Hold: true, AltM: cur.Alt}
	case mission.Takeoff:
		return &telemetry.Steer{Hold: true, AltM: s.cfg.Defaults.AltM}
	case mission.Land:
		return &telemetry.Steer{Land: true}
	}
	return nil
}

func (s *Simulator) orbitCarrotLocked(id int, o mission.OrbitTarget, pos geo.LatLng) (geo.LatLng, bool) {
	fp, ok := s.flights[id]
	switch {
	case o.Mode == mission.ModeFlank && ok && fp.Flank != nil:
		return fp.Flank.Carrot(pos, carrotLeadM), true
	case o.Mode == mission.ModeOrbit:
		center, ok := s.resolveLocked(o.Anchor)
		if !ok {
			if fp.Orbit == nil {
				return geo.LatLng{}, false
			}
			center = fp.Orbit.Center
		}
		plan := planning.SolveOrbit(center, o.RadiusM, o.PeriodSec, o.Direction, pos)
		return plan.Carrot(pos, carrotLeadM), true
	}
	return geo.LatLng{}, false
}

// refresh emits the state row, metrics and snapshot of one refresh tick.
func (s *Simulator) refresh(ctx context.Context) {
	log := logging.FromContext(ctx)
	start := time.Now()

	s.mu.Lock()
	snap := deep.MustCopy(s.snapshotLocked(s.now()))
	s.mu.Unlock()

	if sw, ok := s.writer.(StateWriter); ok {
		if err := writeStates(sw, []telemetry.StateRow{snap.State}); err != nil {
			log.Error("state write failed", "err", err)
		}
	}
	s.metrics.SetState(snap.State)
	if sn, ok := s.writer.(SnapshotWriter); ok {
		if err := sn.WriteSnapshot(snap); err != nil {
			log.Error("snapshot write failed", "err", err)
		}
	}
	s.metrics.ObserveRefresh(time.Since(start))
}
