// Simulator owning the ground-control state of one swarm session
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"swarm-gcs/internal/config"
	"swarm-gcs/internal/geo"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/observability"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/station"
	"swarm-gcs/internal/telemetry"
)

var (
	ErrUnknownDrone        = errors.New("unknown drone")
	ErrCooldown            = errors.New("drone is cooling down after a disarm")
	ErrNotConfirmed        = errors.New("disarming an airborne drone needs confirmation")
	ErrUnsupportedPlayback = errors.New("step cannot be played back")
	ErrEmptySequence       = errors.New("no step at the active index")
	ErrNothingSelected     = errors.New("nothing selected")

	ErrUnknownStation  = station.ErrUnknownStation
	ErrUnknownWaypoint = mission.ErrUnknownWaypoint
	ErrUnknownTeam     = mission.ErrUnknownTeam
	ErrTeamTooSmall    = mission.ErrTeamTooSmall
)

const (
	maxNotices   = 20
	initialLabel = "Idle"
)

// Notice is a message the operator should see once, such as a failed
// location feed or a sequence step that could not be played.
type Notice struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Simulator orchestrates the swarm's telemetry, directives and planning
// state. All mutable state is guarded by mu.
type Simulator struct {
	sessionID string
	cfg       *config.SimulationConfig

	drones    map[int]*telemetry.Drone
	order     []int
	stations  *station.Registry
	relations *mission.Relations
	teams     *mission.Teams
	waypoints *mission.Waypoints
	ledger    *mission.Ledger
	selection Selection
	playback  map[mission.Key]*PlaybackState
	flights   map[int]FlightPlan
	notices   []Notice

	gen     *telemetry.Generator
	rand    *rand.Rand
	now     func() time.Time
	writer  TelemetryWriter
	metrics *observability.Collector
	log     *slog.Logger

	mu sync.Mutex
}

// NewSimulator creates the swarm described by cfg. writer receives
// telemetry and, when it implements them, command, state and snapshot
// rows. metrics may be nil.
func NewSimulator(cfg *config.SimulationConfig, writer TelemetryWriter, metrics *observability.Collector) *Simulator {
	return newSimulator(cfg, writer, metrics, time.Now)
}

func newSimulator(cfg *config.SimulationConfig, writer TelemetryWriter, metrics *observability.Collector, now func() time.Time) *Simulator {
	seed := cfg.Feed.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if writer == nil {
		writer = NewMultiWriter()
	}
	s := &Simulator{
		sessionID: cfg.SessionID,
		cfg:       cfg,
		drones:    make(map[int]*telemetry.Drone),
		relations: mission.NewRelations(),
		teams:     mission.NewTeams(),
		waypoints: mission.NewWaypoints(),
		ledger:    mission.NewLedger(),
		playback:  make(map[mission.Key]*PlaybackState),
		flights:   make(map[int]FlightPlan),
		rand:      rand.New(rand.NewSource(seed)),
		now:       now,
		writer:    writer,
		metrics:   metrics,
		log:       slog.Default(),
	}
	s.gen = telemetry.NewGenerator(rand.New(rand.NewSource(seed + 1)))
	s.stations = station.NewRegistry(station.GroundStation{
		Name: cfg.HQ.Name,
		Lat:  cfg.HQ.Lat,
		Lng:  cfg.HQ.Lng,
		Alt:  cfg.HQ.Alt,
	}, s.stationNotice)

	start := s.now()
	count := cfg.Swarm.Count
	for id := 1; id <= count; id++ {
		d := telemetry.NewDrone(id, telemetry.Config{
			HistoryLimit:   cfg.Swarm.HistoryLimit,
			MinRateSamples: cfg.Swarm.MinRateSamples,
		})
		bearing := 360 * float64(id-1) / float64(count)
		dist := cfg.Swarm.SpreadM * (0.3 + 0.7*s.rand.Float64())
		pos := geo.DestinationPoint(cfg.Swarm.CenterLat, cfg.Swarm.CenterLng, bearing, dist)
		d.UpdateTelemetry(telemetry.Sample{
			Lat:     pos.Lat,
			Lng:     pos.Lng,
			Heading: s.rand.Float64() * 360,
			Battery: 100,
			RSSI:    telemetry.Float(-60),
			Command: initialLabel,
			Armed:   telemetry.Bool(false),
		}, start)
		s.drones[id] = d
		s.order = append(s.order, id)
	}
	return s
}

// SessionID returns the id stamped on every exported row.
func (s *Simulator) SessionID() string { return s.sessionID }

// Config returns the configuration the simulator was built from.
func (s *Simulator) Config() *config.SimulationConfig { return s.cfg }

// DroneIDs returns the swarm's drone ids in ascending order.
func (s *Simulator) DroneIDs() []int {
	return append([]int(nil), s.order...)
}

// Ingest applies one telemetry sample. A changed command label drops the
// drone's goto, follow and home directives.
func (s *Simulator) Ingest(droneID int, sample telemetry.Sample, receivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingestLocked(droneID, sample, receivedAt)
}

func (s *Simulator) ingestLocked(id int, sample telemetry.Sample, at time.Time) error {
	d, ok := s.drones[id]
	if !ok {
		return fmt.Errorf("drone %d: %w", id, ErrUnknownDrone)
	}
	if d.UpdateTelemetry(sample, at) {
		s.relations.ClearOnCommandChange(id)
	}
	s.metrics.SampleIngested()
	latest, _ := d.Latest()
	if err := s.writer.Write(telemetry.NewTelemetryRow(s.sessionID, id, latest, at)); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Latest returns the drone's newest sample.
func (s *Simulator) Latest(droneID int) (telemetry.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[droneID]
	if !ok {
		return telemetry.Sample{}, false
	}
	return d.Latest()
}

// Relations returns a copy of the directive maps.
func (s *Simulator) Relations() mission.Relations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRelations(s.relations)
}

// Assigned returns the last command issued to the drone.
func (s *Simulator) Assigned(droneID int) (mission.Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Assigned(droneID)
}

// Audit returns every command issued so far.
func (s *Simulator) Audit() []mission.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Audit()
}

// Notices returns the pending operator notices, oldest first.
func (s *Simulator) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

func (s *Simulator) addNoticeLocked(format string, args ...any) {
	n := Notice{At: s.now(), Message: fmt.Sprintf(format, args...)}
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.log.Warn("notice", "message", n.Message)
}

// stationNotice is called by the registry without its lock held.
func (s *Simulator) stationNotice(id int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addNoticeLocked("station #%d location unavailable: %v", id, err)
}

// ResolveAnchor implements planning.Resolver.
func (s *Simulator) ResolveAnchor(a planning.Anchor) (geo.LatLng, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(a)
}

func (s *Simulator) resolveLocked(a planning.Anchor) (geo.LatLng, bool) {
	switch a.Kind {
	case planning.AnchorWaypoint:
		if wp, ok := s.waypoints.Get(a.ID); ok {
			return geo.LatLng{Lat: wp.Lat, Lng: wp.Lng}, true
		}
	case planning.AnchorStation:
		if st, ok := s.stations.Get(a.ID); ok {
			return geo.LatLng{Lat: st.Lat, Lng: st.Lng}, true
		}
	case planning.AnchorDrone:
		if d, ok := s.drones[a.ID]; ok {
			if latest, ok := d.Latest(); ok {
				return geo.LatLng{Lat: latest.Lat, Lng: latest.Lng}, true
			}
		}
	}
	return geo.LatLng{}, false
}

// lockedResolver resolves anchors while the caller holds mu.
type lockedResolver struct{ s *Simulator }

func (r lockedResolver) ResolveAnchor(a planning.Anchor) (geo.LatLng, bool) {
	return r.s.resolveLocked(a)
}

func (s *Simulator) membersLocked(key mission.Key) ([]int, error) {
	if id, ok := key.Team(); ok {
		team, ok := s.teams.Get(id)
		if !ok {
			return nil, fmt.Errorf("team %d: %w", id, ErrUnknownTeam)
		}
		return team.Members, nil
	}
	if id, ok := key.Drone(); ok {
		if _, ok := s.drones[id]; !ok {
			return nil, fmt.Errorf("drone %d: %w", id, ErrUnknownDrone)
		}
		return []int{id}, nil
	}
	return nil, fmt.Errorf("%q: %w", key, mission.ErrInvalidKey)
}

func copyRelations(r *mission.Relations) mission.Relations {
	out := mission.NewRelations()
	for k, v := range r.Waypoint {
		out.Waypoint[k] = v
	}
	for k, v := range r.Follow {
		out.Follow[k] = v
	}
	for k, v := range r.Home {
		out.Home[k] = v
	}
	for k, v := range r.Orbit {
		out.Orbit[k] = v
	}
	return *out
}
