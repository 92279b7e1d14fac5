package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"swarm-gcs/internal/config"
	"swarm-gcs/internal/geo"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/observability"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/station"
	"swarm-gcs/internal/telemetry"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSimulator(t *testing.T, count int) (*Simulator, *collectWriter, *testClock) {
	t.Helper()
	cfg := config.Default()
	cfg.SessionID = "test-session"
	cfg.Swarm.Count = count
	cfg.Feed.Seed = 1
	w := &collectWriter{}
	clk := &testClock{t: t0}
	return newSimulator(cfg, w, nil, clk.now), w, clk
}

// fly puts a drone in the air at alt.
func fly(t *testing.T, s *Simulator, id int, alt float64) {
	t.Helper()
	latest, _ := s.Latest(id)
	latest.Alt = alt
	latest.Armed = telemetry.Bool(true)
	if err := s.Ingest(id, latest, s.now()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func TestNewSimulatorSpawnsSwarm(t *testing.T) {
	s, _, _ := newTestSimulator(t, 3)
	ids := s.DroneIDs()
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("ids = %v", ids)
	}
	for _, id := range ids {
		latest, ok := s.Latest(id)
		if !ok {
			t.Fatalf("drone %d has no telemetry", id)
		}
		if latest.Battery != 100 || latest.IsArmed() || latest.Command != initialLabel {
			t.Errorf("drone %d initial sample = %+v", id, latest)
		}
		d := geo.HaversineDistance(latest.Lat, latest.Lng, 48.2082, 16.3738)
		if d > 400 {
			t.Errorf("drone %d spawned %.0f m from center", id, d)
		}
	}
	if len(s.Stations()) != 1 {
		t.Fatalf("expected only HQ")
	}
}

func TestIngestClearsDirectivesOnCommandChange(t *testing.T) {
	s, w, clk := newTestSimulator(t, 2)
	wp := s.AddWaypoint(48.21, 16.38, "alpha")
	res, err := s.IssueGotoWaypoint(mission.DroneKey(1), wp.ID, 0, 0)
	if err != nil {
		t.Fatalf("goto: %v", err)
	}
	if res.Command != "Goto WP #1 (spd 60 km/h, alt 30 m)" {
		t.Fatalf("label = %q", res.Command)
	}

	latest, _ := s.Latest(1)
	latest.Command = ""
	clk.advance(time.Second)
	if err := s.Ingest(1, latest, clk.now()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Relations().Waypoint[1]; !ok {
		t.Fatalf("directive dropped although the command did not change")
	}

	latest.Command = "Land"
	clk.advance(time.Second)
	if err := s.Ingest(1, latest, clk.now()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Relations().Waypoint[1]; ok {
		t.Fatalf("directive kept after the command changed")
	}
	if len(w.rows) != 2 || w.rows[1].Command != "Land" || w.rows[1].SessionID != "test-session" {
		t.Fatalf("rows = %+v", w.rows)
	}
	if err := s.Ingest(42, latest, clk.now()); !errors.Is(err, ErrUnknownDrone) {
		t.Fatalf("err = %v", err)
	}
}

func TestArmDisarmCooldown(t *testing.T) {
	s, w, clk := newTestSimulator(t, 1)
	key := mission.DroneKey(1)

	if _, err := s.IssueLocalCommand(key, mission.Arm, false); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if latest, _ := s.Latest(1); !latest.IsArmed() || latest.Command != "Arm" {
		t.Fatalf("after arm: %+v", latest)
	}
	if _, err := s.IssueLocalCommand(key, mission.Disarm, false); err != nil {
		t.Fatalf("disarm on the ground: %v", err)
	}
	if latest, _ := s.Latest(1); latest.IsArmed() || latest.Alt != 0 {
		t.Fatalf("after disarm: %+v", latest)
	}

	clk.advance(time.Second)
	if _, err := s.IssueLocalCommand(key, mission.Arm, false); !errors.Is(err, ErrCooldown) {
		t.Fatalf("err = %v, want cooldown", err)
	}
	if _, err := s.IssueLocalCommand(key, mission.Land, false); err != nil {
		t.Fatalf("land is not gated by the cooldown: %v", err)
	}

	clk.advance(2001 * time.Millisecond)
	if _, err := s.IssueLocalCommand(key, mission.Arm, false); err != nil {
		t.Fatalf("arm after cooldown: %v", err)
	}
	if len(w.commands) != 4 {
		t.Fatalf("commands = %d, want 4", len(w.commands))
	}
	for _, c := range w.commands {
		if c.Source != telemetry.SourceOperator || c.SelectionKey != "drone:1" || c.ID == "" {
			t.Errorf("command row = %+v", c)
		}
	}
}

func TestDisarmInAirNeedsConfirmation(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	fly(t, s, 1, 20)
	key := mission.DroneKey(1)

	if _, err := s.IssueLocalCommand(key, mission.Disarm, false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("err = %v, want confirmation error", err)
	}
	if latest, _ := s.Latest(1); !latest.IsArmed() || latest.Alt != 20 {
		t.Fatalf("rejected disarm changed the drone: %+v", latest)
	}
	if _, ok := s.Assigned(1); ok {
		t.Fatalf("rejected disarm reached the ledger")
	}
	if _, err := s.IssueLocalCommand(key, mission.Disarm, true); err != nil {
		t.Fatalf("confirmed disarm: %v", err)
	}
	if latest, _ := s.Latest(1); latest.IsArmed() || latest.Alt != 0 {
		t.Fatalf("after disarm: %+v", latest)
	}
}

func TestTakeoffAndLand(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	key := mission.DroneKey(1)
	if _, err := s.IssueLocalCommand(key, mission.Takeoff, false); err != nil {
		t.Fatal(err)
	}
	latest, _ := s.Latest(1)
	if !latest.IsArmed() || latest.Alt != takeoffAltM {
		t.Fatalf("after takeoff: %+v", latest)
	}
	if _, err := s.IssueLocalCommand(key, mission.Land, false); err != nil {
		t.Fatal(err)
	}
	if latest, _ := s.Latest(1); latest.Alt != 0 {
		t.Fatalf("after land alt = %v", latest.Alt)
	}
	if _, err := s.IssueLocalCommand(key, "Barrel Roll", false); !errors.Is(err, mission.ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestTeamIssuanceFansOut(t *testing.T) {
	s, w, _ := newTestSimulator(t, 4)
	team, err := s.FormTeam([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("form team: %v", err)
	}
	if sel := s.Selection(); sel.Kind != SelectionTeam || sel.ID != team.ID {
		t.Fatalf("selection = %+v", sel)
	}
	wp := s.AddWaypoint(48.21, 16.38, "")
	key := mission.TeamKey(team.ID)
	res, err := s.IssueGotoWaypoint(key, wp.ID, 50, 40)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Issued) != 3 {
		t.Fatalf("issued = %v", res.Issued)
	}
	if len(s.Audit()) != 3 || len(w.commands) != 3 {
		t.Fatalf("audit = %d, rows = %d", len(s.Audit()), len(w.commands))
	}
	plan, ok := s.Sequence(key)
	if !ok || len(plan.Steps) != 1 || plan.Steps[0] != "Goto WP #1 (spd 50 km/h, alt 40 m)" {
		t.Fatalf("plan = %+v", plan)
	}
	for _, id := range team.Members {
		a, ok := s.Assigned(id)
		if !ok || a.Command != res.Command {
			t.Errorf("drone %d assigned %+v", id, a)
		}
	}
	if _, ok := s.Assigned(4); ok {
		t.Fatalf("drone outside the team was commanded")
	}
}

func TestTeamIssuanceSkipsCoolingMember(t *testing.T) {
	s, _, _ := newTestSimulator(t, 2)
	if _, err := s.IssueLocalCommand(mission.DroneKey(1), mission.Disarm, false); err != nil {
		t.Fatal(err)
	}
	team, err := s.FormTeam([]int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.IssueLocalCommand(mission.TeamKey(team.ID), mission.Arm, false)
	if err != nil {
		t.Fatalf("team arm: %v", err)
	}
	if len(res.Issued) != 1 || res.Issued[0] != 2 {
		t.Fatalf("issued = %v", res.Issued)
	}
	if _, ok := res.Skipped[1]; !ok {
		t.Fatalf("skipped = %v", res.Skipped)
	}
	if latest, _ := s.Latest(1); latest.IsArmed() {
		t.Fatalf("cooling drone was armed")
	}

	// Nobody accepts: the error comes back and nothing is planned.
	if _, err := s.IssueLocalCommand(mission.DroneKey(1), mission.Arm, false); !errors.Is(err, ErrCooldown) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := s.Sequence(mission.DroneKey(1)); !ok {
		t.Fatalf("the earlier disarm should be planned")
	}
	if plan, _ := s.Sequence(mission.DroneKey(1)); len(plan.Steps) != 1 {
		t.Fatalf("rejected arm was planned: %v", plan.Steps)
	}
}

func TestRelationsStayExclusive(t *testing.T) {
	s, _, _ := newTestSimulator(t, 3)
	wp := s.AddWaypoint(48.21, 16.38, "")
	key := mission.DroneKey(1)
	steps := []func() (IssueResult, error){
		func() (IssueResult, error) { return s.IssueGotoWaypoint(key, wp.ID, 0, 0) },
		func() (IssueResult, error) { return s.IssueFollow(key, 2) },
		func() (IssueResult, error) { return s.IssueReturnHome(key, 0, mission.HomeHover) },
		func() (IssueResult, error) {
			return s.AddOrbit(key, planning.Anchor{Kind: planning.AnchorDrone, ID: 3}, 100, 30, 2, planning.CCW)
		},
		func() (IssueResult, error) { return s.IssueLocalCommand(key, mission.HoldPosition, false) },
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		rel := s.Relations()
		want := 1
		if i == len(steps)-1 {
			want = 0
		}
		if n := rel.Count(1); n != want {
			t.Fatalf("step %d: drone in %d maps, want %d", i, n, want)
		}
	}
}

func TestFollowSkipsSelf(t *testing.T) {
	s, _, _ := newTestSimulator(t, 2)
	team, _ := s.FormTeam([]int{1, 2})
	res, err := s.IssueFollow(mission.TeamKey(team.ID), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Issued) != 1 || res.Issued[0] != 2 {
		t.Fatalf("issued = %v", res.Issued)
	}
	if got := s.Relations().Follow[2]; got != 1 {
		t.Fatalf("drone 2 follows %d", got)
	}
	if _, err := s.IssueFollow(mission.DroneKey(1), 9); !errors.Is(err, ErrUnknownDrone) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteWaypointClearsDirectives(t *testing.T) {
	s, _, _ := newTestSimulator(t, 3)
	wp := s.AddWaypoint(48.21, 16.38, "")
	if _, err := s.IssueGotoWaypoint(mission.DroneKey(1), wp.ID, 0, 0); err != nil {
		t.Fatal(err)
	}
	anchor := planning.Anchor{Kind: planning.AnchorWaypoint, ID: wp.ID}
	if _, err := s.AddOrbit(mission.DroneKey(2), anchor, 200, 30, 2, planning.CW); err != nil {
		t.Fatal(err)
	}
	cleared, err := s.DeleteWaypoint(wp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cleared) != 2 {
		t.Fatalf("cleared = %v", cleared)
	}
	rel := s.Relations()
	if len(rel.Waypoint) != 0 || len(rel.Orbit) != 0 {
		t.Fatalf("relations = %+v", rel)
	}
	if _, ok := s.Snapshot().Flights[2]; ok {
		t.Fatalf("orbit plan kept")
	}
	if _, err := s.DeleteWaypoint(wp.ID); !errors.Is(err, ErrUnknownWaypoint) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.IssueGotoWaypoint(mission.DroneKey(3), wp.ID, 0, 0); !errors.Is(err, ErrUnknownWaypoint) {
		t.Fatalf("err = %v", err)
	}
}

func TestSelectedEntityTeamAverage(t *testing.T) {
	s, _, clk := newTestSimulator(t, 3)
	samples := map[int]telemetry.Sample{
		1: {Lat: 10, Lng: 20, Alt: 30, Heading: 90, Battery: 80, RSSI: telemetry.Float(-50), Command: "A", Armed: telemetry.Bool(true)},
		2: {Lat: 20, Lng: 40, Alt: 10, Heading: 180, Battery: 60, Command: "B", Armed: telemetry.Bool(false)},
	}
	for id, smp := range samples {
		if err := s.Ingest(id, smp, clk.now()); err != nil {
			t.Fatal(err)
		}
	}
	team, err := s.FormTeam([]int{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	e, ok := s.SelectedEntity()
	if !ok || e.Kind != SelectionTeam || e.ID != team.ID || e.Latest == nil {
		t.Fatalf("entity = %+v, %v", e, ok)
	}
	got := *e.Latest
	if got.Lat != 15 || got.Lng != 30 || got.Alt != 20 || got.Battery != 70 {
		t.Errorf("averages = %+v", got)
	}
	if got.RSSI == nil || *got.RSSI != -50 {
		t.Errorf("rssi = %v", got.RSSI)
	}
	if got.IsArmed() {
		t.Errorf("team armed although drone 2 is not")
	}
	if got.Heading != 90 || got.Command != "A" {
		t.Errorf("representative = %v %q", got.Heading, got.Command)
	}

	if err := s.SelectDrone(2); err != nil {
		t.Fatal(err)
	}
	e, _ = s.SelectedEntity()
	if e.Kind != SelectionDrone || e.Latest.Command != "B" {
		t.Fatalf("drone entity = %+v", e)
	}
	s.ClearSelection()
	if _, ok := s.SelectedEntity(); ok {
		t.Fatalf("nothing should be selected")
	}
	if _, err := s.SelectedKey(); !errors.Is(err, ErrNothingSelected) {
		t.Fatalf("err = %v", err)
	}
}

func TestDetachSelectsRemainingDrone(t *testing.T) {
	s, _, _ := newTestSimulator(t, 3)
	team, err := s.FormTeam([]int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.DetachFromTeam(1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Dissolved || res.Remaining != 2 {
		t.Fatalf("detach = %+v", res)
	}
	if sel := s.Selection(); sel != (Selection{Kind: SelectionDrone, ID: 2}) {
		t.Fatalf("selection = %+v", sel)
	}
	if err := s.SelectTeam(team.ID); !errors.Is(err, ErrUnknownTeam) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.DetachFromTeam(3); !errors.Is(err, mission.ErrNotInTeam) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.FormTeam([]int{3, 3, 99}); !errors.Is(err, ErrTeamTooSmall) {
		t.Fatalf("err = %v", err)
	}
}

func TestGoneTeamsLoseTheirSequences(t *testing.T) {
	s, _, _ := newTestSimulator(t, 4)
	a, err := s.FormTeam([]int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.FormTeam([]int{3, 4})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []int{a.ID, b.ID} {
		if err := s.ReplaceSequence(mission.TeamKey(id), []string{"Arm", "Takeoff"}); err != nil {
			t.Fatal(err)
		}
		if err := s.SetActiveIndex(mission.TeamKey(id), 1); err != nil {
			t.Fatal(err)
		}
	}

	merged, err := s.FormTeam([]int{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if merged.ID != a.ID || len(merged.Members) != 4 {
		t.Fatalf("merged = %+v", merged)
	}
	if _, ok := s.Sequence(mission.TeamKey(b.ID)); ok {
		t.Fatalf("absorbed team kept its sequence")
	}
	if st := s.PlaybackState(mission.TeamKey(b.ID)); st.ActiveIndex != 0 {
		t.Fatalf("absorbed team kept its cursor: %+v", st)
	}
	if _, ok := s.Sequence(mission.TeamKey(a.ID)); !ok {
		t.Fatalf("surviving team lost its sequence")
	}

	for _, id := range []int{1, 2, 3} {
		if _, err := s.DetachFromTeam(id); err != nil {
			t.Fatal(err)
		}
	}
	snap := s.Snapshot()
	if _, ok := snap.Planned[mission.TeamKey(a.ID)]; ok {
		t.Fatalf("dissolved team still planned: %v", snap.Planned)
	}
	if _, ok := snap.Playback[mission.TeamKey(a.ID)]; ok {
		t.Fatalf("dissolved team still has a cursor")
	}
}

func TestPlayAndPause(t *testing.T) {
	s, w, _ := newTestSimulator(t, 1)
	key := mission.DroneKey(1)
	s.AddWaypoint(48.21, 16.38, "")
	steps := []string{"Takeoff", "Goto WP #1 (spd 50 km/h, alt 40 m)"}
	if err := s.ReplaceSequence(key, steps); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActiveIndex(key, 1); err != nil {
		t.Fatal(err)
	}
	res, err := s.Play(key)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Command != steps[1] {
		t.Fatalf("played %q", res.Command)
	}
	if st := s.PlaybackState(key); !st.Playing || st.ActiveIndex != 1 {
		t.Fatalf("state = %+v", st)
	}
	if a, _ := s.Assigned(1); a.Command != steps[1] {
		t.Fatalf("assigned = %+v", a)
	}
	if last := w.commands[len(w.commands)-1]; last.Source != telemetry.SourceSequence {
		t.Fatalf("source = %q", last.Source)
	}

	if _, err := s.Pause(key); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if st := s.PlaybackState(key); st.Playing || st.ActiveIndex != 1 {
		t.Fatalf("state after pause = %+v", st)
	}
	if latest, _ := s.Latest(1); latest.Command != string(mission.HoldPosition) {
		t.Fatalf("command after pause = %q", latest.Command)
	}
	plan, _ := s.Sequence(key)
	if len(plan.Steps) != 2 {
		t.Fatalf("playback changed the sequence: %v", plan.Steps)
	}
}

func TestPlayRejectsUnresolvedSteps(t *testing.T) {
	s, _, _ := newTestSimulator(t, 2)
	key := mission.DroneKey(1)
	if err := s.ReplaceSequence(key, []string{"Follow drone", "Goto WP #7 (spd 60 km/h, alt 30 m)"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Play(key); !errors.Is(err, ErrUnsupportedPlayback) {
		t.Fatalf("err = %v", err)
	}
	if err := s.SetActiveIndex(key, 1); err != nil {
		t.Fatal(err)
	}
	_, err := s.Play(key)
	if !errors.Is(err, ErrUnsupportedPlayback) || !errors.Is(err, ErrUnknownWaypoint) {
		t.Fatalf("err = %v", err)
	}
	if n := len(s.Notices()); n != 2 {
		t.Fatalf("notices = %d", n)
	}
	if s.PlaybackState(key).Playing {
		t.Fatalf("rejected step marked as playing")
	}
	if _, ok := s.Assigned(1); ok {
		t.Fatalf("rejected step reached the drone")
	}
	if err := s.SetActiveIndex(key, 5); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("err = %v", err)
	}
	if err := s.ReplaceSequence(key, []string{"Dance"}); !errors.Is(err, mission.ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
	s.ClearSequence(key)
	if _, err := s.Play(key); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("err = %v", err)
	}
}

func TestReturnHomeDefaults(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	key := mission.DroneKey(1)
	res, err := s.IssueReturnHome(key, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Command != "Return home #1 (land)" {
		t.Fatalf("label = %q", res.Command)
	}
	home := s.SetUserHome(48.3, 16.4, 0)
	res, err = s.IssueReturnHome(key, 0, mission.HomeHover)
	if err != nil {
		t.Fatal(err)
	}
	if res.Command != "Return home #2 (hover)" || home.ID != 2 {
		t.Fatalf("label = %q, home = %+v", res.Command, home)
	}
	if _, err := s.IssueReturnHome(key, 9, ""); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("err = %v", err)
	}
}

func TestGotoParamsMatchLabel(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	key := mission.DroneKey(1)
	wp := s.AddWaypoint(48.21, 16.38, "")
	res, err := s.IssueGotoWaypoint(key, wp.ID, 60.25, 30.04)
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("Goto WP #%d (spd 60.3 km/h, alt 30 m)", wp.ID)
	if res.Command != want {
		t.Fatalf("label = %q, want %q", res.Command, want)
	}
	target := s.Relations().Waypoint[1]
	if target.SpeedKmh != 60.3 || target.AltM != 30 {
		t.Fatalf("stored directive = %+v", target)
	}
	if a, _ := s.Assigned(1); a.Command != want {
		t.Fatalf("assigned = %q", a.Command)
	}
	plan, _ := s.Sequence(key)
	if plan.Steps[len(plan.Steps)-1] != want {
		t.Fatalf("planned = %v", plan.Steps)
	}
}

func TestIssueLabelRoundTrip(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	label := "Orbit (around home #1, r 500 m, alt 30 m, 5 min/orbit, spd 38 km/h, CW)"
	res, err := s.IssueLabel(mission.DroneKey(1), label, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Command != label {
		t.Fatalf("label = %q", res.Command)
	}
	o := s.Relations().Orbit[1]
	if o.Mode != mission.ModeOrbit || o.RadiusM != 500 || o.PeriodSec != 300 || o.Direction != planning.CW {
		t.Fatalf("orbit = %+v", o)
	}
	if math.Abs(o.SpeedKmh-37.7) > 0.1 {
		t.Fatalf("speed = %v", o.SpeedKmh)
	}
	if _, err := s.IssueLabel(mission.DroneKey(1), "Jump", false); !errors.Is(err, mission.ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestFlankPlanInSnapshot(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	north := geo.DestinationPoint(48.2082, 16.3738, 0, 2000)
	wp := s.AddWaypoint(north.Lat, north.Lng, "target")
	anchor := planning.Anchor{Kind: planning.AnchorWaypoint, ID: wp.ID}
	if _, err := s.AddFlank(mission.DroneKey(1), anchor, 1000, 90, 30, 50); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	fp, ok := snap.Flights[1]
	if !ok || fp.Flank == nil {
		t.Fatalf("flights = %+v", snap.Flights)
	}
	if len(fp.Path) == 0 || fp.ETASec == nil || *fp.ETASec <= 0 {
		t.Fatalf("flank plan = %+v", fp)
	}
	if geo.HeadingDifference(fp.Flank.TangentBearing, 90) > 1 {
		t.Fatalf("tangent bearing = %v", fp.Flank.TangentBearing)
	}
	if o := snap.Relations.Orbit[1]; o.Mode != mission.ModeFlank || o.RadiusM != 500 {
		t.Fatalf("orbit entry = %+v", o)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s, _, clk := newTestSimulator(t, 2)
	team, _ := s.FormTeam([]int{1, 2})
	if _, err := s.IssueLocalCommand(mission.TeamKey(team.ID), mission.Arm, false); err != nil {
		t.Fatal(err)
	}
	clk.advance(5 * time.Second)
	snap := s.Snapshot()
	if snap.State.StaleDrones != 2 || snap.State.ArmedDrones != 2 || snap.State.Teams != 1 || snap.State.PlannedSteps != 1 {
		t.Fatalf("state = %+v", snap.State)
	}
	if snap.Drones[0].TeamID != team.ID || snap.Drones[0].Assigned == nil {
		t.Fatalf("status = %+v", snap.Drones[0])
	}
	snap.Drones[0].Latest.Lat = 0
	snap.Teams[0].Members[0] = 99
	latest, _ := s.Latest(1)
	if latest.Lat == 0 || s.Teams()[0].Members[0] == 99 {
		t.Fatalf("snapshot shares state with the simulator")
	}
}

func TestMismatchInSnapshot(t *testing.T) {
	s, _, clk := newTestSimulator(t, 1)
	if _, err := s.IssueLocalCommand(mission.DroneKey(1), mission.HoldPosition, false); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Drones[0].Mismatch {
		t.Fatalf("no mismatch expected right after issuance")
	}
	latest, _ := s.Latest(1)
	latest.Command = "RTL"
	if err := s.Ingest(1, latest, clk.now()); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); !snap.Drones[0].Mismatch || snap.State.Mismatches != 1 {
		t.Fatalf("mismatch not reported: %+v", snap.Drones[0])
	}
}

func TestStepFliesTowardWaypoint(t *testing.T) {
	s, _, clk := newTestSimulator(t, 1)
	key := mission.DroneKey(1)
	if _, err := s.IssueLocalCommand(key, mission.Takeoff, false); err != nil {
		t.Fatal(err)
	}
	start, _ := s.Latest(1)
	target := geo.DestinationPoint(start.Lat, start.Lng, 0, 500)
	wp := s.AddWaypoint(target.Lat, target.Lng, "")
	if _, err := s.IssueGotoWaypoint(key, wp.ID, 36, 30); err != nil {
		t.Fatal(err)
	}
	before := geo.HaversineDistance(start.Lat, start.Lng, target.Lat, target.Lng)
	for i := 0; i < 3; i++ {
		clk.advance(time.Second)
		s.step(context.Background(), 1)
	}
	latest, _ := s.Latest(1)
	after := geo.HaversineDistance(latest.Lat, latest.Lng, target.Lat, target.Lng)
	if math.Abs(before-after-30) > 1 {
		t.Fatalf("moved %.1f m in 3 s at 10 m/s", before-after)
	}
	if latest.Alt <= takeoffAltM {
		t.Fatalf("drone did not climb: %v", latest.Alt)
	}
	if _, ok := s.Relations().Waypoint[1]; !ok {
		t.Fatalf("mock updates must not drop the directive")
	}
}

func TestStepHoldsAndLands(t *testing.T) {
	s, _, clk := newTestSimulator(t, 1)
	fly(t, s, 1, 20)
	key := mission.DroneKey(1)
	if _, err := s.IssueLocalCommand(key, mission.HoldPosition, false); err != nil {
		t.Fatal(err)
	}
	start, _ := s.Latest(1)
	clk.advance(time.Second)
	s.step(context.Background(), 1)
	held, _ := s.Latest(1)
	if held.Lat != start.Lat || held.Lng != start.Lng || held.Alt != 20 {
		t.Fatalf("hold moved the drone: %+v", held)
	}
	if _, err := s.IssueLocalCommand(key, mission.Land, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		clk.advance(time.Second)
		s.step(context.Background(), 1)
	}
	if landed, _ := s.Latest(1); landed.Alt != 0 || landed.InAir() {
		t.Fatalf("drone did not land: %+v", landed)
	}
}

func TestStationTrackingFailureLeavesNotice(t *testing.T) {
	s, _, _ := newTestSimulator(t, 1)
	fixes := make(chan station.Fix)
	if err := s.TrackStation(station.HQID, station.ChannelProvider{C: fixes}); err != nil {
		t.Fatal(err)
	}
	fixes <- station.Fix{Lat: 1, Lng: 2}
	close(fixes)
	deadline := time.Now().Add(time.Second)
	for len(s.Notices()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no notice after the feed closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hq := s.Stations()[0]
	if hq.Dynamic || hq.Lat != 1 {
		t.Fatalf("hq = %+v", hq)
	}
	if err := s.TrackStation(9, station.ChannelProvider{}); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("err = %v", err)
	}
}

func TestMetricsCountCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Swarm.Count = 1
	s := NewSimulator(cfg, nil, metrics)
	key := mission.DroneKey(1)
	if _, err := s.IssueLocalCommand(key, mission.Arm, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IssueLocalCommand(key, mission.Disarm, false); err != nil {
		t.Fatal(err)
	}
	_, _ = s.IssueLocalCommand(key, mission.Arm, false)
	if got := testutil.ToFloat64(metrics.CommandsIssued.WithLabelValues("Arm")); got != 1 {
		t.Fatalf("arm count = %v", got)
	}
	if got := testutil.ToFloat64(metrics.CommandsRejected.WithLabelValues("cooldown")); got != 1 {
		t.Fatalf("cooldown rejections = %v", got)
	}
}

func TestRunEmitsRowsAndState(t *testing.T) {
	cfg := config.Default()
	cfg.Swarm.Count = 2
	cfg.Feed = config.Feed{MinIntervalMs: 5, MaxIntervalMs: 10, Seed: 3}
	cfg.RefreshIntervalMs = 20
	w := &collectWriter{}
	s := NewSimulator(cfg, w, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if len(w.rows) == 0 || len(w.states) == 0 || len(w.snapshots) == 0 {
		t.Fatalf("rows=%d states=%d snapshots=%d", len(w.rows), len(w.states), len(w.snapshots))
	}
	if w.states[0].Drones != 2 || w.snapshots[0].SessionID != cfg.SessionID {
		t.Fatalf("state = %+v", w.states[0])
	}
}
