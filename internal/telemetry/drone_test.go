package telemetry

import (
	"math"
	"testing"
	"time"

	"swarm-gcs/internal/geo"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestHistoryBounded(t *testing.T) {
	d := NewDrone(1, Config{HistoryLimit: 5})
	for i := 0; i < 12; i++ {
		d.UpdateTelemetry(Sample{UptimeSec: float64(i), Battery: 100}, t0)
	}
	if d.Len() != 5 {
		t.Fatalf("len = %d, want 5", d.Len())
	}
	h := d.History()
	if h[0].UptimeSec != 7 || h[4].UptimeSec != 11 {
		t.Fatalf("history = %v..%v, want 7..11", h[0].UptimeSec, h[4].UptimeSec)
	}
	latest, _ := d.Latest()
	if latest.UptimeSec != 11 {
		t.Fatalf("latest = %v, want 11", latest.UptimeSec)
	}
}

func TestUpdateTelemetryCarryOver(t *testing.T) {
	d := NewDrone(1, Config{})
	if changed := d.UpdateTelemetry(Sample{Command: "Arm", Armed: Bool(true)}, t0); changed {
		t.Fatalf("first sample reported a command change")
	}
	if changed := d.UpdateTelemetry(Sample{UptimeSec: 1}, t0); changed {
		t.Fatalf("omitted command reported a change")
	}
	s, _ := d.Latest()
	if !s.IsArmed() || s.Command != "Arm" {
		t.Fatalf("carry-over failed: %+v", s)
	}
	if changed := d.UpdateTelemetry(Sample{UptimeSec: 2, Command: "Takeoff"}, t0); !changed {
		t.Fatalf("expected command change")
	}
}

func TestRescuePhaseNotCarriedOver(t *testing.T) {
	cases := []struct {
		name      string
		first     Sample
		next      Sample
		wantInAir bool
	}{
		{"landed then high", Sample{Alt: 0, RescuePhase: PhaseLanded}, Sample{Alt: 50}, true},
		{"enroute then grounded", Sample{Alt: 30, RescuePhase: "enroute"}, Sample{Alt: 0}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := NewDrone(1, Config{})
			d.UpdateTelemetry(c.first, t0)
			d.UpdateTelemetry(c.next, t0.Add(time.Second))
			s, _ := d.Latest()
			if s.RescuePhase != "" {
				t.Fatalf("phase = %q, want none", s.RescuePhase)
			}
			if got := s.InAir(); got != c.wantInAir {
				t.Fatalf("InAir() = %v, want %v at alt %v", got, c.wantInAir, s.Alt)
			}
		})
	}
}

func TestUpdateTelemetryDefaultsDisarmed(t *testing.T) {
	d := NewDrone(1, Config{})
	d.UpdateTelemetry(Sample{}, t0)
	if d.IsArmed() {
		t.Fatalf("first sample without armed flag should be disarmed")
	}
}

func TestAmendDoesNotAliasArmed(t *testing.T) {
	armed := Bool(false)
	d := NewDrone(1, Config{})
	d.UpdateTelemetry(Sample{Armed: armed}, t0)
	*armed = true
	if d.IsArmed() {
		t.Fatalf("stored sample aliases caller's pointer")
	}
	if !d.Amend(func(s *Sample) { s.Armed = Bool(true) }) {
		t.Fatalf("amend failed")
	}
	if !d.IsArmed() {
		t.Fatalf("amend not applied")
	}
	if NewDrone(2, Config{}).Amend(func(*Sample) {}) {
		t.Fatalf("amend on empty drone should fail")
	}
}

func TestBatteryRatePerMinute(t *testing.T) {
	d := NewDrone(1, Config{})
	for i := 0; i < 10; i++ {
		d.UpdateTelemetry(Sample{
			UptimeSec: float64(i) * 600 / 9,
			Battery:   100 - 30*float64(i)/9,
		}, t0)
	}
	rate, ok := d.BatteryRatePerMinute(600)
	if !ok {
		t.Fatalf("rate undefined")
	}
	if math.Abs(rate-3.0) > 1e-6 {
		t.Fatalf("rate = %f, want 3.0", rate)
	}
	eta, ok := d.EstimatedTimeRemainingMinutes(600)
	if !ok || math.Abs(eta-70.0/3.0) > 1e-6 {
		t.Fatalf("eta = %f, %v", eta, ok)
	}
}

func TestBatteryRateUndefined(t *testing.T) {
	cases := []struct {
		name    string
		battery []float64
		uptime  []float64
	}{
		{"flat", []float64{80, 80, 80, 80}, []float64{0, 10, 20, 30}},
		{"charging", []float64{70, 75, 80, 85}, []float64{0, 10, 20, 30}},
		{"too few samples", []float64{80, 70}, []float64{0, 10}},
		{"uptime goes backwards", []float64{80, 78, 76, 74}, []float64{0, 30, 10, 40}},
		{"zero time span", []float64{80, 70, 60}, []float64{5, 5, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDrone(1, Config{})
			for i := range tc.battery {
				d.UpdateTelemetry(Sample{UptimeSec: tc.uptime[i], Battery: tc.battery[i]}, t0)
			}
			if rate, ok := d.BatteryRatePerMinute(600); ok {
				t.Fatalf("rate = %f, want undefined", rate)
			}
			if _, ok := d.EstimatedTimeRemainingMinutes(600); ok {
				t.Fatalf("eta should be undefined")
			}
		})
	}
}

func TestBatteryRateWindow(t *testing.T) {
	d := NewDrone(1, Config{})
	// An old steep drop falls outside the window.
	d.UpdateTelemetry(Sample{UptimeSec: 0, Battery: 100}, t0)
	d.UpdateTelemetry(Sample{UptimeSec: 1000, Battery: 50}, t0)
	d.UpdateTelemetry(Sample{UptimeSec: 1030, Battery: 49}, t0)
	d.UpdateTelemetry(Sample{UptimeSec: 1060, Battery: 48}, t0)
	rate, ok := d.BatteryRatePerMinute(120)
	if !ok || math.Abs(rate-2.0) > 1e-9 {
		t.Fatalf("rate = %f, %v; want 2.0", rate, ok)
	}
}

func TestStaleness(t *testing.T) {
	d := NewDrone(1, Config{})
	if d.IsStale(t0, 3*time.Second) {
		t.Fatalf("drone without telemetry must not be stale")
	}
	if _, ok := d.SecondsSinceLastUpdate(t0); ok {
		t.Fatalf("age should be undefined before first update")
	}
	d.UpdateTelemetry(Sample{}, t0)
	if d.IsStale(t0.Add(2900*time.Millisecond), 3*time.Second) {
		t.Fatalf("stale at 2.9s")
	}
	if !d.IsStale(t0.Add(3100*time.Millisecond), 3*time.Second) {
		t.Fatalf("not stale at 3.1s")
	}
	age, ok := d.SecondsSinceLastUpdate(t0.Add(1500 * time.Millisecond))
	if !ok || age != 1.5 {
		t.Fatalf("age = %v, %v", age, ok)
	}
}

func TestCooldownMonotonic(t *testing.T) {
	d := NewDrone(1, Config{})
	d.SetCooldown(5*time.Second, t0)
	d.SetCooldown(1*time.Second, t0)
	if got := d.CooldownRemaining(t0); got != 5*time.Second {
		t.Fatalf("remaining = %v, want 5s", got)
	}
	d.SetCooldown(10*time.Second, t0)
	if got := d.CooldownRemaining(t0.Add(2 * time.Second)); got != 8*time.Second {
		t.Fatalf("remaining = %v, want 8s", got)
	}
	if got := d.CooldownRemaining(t0.Add(time.Minute)); got != 0 {
		t.Fatalf("remaining = %v, want 0", got)
	}
}

func TestGroundSpeed(t *testing.T) {
	d := NewDrone(1, Config{})
	if _, ok := d.GroundSpeedMps(); ok {
		t.Fatalf("speed defined without samples")
	}
	p := geo.DestinationPoint(48, 16, 45, 100)
	d.UpdateTelemetry(Sample{UptimeSec: 10, Lat: 48, Lng: 16}, t0)
	d.UpdateTelemetry(Sample{UptimeSec: 20, Lat: p.Lat, Lng: p.Lng}, t0)
	// A duplicate uptime is skipped in favour of the earlier sample.
	d.UpdateTelemetry(Sample{UptimeSec: 20, Lat: p.Lat, Lng: p.Lng}, t0)
	v, ok := d.GroundSpeedMps()
	if !ok || math.Abs(v-10) > 1e-6 {
		t.Fatalf("speed = %f, %v; want 10", v, ok)
	}
}

func TestInAir(t *testing.T) {
	cases := []struct {
		name string
		s    Sample
		want bool
	}{
		{"ground", Sample{Alt: 1}, false},
		{"flying", Sample{Alt: 30}, true},
		{"rescue enroute low", Sample{Alt: 0, RescuePhase: "enroute"}, true},
		{"rescue landed high", Sample{Alt: 40, RescuePhase: PhaseLanded}, false},
		{"rescue complete", Sample{Alt: 40, RescuePhase: PhaseComplete}, false},
		{"rescue aborted", Sample{Alt: 40, RescuePhase: PhaseAborted}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDrone(1, Config{})
			d.UpdateTelemetry(tc.s, t0)
			if d.InAir() != tc.want {
				t.Fatalf("InAir = %v, want %v", d.InAir(), tc.want)
			}
			if d.IsLanded() == tc.want {
				t.Fatalf("IsLanded should negate InAir")
			}
		})
	}
}
