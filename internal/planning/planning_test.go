package planning

import (
	"errors"
	"math"
	"testing"
	"time"

	"swarm-gcs/internal/geo"
)

func TestOrbitSpeed(t *testing.T) {
	got := OrbitSpeedKmh(500, 300)
	if math.Abs(got-37.699) > 0.01 {
		t.Fatalf("speed = %f km/h, want ~37.7", got)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"radius zero", ClampRadius(0), 10},
		{"radius negative", ClampRadius(-5), 10},
		{"radius high", ClampRadius(5000), 1000},
		{"radius ok", ClampRadius(250), 250},
		{"radius NaN", ClampRadius(math.NaN()), 10},
		{"diameter low", ClampDiameter(20), 100},
		{"diameter high", ClampDiameter(9000), 2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestSolveOrbitEntry(t *testing.T) {
	center := geo.LatLng{Lat: 48.2, Lng: 16.4}
	from := geo.DestinationPoint(center.Lat, center.Lng, 0, 2000)
	p := SolveOrbit(center, 500, 300, CCW, from)

	if d := geo.Distance(center, p.Entry); math.Abs(d-500) > 1 {
		t.Fatalf("entry radius = %f, want 500", d)
	}
	if math.Abs(p.StraightM-1500) > 1 {
		t.Fatalf("straight = %f, want 1500", p.StraightM)
	}
	if b := geo.Bearing(center.Lat, center.Lng, p.Entry.Lat, p.Entry.Lng); geo.HeadingDifference(b, 0) > 0.5 {
		t.Fatalf("entry bearing = %f, want north", b)
	}
	if math.Abs(p.SpeedMps*3.6-OrbitSpeedKmh(500, 300)) > 1e-9 {
		t.Fatalf("speed mismatch")
	}
	eta, ok := p.ETA(15)
	if !ok || eta != 100*time.Second {
		t.Fatalf("eta = %v, %v", eta, ok)
	}
	if _, ok := p.ETA(0); ok {
		t.Fatalf("eta with zero speed should be undefined")
	}
}

func TestSolveOrbitDegenerate(t *testing.T) {
	center := geo.LatLng{Lat: 10, Lng: 10}
	p := SolveOrbit(center, 0, 0, "", center)
	if p.RadiusM != MinRadiusM || p.Direction != CW {
		t.Fatalf("plan = %+v", p)
	}
	if math.IsNaN(p.Entry.Lat) || math.IsNaN(p.Entry.Lng) || math.IsInf(p.SpeedMps, 0) {
		t.Fatalf("degenerate orbit produced NaN/Inf: %+v", p)
	}
	if b := geo.Bearing(center.Lat, center.Lng, p.Entry.Lat, p.Entry.Lng); geo.HeadingDifference(b, 90) > 0.5 {
		t.Fatalf("fallback entry bearing = %f, want east", b)
	}
}

func TestOrbitPathAndCarrot(t *testing.T) {
	center := geo.LatLng{Lat: 0, Lng: 0}
	p := SolveOrbit(center, 300, 120, CW, geo.DestinationPoint(0, 0, 90, 1000))
	path := p.Path(36)
	if len(path) != 37 {
		t.Fatalf("path len = %d", len(path))
	}
	for _, pt := range path {
		if d := geo.Distance(center, pt); math.Abs(d-300) > 1 {
			t.Fatalf("path point off circle: %f", d)
		}
	}
	// Far from the circle the carrot is the nearest circle point.
	far := geo.DestinationPoint(0, 0, 90, 1000)
	if d := geo.Distance(p.Carrot(far, 50), p.Entry); d > 1 {
		t.Fatalf("carrot far = %f m from entry", d)
	}
	// On the circle at east, CW travel heads south.
	onCircle := geo.DestinationPoint(0, 0, 90, 300)
	c := p.Carrot(onCircle, 50)
	if b := geo.Bearing(onCircle.Lat, onCircle.Lng, c.Lat, c.Lng); geo.HeadingDifference(b, 180) > 10 {
		t.Fatalf("CW carrot bearing = %f, want ~180", b)
	}
}

func TestSolveFlankNorthApproachEast(t *testing.T) {
	target := geo.LatLng{Lat: 0, Lng: 0}
	from := geo.DestinationPoint(0, 0, 0, 2000)
	p := SolveFlank(FlankInput{Target: target, BearingDeg: 90, DiameterM: 1000, From: from})

	if p.RadiusM != 500 {
		t.Fatalf("radius = %f, want 500", p.RadiusM)
	}
	if geo.HeadingDifference(p.TangentBearing, 90) > 1 {
		t.Fatalf("tangent bearing = %f, want ~90", p.TangentBearing)
	}
	if p.ArcM >= 2*math.Pi*500 {
		t.Fatalf("arc = %f, want less than circumference", p.ArcM)
	}
	if p.Direction != CW {
		t.Fatalf("direction = %s, want CW", p.Direction)
	}
	if math.Abs(p.TotalM-2000) > 1 {
		t.Fatalf("total = %f, want ~2000", p.TotalM)
	}
	// Center lies south of the target.
	if b := geo.Bearing(0, 0, p.Center.Lat, p.Center.Lng); geo.HeadingDifference(b, 180) > 0.5 {
		t.Fatalf("center bearing = %f, want 180", b)
	}
}

func TestFlankOptions(t *testing.T) {
	target := geo.LatLng{Lat: 48.2, Lng: 16.4}
	from := geo.DestinationPoint(target.Lat, target.Lng, 220, 3000)
	opts := FlankOptions(FlankInput{Target: target, BearingDeg: 45, DiameterM: 800, From: from})
	if len(opts) != 4 {
		t.Fatalf("options = %d, want 4", len(opts))
	}
	consistent := 0
	for i, o := range opts {
		if o.ArcM < 0 || o.ArcM >= 2*math.Pi*o.RadiusM {
			t.Fatalf("option %d arc = %f", i, o.ArcM)
		}
		if math.Abs(o.TotalM-(o.StraightM+o.ArcM)) > 1e-9 {
			t.Fatalf("option %d total mismatch", i)
		}
		if o.HeadingErrorDeg < 1 {
			consistent++
		}
		if i > 0 && o.HeadingErrorDeg+headingEpsilon < opts[i-1].HeadingErrorDeg {
			t.Fatalf("options not sorted by heading error")
		}
	}
	if consistent != 2 {
		t.Fatalf("consistent options = %d, want 2", consistent)
	}
	if opts[1].HeadingErrorDeg < 1 && opts[0].TotalM > opts[1].TotalM {
		t.Fatalf("tie not broken by distance: %f > %f", opts[0].TotalM, opts[1].TotalM)
	}
	eta, ok := opts[0].ETA(10)
	if !ok || math.Abs(eta.Seconds()-opts[0].TotalM/10) > 1e-6 {
		t.Fatalf("eta = %v", eta)
	}
}

func TestFlankPathEndsAtTarget(t *testing.T) {
	target := geo.LatLng{Lat: 30, Lng: -90}
	from := geo.DestinationPoint(target.Lat, target.Lng, 100, 2500)
	p := SolveFlank(FlankInput{Target: target, BearingDeg: 0, DiameterM: 600, From: from})
	path := p.Path(20)
	if d := geo.Distance(path[0], p.Entry); d > 1 {
		t.Fatalf("path starts %f m from entry", d)
	}
	if d := geo.Distance(path[len(path)-1], target); d > 1 {
		t.Fatalf("path ends %f m from target", d)
	}
	if got := p.Carrot(target, 20); got != target {
		t.Fatalf("carrot at target = %+v", got)
	}
	if got := p.Carrot(from, 20); got != p.Entry {
		t.Fatalf("carrot from start = %+v, want entry", got)
	}
}

type mapResolver map[Anchor]geo.LatLng

func (m mapResolver) ResolveAnchor(a Anchor) (geo.LatLng, bool) {
	ll, ok := m[a]
	return ll, ok
}

func TestResolve(t *testing.T) {
	r := mapResolver{{Kind: AnchorWaypoint, ID: 3}: {Lat: 1, Lng: 2}}
	ll, err := Resolve(r, Anchor{Kind: AnchorWaypoint, ID: 3})
	if err != nil || ll.Lat != 1 {
		t.Fatalf("resolve = %+v, %v", ll, err)
	}
	if _, err := Resolve(r, Anchor{Kind: AnchorDrone, ID: 3}); !errors.Is(err, ErrUnresolvedAnchor) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Resolve(r, Anchor{Kind: "moon", ID: 1}); !errors.Is(err, ErrUnresolvedAnchor) {
		t.Fatalf("err = %v", err)
	}
}

func TestSweep(t *testing.T) {
	cases := []struct {
		a0, a1 float64
		dir    Direction
		want   float64
	}{
		{0, math.Pi / 2, CCW, math.Pi / 2},
		{0, math.Pi / 2, CW, 3 * math.Pi / 2},
		{1, 1, CW, 0},
		{1, 1, CCW, 0},
		{-math.Pi / 2, math.Pi / 2, CCW, math.Pi},
	}
	for _, tc := range cases {
		if got := sweep(tc.a0, tc.a1, tc.dir); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("sweep(%v,%v,%s) = %v, want %v", tc.a0, tc.a1, tc.dir, got, tc.want)
		}
	}
}
