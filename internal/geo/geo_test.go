package geo

import (
	"math"
	"testing"
)

func TestHaversineDistance(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tol              float64
	}{
		{"identical", 48.2, 16.4, 48.2, 16.4, 0, 0},
		{"one degree latitude", 0, 0, 1, 0, 111194.9, 1},
		{"one degree longitude at equator", 0, 0, 0, 1, 111194.9, 1},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusM, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HaversineDistance(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.IsNaN(got) {
				t.Fatalf("distance is NaN")
			}
			if math.Abs(got-tc.want) > tc.tol {
				t.Fatalf("distance = %f, want %f", got, tc.want)
			}
			back := HaversineDistance(tc.lat2, tc.lon2, tc.lat1, tc.lon1)
			if math.Abs(back-got) > 1e-6 {
				t.Fatalf("distance not symmetric: %f vs %f", got, back)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"north", 0, 0, 1, 0, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Bearing(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if HeadingDifference(got, tc.want) > 1e-6 {
				t.Fatalf("bearing = %f, want %f", got, tc.want)
			}
			if got < 0 || got >= 360 {
				t.Fatalf("bearing %f out of range", got)
			}
		})
	}
	if b := Bearing(10, 10, 10, 10); math.IsNaN(b) {
		t.Fatalf("bearing of identical points is NaN")
	}
}

func TestDestinationPointRoundTrip(t *testing.T) {
	for _, brg := range []float64{0, 45, 90, 180, 270, 359} {
		dest := DestinationPoint(48.2, 16.4, brg, 2500)
		d := HaversineDistance(48.2, 16.4, dest.Lat, dest.Lng)
		if math.Abs(d-2500) > 0.01 {
			t.Fatalf("bearing %v: distance = %f, want 2500", brg, d)
		}
		back := Bearing(48.2, 16.4, dest.Lat, dest.Lng)
		if HeadingDifference(back, brg) > 0.01 {
			t.Fatalf("bearing %v: got %f back", brg, back)
		}
	}
	same := DestinationPoint(1, 2, 123, 0)
	if same.Lat != 1 || math.Abs(same.Lng-2) > 1e-12 {
		t.Fatalf("zero distance moved the point: %+v", same)
	}
}

func TestHeadingDifference(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{10, 350, 20},
		{350, 10, 20},
		{0, 180, 180},
		{90, 90, 0},
		{-90, 270, 0},
	}
	for _, tc := range cases {
		if got := HeadingDifference(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("HeadingDifference(%v,%v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMetersToPixelsAt(t *testing.T) {
	m := WebMercator{Zoom: 15}
	px := MetersToPixelsAt(0, 0, 1000, m)
	// At the equator one pixel at z15 covers ~4.777 m.
	want := 1000 / (2 * math.Pi * 6378137 / (256 * math.Pow(2, 15)))
	if math.Abs(px-want)/want > 0.01 {
		t.Fatalf("pixels = %f, want ~%f", px, want)
	}
	if MetersToPixelsAt(0, 0, 0, m) != 0 {
		t.Fatalf("zero meters should be zero pixels")
	}
	zoomed := MetersToPixelsAt(0, 0, 1000, WebMercator{Zoom: 16})
	if math.Abs(zoomed-2*px) > 0.01 {
		t.Fatalf("one zoom level should double pixels: %f vs %f", zoomed, px)
	}
}

func TestWebMercatorUnproject(t *testing.T) {
	m := WebMercator{Zoom: 12}
	p := m.Project(48.2082, 16.3738)
	ll := m.Unproject(p)
	if math.Abs(ll.Lat-48.2082) > 1e-9 || math.Abs(ll.Lng-16.3738) > 1e-9 {
		t.Fatalf("round trip = %+v", ll)
	}
}

func TestPlaneRoundTrip(t *testing.T) {
	pl := NewPlane(LatLng{Lat: 48.2, Lng: 16.4})
	target := DestinationPoint(48.2, 16.4, 90, 1000)
	v := pl.ToLocal(target)
	if math.Abs(v.X-1000) > 1 || math.Abs(v.Y) > 1 {
		t.Fatalf("local = %+v, want ~(1000,0)", v)
	}
	back := pl.ToLatLng(v)
	if math.Abs(back.Lat-target.Lat) > 1e-9 || math.Abs(back.Lng-target.Lng) > 1e-9 {
		t.Fatalf("round trip = %+v, want %+v", back, target)
	}
	if b := BearingOf(Vec{X: 1, Y: 0}); math.Abs(b-90) > 1e-9 {
		t.Fatalf("BearingOf east = %v", b)
	}
	u := UnitFromBearing(180)
	if math.Abs(u.X) > 1e-9 || math.Abs(u.Y+1) > 1e-9 {
		t.Fatalf("UnitFromBearing(180) = %+v", u)
	}
}
