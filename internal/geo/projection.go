package geo

import "math"

// Point is a screen coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Projector converts between geographic and screen coordinates. The map
// view owns the implementation; the core only consumes it.
type Projector interface {
	Project(lat, lng float64) Point
	Unproject(p Point) LatLng
}

// MetersToPixelsAt converts a metric distance at (lat, lon) into on-screen
// pixels by projecting two points meters apart along due east.
func MetersToPixelsAt(lat, lon, meters float64, p Projector) float64 {
	if p == nil || meters == 0 {
		return 0
	}
	a := p.Project(lat, lon)
	dest := DestinationPoint(lat, lon, 90, math.Abs(meters))
	b := p.Project(dest.Lat, dest.Lng)
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

const (
	tileSize       = 256
	maxMercatorLat = 85.05112878
)

// WebMercator is a spherical mercator projection with 256 px tiles.
type WebMercator struct {
	Zoom float64
}

func (m WebMercator) scale() float64 {
	return tileSize * math.Pow(2, m.Zoom)
}

// Project implements Projector.
func (m WebMercator) Project(lat, lng float64) Point {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	s := m.scale()
	sinLat := math.Sin(radians(lat))
	x := (lng + 180) / 360 * s
	y := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * s
	return Point{X: x, Y: y}
}

// Unproject implements Projector.
func (m WebMercator) Unproject(p Point) LatLng {
	s := m.scale()
	lng := p.X/s*360 - 180
	n := math.Pi - 2*math.Pi*p.Y/s
	lat := degrees(math.Atan(math.Sinh(n)))
	return LatLng{Lat: lat, Lng: lng}
}

// Vec is an east/north offset in meters on a local plane.
type Vec struct {
	X float64
	Y float64
}

// Len returns the vector length.
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }

// Sub returns v - o.
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }

// Add returns v + o.
func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }

// Scale returns v * k.
func (v Vec) Scale(k float64) Vec { return Vec{v.X * k, v.Y * k} }

// Plane is an equirectangular projection centred on an origin. It is only
// accurate over a few kilometers.
type Plane struct {
	Origin LatLng
	cosLat float64
}

// NewPlane returns a local plane around origin.
func NewPlane(origin LatLng) Plane {
	c := math.Cos(radians(origin.Lat))
	if c < 1e-9 {
		c = 1e-9
	}
	return Plane{Origin: origin, cosLat: c}
}

// ToLocal converts a coordinate to meters east (X) and north (Y) of the origin.
func (p Plane) ToLocal(ll LatLng) Vec {
	return Vec{
		X: (ll.Lng - p.Origin.Lng) * metersPerDegree * p.cosLat,
		Y: (ll.Lat - p.Origin.Lat) * metersPerDegree,
	}
}

// ToLatLng converts a local offset back to a coordinate.
func (p Plane) ToLatLng(v Vec) LatLng {
	return LatLng{
		Lat: p.Origin.Lat + v.Y/metersPerDegree,
		Lng: p.Origin.Lng + v.X/(metersPerDegree*p.cosLat),
	}
}

// BearingOf returns the compass bearing of a local direction vector, with
// 0 = north (+Y) and clockwise positive.
func BearingOf(v Vec) float64 {
	// atan2(x, y) measures from +y clockwise.
	return NormalizeHeading(degrees(math.Atan2(v.X, v.Y)))
}

// UnitFromBearing returns the local unit vector pointing along bearingDeg.
func UnitFromBearing(bearingDeg float64) Vec {
	r := radians(bearingDeg)
	return Vec{X: math.Sin(r), Y: math.Cos(r)}
}
