package planning

import (
	"math"
	"time"

	"swarm-gcs/internal/geo"
)

const twoPi = 2 * math.Pi

// circle is a loiter circle on a local plane.
type circle struct {
	plane  geo.Plane
	center geo.Vec
	r      float64
}

func (c circle) angleOf(p geo.Vec) float64 {
	d := p.Sub(c.center)
	return math.Atan2(d.Y, d.X)
}

func (c circle) at(angle float64) geo.Vec {
	return c.center.Add(geo.Vec{X: math.Cos(angle) * c.r, Y: math.Sin(angle) * c.r})
}

// nearest returns the point on the circle closest to p. A point at the
// center has no radial direction and joins due east.
func (c circle) nearest(p geo.Vec) geo.Vec {
	u := p.Sub(c.center)
	l := u.Len()
	if l < 1e-9 {
		u, l = geo.Vec{X: 1}, 1
	}
	return c.center.Add(u.Scale(c.r / l))
}

// offCircle is the radial distance between p and the circle.
func (c circle) offCircle(p geo.Vec) float64 {
	return math.Abs(p.Sub(c.center).Len() - c.r)
}

// tangentBearing is the compass heading of travel at angle.
func (c circle) tangentBearing(angle float64, dir Direction) float64 {
	w := geo.Vec{X: math.Cos(angle), Y: math.Sin(angle)}
	t := geo.Vec{X: -w.Y, Y: w.X}
	if dir == CW {
		t = geo.Vec{X: w.Y, Y: -w.X}
	}
	return geo.BearingOf(t)
}

// path samples n+1 points travelling sweep radians from start.
func (c circle) path(start, sweep float64, dir Direction, n int) []geo.LatLng {
	if n < 1 {
		n = 1
	}
	out := make([]geo.LatLng, 0, n+1)
	for i := 0; i <= n; i++ {
		a := start + dir.sign()*sweep*float64(i)/float64(n)
		out = append(out, c.plane.ToLatLng(c.at(a)))
	}
	return out
}

// normAngle reduces a to [0, 2π).
func normAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	if a >= twoPi {
		a = 0
	}
	return a
}

// sweep is the non-negative angle travelled from a0 to a1 in direction dir.
// Coincident angles give 0, never a full turn.
func sweep(a0, a1 float64, dir Direction) float64 {
	s := normAngle(a1 - a0)
	if dir == CW {
		s = normAngle(a0 - a1)
	}
	if twoPi-s < 1e-9 {
		return 0
	}
	return s
}

func eta(distanceM, speedMps float64) (time.Duration, bool) {
	if speedMps <= 0 || math.IsNaN(speedMps) || math.IsInf(speedMps, 0) {
		return 0, false
	}
	return time.Duration(distanceM / speedMps * float64(time.Second)), true
}
