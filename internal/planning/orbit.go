package planning

import (
	"math"
	"time"

	"swarm-gcs/internal/geo"
)

// minPeriodSec keeps the derived speed finite.
const minPeriodSec = 1.0

// OrbitPlan is a circular loiter. The drone flies straight to Entry, the
// point of the circle nearest to where it started.
type OrbitPlan struct {
	Center     geo.LatLng `json:"center"`
	RadiusM    float64    `json:"radius_m"`
	PeriodSec  float64    `json:"period_sec"`
	Direction  Direction  `json:"direction"`
	Entry      geo.LatLng `json:"entry"`
	EntryAngle float64    `json:"entry_angle"`
	StraightM  float64    `json:"straight_m"`
	SpeedMps   float64    `json:"speed_mps"`
}

// OrbitSpeedKmh is the ground speed needed to fly one circumference of
// radiusM every periodSec.
func OrbitSpeedKmh(radiusM, periodSec float64) float64 {
	return orbitSpeedMps(radiusM, periodSec) * 3.6
}

func orbitSpeedMps(radiusM, periodSec float64) float64 {
	return twoPi * radiusM / math.Max(periodSec, minPeriodSec)
}

// SolveOrbit plans an orbit of radiusM around center, starting from from.
// The radius is clamped to the UI limits.
func SolveOrbit(center geo.LatLng, radiusM, periodSec float64, dir Direction, from geo.LatLng) OrbitPlan {
	if !dir.Valid() {
		dir = CW
	}
	radiusM = ClampRadius(radiusM)
	periodSec = math.Max(periodSec, minPeriodSec)
	p := OrbitPlan{
		Center:    center,
		RadiusM:   radiusM,
		PeriodSec: periodSec,
		Direction: dir,
		SpeedMps:  orbitSpeedMps(radiusM, periodSec),
	}
	c := p.circle()
	local := c.plane.ToLocal(from)
	entry := c.nearest(local)
	p.Entry = c.plane.ToLatLng(entry)
	p.EntryAngle = c.angleOf(entry)
	p.StraightM = local.Sub(entry).Len()
	return p
}

func (p OrbitPlan) circle() circle {
	return circle{plane: geo.NewPlane(p.Center), r: p.RadiusM}
}

// PointAt returns the circle point at a plane angle in radians.
func (p OrbitPlan) PointAt(angle float64) geo.LatLng {
	c := p.circle()
	return c.plane.ToLatLng(c.at(angle))
}

// Path samples n segments of the full circle, starting at the entry point
// in the direction of travel.
func (p OrbitPlan) Path(n int) []geo.LatLng {
	return p.circle().path(p.EntryAngle, twoPi, p.Direction, n)
}

// ETA is the time to reach the entry point at speedMps.
func (p OrbitPlan) ETA(speedMps float64) (time.Duration, bool) {
	return eta(p.StraightM, speedMps)
}

// Carrot returns the steering point for a drone at pos: the nearest circle
// point while it is farther than leadM from the circle, then a point leadM
// ahead along the direction of travel.
func (p OrbitPlan) Carrot(pos geo.LatLng, leadM float64) geo.LatLng {
	c := p.circle()
	local := c.plane.ToLocal(pos)
	if c.offCircle(local) > leadM {
		return c.plane.ToLatLng(c.nearest(local))
	}
	a := c.angleOf(local) + p.Direction.sign()*leadM/c.r
	return c.plane.ToLatLng(c.at(a))
}
