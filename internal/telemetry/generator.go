package telemetry

import (
	"math"
	"math/rand"
	"time"

	"swarm-gcs/internal/geo"
)

// Steer tells the generator where the vehicle is being flown. A nil Steer
// lets an airborne drone drift.
type Steer struct {
	Target   *geo.LatLng
	SpeedMps float64
	AltM     float64
	Land     bool
	Hold     bool
}

const (
	climbRateMps   = 2.0
	descentRateMps = 1.5
	arriveRadiusM  = 5.0
	drainPerSecond = 0.05 // percent, about 3 %/min in flight
	idleDrain      = 0.002
)

// Generator produces the next synthetic sample for a drone.
type Generator struct {
	rand *rand.Rand
}

// NewGenerator creates a generator using r for noise. A nil r seeds from
// the current time.
func NewGenerator(r *rand.Rand) *Generator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rand: r}
}

// Next advances prev by dt. The command label and rescue phase are left to
// the caller.
func (g *Generator) Next(prev Sample, dt time.Duration, steer *Steer) Sample {
	sec := dt.Seconds()
	next := prev
	next.UptimeSec = prev.UptimeSec + sec
	next.RSSI = Float(-55 - g.rand.Float64()*25)
	if prev.Armed != nil {
		next.Armed = Bool(*prev.Armed)
	}

	if !prev.IsArmed() {
		next.Battery = math.Max(0, prev.Battery-idleDrain*sec)
		return next
	}

	switch {
	case steer == nil && prev.Alt > inAirAltitudeM:
		next = g.drift(next, sec)
	case steer != nil && steer.Hold:
		next.Alt = approach(prev.Alt, steer.AltM, climbRateMps*sec)
	case steer != nil:
		next = g.fly(next, sec, steer)
	}

	drain := idleDrain
	if next.InAir() {
		drain = drainPerSecond * (1 + g.rand.Float64()*0.2)
	}
	next.Battery = math.Max(0, prev.Battery-drain*sec)
	return next
}

func (g *Generator) fly(s Sample, sec float64, steer *Steer) Sample {
	if steer.Target == nil {
		if steer.Land {
			s.Alt = math.Max(0, s.Alt-descentRateMps*sec)
		} else {
			s.Alt = approach(s.Alt, steer.AltM, climbRateMps*sec)
		}
		return s
	}
	dist := geo.HaversineDistance(s.Lat, s.Lng, steer.Target.Lat, steer.Target.Lng)
	if dist > arriveRadiusM {
		heading := geo.Bearing(s.Lat, s.Lng, steer.Target.Lat, steer.Target.Lng)
		step := math.Min(dist, steer.SpeedMps*sec)
		pos := geo.DestinationPoint(s.Lat, s.Lng, heading, step)
		s.Lat, s.Lng, s.Heading = pos.Lat, pos.Lng, heading
		dist -= step
	}
	if steer.Land && dist <= arriveRadiusM {
		s.Alt = math.Max(0, s.Alt-descentRateMps*sec)
		return s
	}
	if steer.AltM > 0 {
		s.Alt = approach(s.Alt, steer.AltM, climbRateMps*sec)
	}
	return s
}

// drift is a slow random walk for a vehicle with no active intent.
func (g *Generator) drift(s Sample, sec float64) Sample {
	heading := g.rand.Float64() * 360
	speed := g.rand.Float64() // m/s
	pos := geo.DestinationPoint(s.Lat, s.Lng, heading, speed*sec)
	s.Lat, s.Lng = pos.Lat, pos.Lng
	s.Alt = math.Max(0, s.Alt+g.rand.Float64()*0.6-0.3)
	return s
}

func approach(cur, target, maxStep float64) float64 {
	switch {
	case target > cur:
		return math.Min(target, cur+maxStep)
	case target < cur:
		return math.Max(target, cur-maxStep)
	}
	return cur
}
