package planning

import (
	"math"
	"sort"
	"time"

	"swarm-gcs/internal/geo"
)

// FlankInput describes a flanking approach: pass Target on BearingDeg after
// joining a circle of DiameterM from From.
type FlankInput struct {
	Target     geo.LatLng
	BearingDeg float64
	DiameterM  float64
	From       geo.LatLng
}

// FlankPlan is one candidate approach. Angles are plane angles in radians
// around Center; StartAngle is the entry and EndAngle the target.
type FlankPlan struct {
	Target          geo.LatLng `json:"target"`
	Center          geo.LatLng `json:"center"`
	RadiusM         float64    `json:"radius_m"`
	Direction       Direction  `json:"direction"`
	Entry           geo.LatLng `json:"entry"`
	StartAngle      float64    `json:"start_angle"`
	EndAngle        float64    `json:"end_angle"`
	StraightM       float64    `json:"straight_m"`
	ArcM            float64    `json:"arc_m"`
	TotalM          float64    `json:"total_m"`
	BearingDeg      float64    `json:"bearing_deg"`
	TangentBearing  float64    `json:"tangent_bearing"`
	HeadingErrorDeg float64    `json:"heading_error_deg"`
}

// headingEpsilon treats heading errors this close as equal so distance
// decides between them.
const headingEpsilon = 1e-6

// FlankOptions evaluates both candidate centers in both directions, best
// first.
func FlankOptions(in FlankInput) []FlankPlan {
	r := ClampDiameter(in.DiameterM) / 2
	plane := geo.NewPlane(in.Target)
	from := plane.ToLocal(in.From)
	theta := geo.NormalizeHeading(in.BearingDeg)
	rad := theta * math.Pi / 180
	right := geo.Vec{X: math.Cos(rad), Y: -math.Sin(rad)}

	opts := make([]FlankPlan, 0, 4)
	for _, center := range []geo.Vec{right.Scale(r), right.Scale(-r)} {
		c := circle{plane: plane, center: center, r: r}
		entry := c.nearest(from)
		a0 := c.angleOf(entry)
		a1 := c.angleOf(geo.Vec{})
		straight := from.Sub(entry).Len()
		for _, dir := range []Direction{CW, CCW} {
			arc := sweep(a0, a1, dir) * r
			tb := c.tangentBearing(a1, dir)
			opts = append(opts, FlankPlan{
				Target:          in.Target,
				Center:          plane.ToLatLng(center),
				RadiusM:         r,
				Direction:       dir,
				Entry:           plane.ToLatLng(entry),
				StartAngle:      a0,
				EndAngle:        a1,
				StraightM:       straight,
				ArcM:            arc,
				TotalM:          straight + arc,
				BearingDeg:      theta,
				TangentBearing:  tb,
				HeadingErrorDeg: geo.HeadingDifference(tb, theta),
			})
		}
	}
	sort.SliceStable(opts, func(i, j int) bool {
		ei, ej := opts[i].HeadingErrorDeg, opts[j].HeadingErrorDeg
		if math.Abs(ei-ej) > headingEpsilon {
			return ei < ej
		}
		return opts[i].TotalM < opts[j].TotalM
	})
	return opts
}

// SolveFlank returns the best-scoring approach.
func SolveFlank(in FlankInput) FlankPlan {
	return FlankOptions(in)[0]
}

func (p FlankPlan) circle() circle {
	plane := geo.NewPlane(p.Target)
	return circle{plane: plane, center: plane.ToLocal(p.Center), r: p.RadiusM}
}

// Path samples the arc from the entry point to the target in n segments.
func (p FlankPlan) Path(n int) []geo.LatLng {
	return p.circle().path(p.StartAngle, p.ArcM/p.RadiusM, p.Direction, n)
}

// ETA is the time to fly the straight leg plus the arc at speedMps.
func (p FlankPlan) ETA(speedMps float64) (time.Duration, bool) {
	return eta(p.TotalM, speedMps)
}

// Carrot returns the steering point for a drone at pos. It leads to the
// entry, then along the arc, and finally to the target itself.
func (p FlankPlan) Carrot(pos geo.LatLng, leadM float64) geo.LatLng {
	c := p.circle()
	local := c.plane.ToLocal(pos)
	if local.Len() <= leadM {
		return p.Target
	}
	if c.offCircle(local) > leadM {
		return p.Entry
	}
	here := c.angleOf(local)
	if sweep(here, p.EndAngle, p.Direction)*c.r <= leadM {
		return p.Target
	}
	return c.plane.ToLatLng(c.at(here + p.Direction.sign()*leadM/c.r))
}
