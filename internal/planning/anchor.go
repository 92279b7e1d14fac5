// Package planning solves orbit and flank trajectories around an anchor.
//
// All circle geometry runs on a local equirectangular plane (see geo.Plane)
// where angles are measured counter-clockwise from east, so CCW travel
// increases the angle.
package planning

import (
	"errors"
	"fmt"
	"math"

	"swarm-gcs/internal/geo"
)

// ErrUnresolvedAnchor is returned when an anchor no longer points at a
// known entity.
var ErrUnresolvedAnchor = errors.New("anchor cannot be resolved")

// AnchorKind names what an anchor refers to.
type AnchorKind string

const (
	AnchorWaypoint AnchorKind = "wp"
	AnchorStation  AnchorKind = "home"
	AnchorDrone    AnchorKind = "drone"
)

// Anchor identifies a point to orbit or flank. A drone anchor follows the
// drone's live position.
type Anchor struct {
	Kind AnchorKind `json:"kind"`
	ID   int        `json:"id"`
}

func (a Anchor) String() string {
	return fmt.Sprintf("%s#%d", a.Kind, a.ID)
}

// Resolver maps anchors to coordinates. Implementations switch on Kind and
// report false for unknown ids.
type Resolver interface {
	ResolveAnchor(a Anchor) (geo.LatLng, bool)
}

// Resolve looks the anchor up through r.
func Resolve(r Resolver, a Anchor) (geo.LatLng, error) {
	switch a.Kind {
	case AnchorWaypoint, AnchorStation, AnchorDrone:
	default:
		return geo.LatLng{}, fmt.Errorf("anchor kind %q: %w", a.Kind, ErrUnresolvedAnchor)
	}
	ll, ok := r.ResolveAnchor(a)
	if !ok {
		return geo.LatLng{}, fmt.Errorf("%s: %w", a, ErrUnresolvedAnchor)
	}
	return ll, nil
}

// Direction is the rotational sense of travel on a circle.
type Direction string

const (
	CW  Direction = "CW"
	CCW Direction = "CCW"
)

// Valid reports whether d is CW or CCW.
func (d Direction) Valid() bool { return d == CW || d == CCW }

// sign is +1 for CCW and -1 for CW in plane angles.
func (d Direction) sign() float64 {
	if d == CW {
		return -1
	}
	return 1
}

// UI limits for circle sizes.
const (
	MinRadiusM   = 10.0
	MaxRadiusM   = 1000.0
	MinDiameterM = 100.0
	MaxDiameterM = 2000.0
)

// ClampRadius limits an orbit radius to [MinRadiusM, MaxRadiusM].
func ClampRadius(r float64) float64 {
	return clamp(r, MinRadiusM, MaxRadiusM)
}

// ClampDiameter limits a flank diameter to [MinDiameterM, MaxDiameterM].
func ClampDiameter(d float64) float64 {
	return clamp(d, MinDiameterM, MaxDiameterM)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
