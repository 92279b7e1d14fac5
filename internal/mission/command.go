// Package mission holds directive bookkeeping: commands and their display
// labels, the per-drone relation maps, teams, waypoints and the ledger of
// assigned and planned commands.
package mission

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"swarm-gcs/internal/planning"
)

// ErrUnknownCommand is returned by Parse for labels it cannot read.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a directive that can be issued to a drone. Its label is the
// canonical display text and the serialized form of a planned step.
type Command interface {
	Label() string
}

// Action is a state command without parameters.
type Action string

const (
	Arm          Action = "Arm"
	Disarm       Action = "Disarm"
	Takeoff      Action = "Takeoff"
	Land         Action = "Land"
	HoldPosition Action = "Hold Position"
)

// Simple is a parameterless state command.
type Simple struct {
	Action Action
}

func (c Simple) Label() string { return string(c.Action) }

// GotoWaypoint flies to a waypoint.
type GotoWaypoint struct {
	WaypointID int
	SpeedKmh   float64
	AltM       float64
}

func (c GotoWaypoint) Label() string {
	return fmt.Sprintf("Goto WP #%d (spd %s km/h, alt %s m)", c.WaypointID, num(c.SpeedKmh), num(c.AltM))
}

// HomeMode is what a drone does once it reaches its home station.
type HomeMode string

const (
	HomeLand  HomeMode = "land"
	HomeHover HomeMode = "hover"
)

// ReturnHome flies to a ground station.
type ReturnHome struct {
	StationID int
	Mode      HomeMode
}

func (c ReturnHome) Label() string {
	mode := c.Mode
	if mode == "" {
		mode = HomeLand
	}
	return fmt.Sprintf("Return home #%d (%s)", c.StationID, mode)
}

// Follow trails another drone. TargetID 0 means the target is not encoded.
type Follow struct {
	TargetID int
}

func (c Follow) Label() string {
	if c.TargetID == 0 {
		return "Follow drone"
	}
	return fmt.Sprintf("Follow drone #%d", c.TargetID)
}

// Orbit loiters around an anchor. The speed shown in the label is derived
// from radius and period.
type Orbit struct {
	Anchor    planning.Anchor
	RadiusM   float64
	AltM      float64
	PeriodMin float64
	Direction planning.Direction
}

// SpeedKmh is the ground speed implied by radius and period.
func (c Orbit) SpeedKmh() float64 {
	return planning.OrbitSpeedKmh(c.RadiusM, c.PeriodMin*60)
}

func (c Orbit) Label() string {
	return fmt.Sprintf("Orbit (around %s, r %s m, alt %s m, %s min/orbit, spd %d km/h, %s)",
		anchorLabel(c.Anchor), num(c.RadiusM), num(c.AltM), num(c.PeriodMin),
		int(math.Round(c.SpeedKmh())), c.Direction)
}

// Flank approaches an anchor tangentially on a bearing.
type Flank struct {
	Anchor     planning.Anchor
	DiameterM  float64
	BearingDeg float64
	AltM       float64
	SpeedKmh   float64
}

func (c Flank) Label() string {
	return fmt.Sprintf("Flank (at %s, dia %s m, brg %s°, alt %s m, spd %s km/h)",
		anchorLabel(c.Anchor), num(c.DiameterM), num(c.BearingDeg), num(c.AltM), num(c.SpeedKmh))
}

// num formats with at most one decimal.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

var anchorLabels = map[planning.AnchorKind]string{
	planning.AnchorWaypoint: "WP",
	planning.AnchorStation:  "home",
	planning.AnchorDrone:    "drone",
}

func anchorLabel(a planning.Anchor) string {
	return fmt.Sprintf("%s #%d", anchorLabels[a.Kind], a.ID)
}

const numRe = `(-?\d+(?:\.\d+)?)`

var (
	gotoRe   = regexp.MustCompile(`^Goto WP #(\d+) \(spd ` + numRe + ` km/h, alt ` + numRe + ` m\)$`)
	homeRe   = regexp.MustCompile(`^Return home #(\d+) \((land|hover)\)$`)
	followRe = regexp.MustCompile(`^Follow drone(?: #(\d+))?$`)
	orbitRe  = regexp.MustCompile(`^Orbit \(around (WP|home|drone) #(\d+), r ` + numRe + ` m, alt ` + numRe +
		` m, ` + numRe + ` min/orbit, spd \d+ km/h, (CW|CCW)\)$`)
	flankRe = regexp.MustCompile(`^Flank \(at (WP|home|drone) #(\d+), dia ` + numRe + ` m, brg ` + numRe +
		`°, alt ` + numRe + ` m, spd ` + numRe + ` km/h\)$`)
)

var anchorKinds = map[string]planning.AnchorKind{
	"WP":    planning.AnchorWaypoint,
	"home":  planning.AnchorStation,
	"drone": planning.AnchorDrone,
}

// Parse turns a label back into a Command.
func Parse(label string) (Command, error) {
	switch a := Action(label); a {
	case Arm, Disarm, Takeoff, Land, HoldPosition:
		return Simple{Action: a}, nil
	}
	if m := gotoRe.FindStringSubmatch(label); m != nil {
		return GotoWaypoint{WaypointID: atoi(m[1]), SpeedKmh: atof(m[2]), AltM: atof(m[3])}, nil
	}
	if m := homeRe.FindStringSubmatch(label); m != nil {
		return ReturnHome{StationID: atoi(m[1]), Mode: HomeMode(m[2])}, nil
	}
	if m := followRe.FindStringSubmatch(label); m != nil {
		if m[1] == "" {
			return Follow{}, nil
		}
		return Follow{TargetID: atoi(m[1])}, nil
	}
	if m := orbitRe.FindStringSubmatch(label); m != nil {
		return Orbit{
			Anchor:    planning.Anchor{Kind: anchorKinds[m[1]], ID: atoi(m[2])},
			RadiusM:   atof(m[3]),
			AltM:      atof(m[4]),
			PeriodMin: atof(m[5]),
			Direction: planning.Direction(m[6]),
		}, nil
	}
	if m := flankRe.FindStringSubmatch(label); m != nil {
		return Flank{
			Anchor:     planning.Anchor{Kind: anchorKinds[m[1]], ID: atoi(m[2])},
			DiameterM:  atof(m[3]),
			BearingDeg: atof(m[4]),
			AltM:       atof(m[5]),
			SpeedKmh:   atof(m[6]),
		}, nil
	}
	return nil, fmt.Errorf("%q: %w", label, ErrUnknownCommand)
}

// Canonical returns cmd with its parameters rounded the way its label
// renders them, so issuing the parsed label repeats the same directive.
func Canonical(cmd Command) Command {
	c, err := Parse(cmd.Label())
	if err != nil {
		return cmd
	}
	return c
}

// The regexps only admit digits, so conversion errors cannot occur.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Kind returns a short metric-friendly name for the command variant.
func Kind(c Command) string {
	switch c := c.(type) {
	case Simple:
		return string(c.Action)
	case GotoWaypoint:
		return "goto"
	case ReturnHome:
		return "return_home"
	case Follow:
		return "follow"
	case Orbit:
		return "orbit"
	case Flank:
		return "flank"
	}
	return "unknown"
}
