package telemetry

import (
	"math"
	"time"

	"swarm-gcs/internal/geo"
)

// Defaults used when a Config leaves a field at zero.
const (
	DefaultHistoryLimit   = 120
	DefaultMinRateSamples = 3
)

// Config bounds the per-drone history.
type Config struct {
	HistoryLimit   int
	MinRateSamples int
}

// Drone holds the time series of one vehicle. The history is a fixed-size
// ring; the newest sample is always the ring's tail.
type Drone struct {
	ID int

	buf     []Sample
	start   int
	n       int
	minRate int

	lastReceivedAt time.Time
	cooldownUntil  time.Time
}

// NewDrone creates a drone with an empty history.
func NewDrone(id int, cfg Config) *Drone {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	minRate := cfg.MinRateSamples
	if minRate < 2 {
		minRate = DefaultMinRateSamples
	}
	return &Drone{ID: id, buf: make([]Sample, limit), minRate: minRate}
}

func (d *Drone) at(i int) Sample {
	return d.buf[(d.start+i)%len(d.buf)]
}

func (d *Drone) push(s Sample) {
	if d.n < len(d.buf) {
		d.buf[(d.start+d.n)%len(d.buf)] = s
		d.n++
		return
	}
	d.buf[d.start] = s
	d.start = (d.start + 1) % len(d.buf)
}

// UpdateTelemetry appends a sample and returns true when its command label
// differs from the previous sample's. Omitted armed and command values are
// carried over from the previous sample. The rescue phase is not: a sample
// without one has no phase.
func (d *Drone) UpdateTelemetry(s Sample, receivedAt time.Time) bool {
	prev, ok := d.Latest()
	if s.Armed == nil {
		s.Armed = Bool(ok && prev.IsArmed())
	} else {
		s.Armed = Bool(*s.Armed)
	}
	if ok && s.Command == "" {
		s.Command = prev.Command
	}
	if s.RSSI != nil {
		s.RSSI = Float(*s.RSSI)
	}
	d.push(s)
	d.lastReceivedAt = receivedAt
	return ok && prev.Command != s.Command
}

// Amend edits the newest sample in place. It returns false when there is no
// telemetry yet.
func (d *Drone) Amend(fn func(*Sample)) bool {
	if d.n == 0 {
		return false
	}
	fn(&d.buf[(d.start+d.n-1)%len(d.buf)])
	return true
}

// Latest returns the newest sample.
func (d *Drone) Latest() (Sample, bool) {
	if d.n == 0 {
		return Sample{}, false
	}
	return d.at(d.n - 1), true
}

// History returns a copy of the samples, oldest first.
func (d *Drone) History() []Sample {
	out := make([]Sample, d.n)
	for i := range out {
		out[i] = d.at(i)
	}
	return out
}

// Len returns the number of buffered samples.
func (d *Drone) Len() int { return d.n }

// HistoryLimit returns the ring capacity.
func (d *Drone) HistoryLimit() int { return len(d.buf) }

// LastReceivedAt returns the wall-clock time of the last sample.
func (d *Drone) LastReceivedAt() time.Time { return d.lastReceivedAt }

// IsArmed reports whether the newest sample is armed.
func (d *Drone) IsArmed() bool {
	s, ok := d.Latest()
	return ok && s.IsArmed()
}

// InAir reports whether the newest sample is airborne.
func (d *Drone) InAir() bool {
	s, ok := d.Latest()
	return ok && s.InAir()
}

// IsLanded is the negation of InAir.
func (d *Drone) IsLanded() bool { return !d.InAir() }

// SecondsSinceLastUpdate returns the age of the newest sample; ok is false
// before the first update.
func (d *Drone) SecondsSinceLastUpdate(now time.Time) (float64, bool) {
	if d.lastReceivedAt.IsZero() {
		return 0, false
	}
	return now.Sub(d.lastReceivedAt).Seconds(), true
}

// IsStale reports whether the link is older than threshold. A drone that
// never reported is not stale.
func (d *Drone) IsStale(now time.Time, threshold time.Duration) bool {
	if d.lastReceivedAt.IsZero() {
		return false
	}
	return now.Sub(d.lastReceivedAt) > threshold
}

// BatteryRatePerMinute estimates the discharge rate from the earliest
// sample within windowSec of the newest one. Only a positive, finite
// discharge is reported.
func (d *Drone) BatteryRatePerMinute(windowSec float64) (float64, bool) {
	if d.n < d.minRate || d.n < 2 {
		return 0, false
	}
	latest := d.at(d.n - 1)
	earliest := latest
	for i := d.n - 2; i >= 0; i-- {
		s := d.at(i)
		if s.UptimeSec > earliest.UptimeSec {
			return 0, false
		}
		if latest.UptimeSec-s.UptimeSec > windowSec {
			break
		}
		earliest = s
	}
	dt := latest.UptimeSec - earliest.UptimeSec
	if dt <= 0 {
		return 0, false
	}
	rate := (earliest.Battery - latest.Battery) / dt * 60
	if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return 0, false
	}
	return rate, true
}

// EstimatedTimeRemainingMinutes divides the current battery by the
// discharge rate.
func (d *Drone) EstimatedTimeRemainingMinutes(windowSec float64) (float64, bool) {
	rate, ok := d.BatteryRatePerMinute(windowSec)
	if !ok {
		return 0, false
	}
	s, _ := d.Latest()
	if math.IsNaN(s.Battery) {
		return 0, false
	}
	return s.Battery / rate, true
}

// GroundSpeedMps compares the newest sample with the nearest earlier sample
// that has a strictly smaller uptime.
func (d *Drone) GroundSpeedMps() (float64, bool) {
	if d.n < 2 {
		return 0, false
	}
	latest := d.at(d.n - 1)
	for i := d.n - 2; i >= 0; i-- {
		s := d.at(i)
		if s.UptimeSec >= latest.UptimeSec {
			continue
		}
		dist := geo.HaversineDistance(s.Lat, s.Lng, latest.Lat, latest.Lng)
		return dist / (latest.UptimeSec - s.UptimeSec), true
	}
	return 0, false
}

// SetCooldown extends the cooldown to at least now+dur. It never shortens
// an existing cooldown.
func (d *Drone) SetCooldown(dur time.Duration, now time.Time) {
	until := now.Add(dur)
	if until.After(d.cooldownUntil) {
		d.cooldownUntil = until
	}
}

// CooldownRemaining returns the time left on the cooldown, floored at zero.
func (d *Drone) CooldownRemaining(now time.Time) time.Duration {
	rem := d.cooldownUntil.Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}
