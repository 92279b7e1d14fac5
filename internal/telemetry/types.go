// Telemetry samples and the rows exported to writers.
package telemetry

import (
	"os"
	"time"
)

// Sample is one telemetry report from a drone. UptimeSec is the drone's
// mission clock, not wall time.
type Sample struct {
	UptimeSec   float64  `json:"uptime_sec"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Alt         float64  `json:"alt"`
	Heading     float64  `json:"heading"`
	Battery     float64  `json:"battery"`
	RSSI        *float64 `json:"rssi,omitempty"`
	Command     string   `json:"command"`
	Armed       *bool    `json:"armed,omitempty"`
	RescuePhase string   `json:"rescue_phase,omitempty"`
}

// IsArmed reports the armed flag, treating a missing value as disarmed.
func (s Sample) IsArmed() bool {
	return s.Armed != nil && *s.Armed
}

// Rescue phases that mean the vehicle is on the ground.
const (
	PhaseLanded   = "landed"
	PhaseComplete = "complete"
	PhaseAborted  = "aborted"
)

// inAirAltitudeM is the altitude above which a drone without a rescue phase
// is considered airborne.
const inAirAltitudeM = 2.0

// InAir reports whether the sample describes an airborne vehicle.
func (s Sample) InAir() bool {
	switch s.RescuePhase {
	case "":
		return s.Alt > inAirAltitudeM
	case PhaseLanded, PhaseComplete, PhaseAborted:
		return false
	default:
		return true
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// TelemetryRow represents one telemetry record for export.
type TelemetryRow struct {
	SessionID   string    `json:"session_id"` // TAG
	DroneID     int       `json:"drone_id"`   // TAG
	UptimeSec   float64   `json:"uptime_sec"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Alt         float64   `json:"alt"`
	Heading     float64   `json:"heading"`
	Battery     float64   `json:"battery"`
	RSSI        *float64  `json:"rssi,omitempty"`
	Command     string    `json:"command"`
	Armed       bool      `json:"armed"`
	RescuePhase string    `json:"rescue_phase,omitempty"`
	Timestamp   time.Time `json:"ts"` // TIME INDEX
}

// NewTelemetryRow converts a sample into an export row.
func NewTelemetryRow(sessionID string, droneID int, s Sample, ts time.Time) TelemetryRow {
	return TelemetryRow{
		SessionID:   sessionID,
		DroneID:     droneID,
		UptimeSec:   s.UptimeSec,
		Lat:         s.Lat,
		Lon:         s.Lng,
		Alt:         s.Alt,
		Heading:     s.Heading,
		Battery:     s.Battery,
		RSSI:        s.RSSI,
		Command:     s.Command,
		Armed:       s.IsArmed(),
		RescuePhase: s.RescuePhase,
		Timestamp:   ts,
	}
}

// Sample converts the row back into a telemetry sample.
func (r TelemetryRow) Sample() Sample {
	return Sample{
		UptimeSec:   r.UptimeSec,
		Lat:         r.Lat,
		Lng:         r.Lon,
		Alt:         r.Alt,
		Heading:     r.Heading,
		Battery:     r.Battery,
		RSSI:        r.RSSI,
		Command:     r.Command,
		Armed:       Bool(r.Armed),
		RescuePhase: r.RescuePhase,
	}
}

// TelemetryTableName holds the table name used when writing to GreptimeDB.
// It defaults to "gcs_telemetry" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var TelemetryTableName = envOr("GREPTIMEDB_TABLE", "gcs_telemetry")

func (TelemetryRow) TableName() string {
	return TelemetryTableName
}

// Command sources.
const (
	SourceOperator = "operator"
	SourceSequence = "sequence"
)

// CommandRow is one entry of the command audit log.
type CommandRow struct {
	SessionID    string    `json:"session_id"`
	ID           string    `json:"id"`
	DroneID      int       `json:"drone_id"`
	SelectionKey string    `json:"selection_key"`
	Command      string    `json:"command"`
	Source       string    `json:"source"`
	IssuedAt     time.Time `json:"ts"`
}

// CommandTableName is overridable with COMMAND_TABLE.
var CommandTableName = envOr("COMMAND_TABLE", "gcs_commands")

func (CommandRow) TableName() string {
	return CommandTableName
}

// StateRow captures per-refresh station counters.
type StateRow struct {
	SessionID    string    `json:"session_id"`
	Drones       int       `json:"drones"`
	StaleDrones  int       `json:"stale_drones"`
	ArmedDrones  int       `json:"armed_drones"`
	Teams        int       `json:"teams"`
	Waypoints    int       `json:"waypoints"`
	Mismatches   int       `json:"mismatches"`
	PlannedSteps int       `json:"planned_steps"`
	Timestamp    time.Time `json:"ts"`
}

// StateTableName is overridable with STATE_TABLE.
var StateTableName = envOr("STATE_TABLE", "gcs_state")

func (StateRow) TableName() string {
	return StateTableName
}

func envOr(key, def string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	return def
}
