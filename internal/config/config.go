// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Swarm describes the simulated drones and how their telemetry is judged.
type Swarm struct {
	Count             int     `yaml:"count"`
	CenterLat         float64 `yaml:"center_lat"`
	CenterLng         float64 `yaml:"center_lng"`
	SpreadM           float64 `yaml:"spread_m"`
	HistoryLimit      int     `yaml:"history_limit"`
	MinRateSamples    int     `yaml:"min_rate_samples"`
	StaleThresholdSec float64 `yaml:"stale_threshold_sec"`
	BatteryWindowSec  float64 `yaml:"battery_window_sec"`
}

// Station is the default HQ ground station.
type Station struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
	Alt  float64 `yaml:"alt"`
}

// Feed controls the mock per-drone telemetry timers.
type Feed struct {
	MinIntervalMs int     `yaml:"min_interval_ms"`
	MaxIntervalMs int     `yaml:"max_interval_ms"`
	GapChance     float64 `yaml:"gap_chance"`
	GapMs         int     `yaml:"gap_ms"`
	Seed          int64   `yaml:"seed"`
}

// Defaults are the issuance parameters used when an intent leaves them out.
type Defaults struct {
	SpeedKmh       float64 `yaml:"speed_kmh"`
	AltM           float64 `yaml:"alt_m"`
	OrbitRadiusM   float64 `yaml:"orbit_radius_m"`
	OrbitPeriodMin float64 `yaml:"orbit_period_min"`
	FlankDiameterM float64 `yaml:"flank_diameter_m"`
}

// Safety holds the arm/disarm guards.
type Safety struct {
	DisarmCooldownMs   int  `yaml:"disarm_cooldown_ms"`
	ConfirmInAirDisarm bool `yaml:"confirm_in_air_disarm"`
}

// SimulationConfig is the root configuration of a ground-control session.
type SimulationConfig struct {
	SessionID         string   `yaml:"session_id"`
	Swarm             Swarm    `yaml:"swarm"`
	HQ                Station  `yaml:"hq"`
	Feed              Feed     `yaml:"feed"`
	Defaults          Defaults `yaml:"defaults"`
	Safety            Safety   `yaml:"safety"`
	RefreshIntervalMs int      `yaml:"refresh_interval_ms"`
	AdminAddr         string   `yaml:"admin_addr"`
	NATSURL           string   `yaml:"nats_url"`
	NATSSubject       string   `yaml:"nats_subject"`
}

// Default returns the configuration used when no file is given.
func Default() *SimulationConfig {
	return &SimulationConfig{
		Swarm: Swarm{
			Count:             6,
			CenterLat:         48.2082,
			CenterLng:         16.3738,
			SpreadM:           400,
			HistoryLimit:      120,
			MinRateSamples:    3,
			StaleThresholdSec: 3,
			BatteryWindowSec:  120,
		},
		HQ:   Station{Name: "HQ", Lat: 48.2082, Lng: 16.3738},
		Feed: Feed{MinIntervalMs: 800, MaxIntervalMs: 1600, GapChance: 0.08, GapMs: 2200},
		Defaults: Defaults{
			SpeedKmh:       60,
			AltM:           30,
			OrbitRadiusM:   200,
			OrbitPeriodMin: 2,
			FlankDiameterM: 500,
		},
		Safety:            Safety{DisarmCooldownMs: 3000, ConfirmInAirDisarm: true},
		RefreshIntervalMs: 1000,
		AdminAddr:         ":8080",
		NATSSubject:       "gcs.commands",
	}
}

// Load loads YAML config and validates it against a CUE schema. Fields
// missing from the file keep their Default values.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SESSION_ID, NATS_URL, ADMIN_ADDR and
// REFRESH_INTERVAL, and fills a random session id when none is set.
func (c *SimulationConfig) ApplyEnv() error {
	if v := os.Getenv("SESSION_ID"); v != "" {
		c.SessionID = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATSURL = v
	}
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		c.AdminAddr = v
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
		}
		c.RefreshIntervalMs = int(d / time.Millisecond)
	}
	if v := os.Getenv("SWARM_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SWARM_COUNT: %w", err)
		}
		c.Swarm.Count = n
	}
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	return nil
}

// Validate checks the invariants the schema cannot express.
func (c *SimulationConfig) Validate() error {
	if c.Swarm.Count < 1 {
		return fmt.Errorf("swarm.count must be at least 1, got %d", c.Swarm.Count)
	}
	if c.Swarm.HistoryLimit < 2 {
		return fmt.Errorf("swarm.history_limit must be at least 2, got %d", c.Swarm.HistoryLimit)
	}
	if c.Feed.MinIntervalMs <= 0 || c.Feed.MaxIntervalMs < c.Feed.MinIntervalMs {
		return fmt.Errorf("feed interval [%d, %d] ms is invalid", c.Feed.MinIntervalMs, c.Feed.MaxIntervalMs)
	}
	if c.Feed.GapChance < 0 || c.Feed.GapChance > 1 {
		return fmt.Errorf("feed.gap_chance must be within [0, 1], got %v", c.Feed.GapChance)
	}
	if c.RefreshIntervalMs <= 0 {
		return fmt.Errorf("refresh_interval_ms must be positive")
	}
	return nil
}

// StaleThreshold returns the staleness threshold as a duration.
func (c *SimulationConfig) StaleThreshold() time.Duration {
	return time.Duration(c.Swarm.StaleThresholdSec * float64(time.Second))
}

// DisarmCooldown returns the cooldown that follows a disarm.
func (c *SimulationConfig) DisarmCooldown() time.Duration {
	return time.Duration(c.Safety.DisarmCooldownMs) * time.Millisecond
}

// RefreshInterval returns the UI refresh cadence.
func (c *SimulationConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// FeedInterval returns the bounds of the mock feed delay.
func (c *SimulationConfig) FeedInterval() (min, max, gap time.Duration) {
	return time.Duration(c.Feed.MinIntervalMs) * time.Millisecond,
		time.Duration(c.Feed.MaxIntervalMs) * time.Millisecond,
		time.Duration(c.Feed.GapMs) * time.Millisecond
}
