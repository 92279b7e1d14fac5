package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swarm-gcs/internal/telemetry"
)

// Collector bundles the ground station's Prometheus metrics. A nil
// *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	SamplesIngested  prometheus.Counter
	CommandsIssued   *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram

	Drones      prometheus.Gauge
	StaleDrones prometheus.Gauge
	ArmedDrones prometheus.Gauge
	Teams       prometheus.Gauge
	Waypoints   prometheus.Gauge
	Mismatches  prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gcs_samples_ingested_total",
		Help: "Telemetry samples applied to drones.",
	})
	if err := register(reg, samples, &c.SamplesIngested); err != nil {
		return nil, err
	}
	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcs_commands_issued_total",
		Help: "Commands issued to individual drones, labeled by command kind.",
	}, []string{"kind"})
	if err := register(reg, issued, &c.CommandsIssued); err != nil {
		return nil, err
	}
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcs_commands_rejected_total",
		Help: "Commands refused before reaching a drone, labeled by reason.",
	}, []string{"reason"})
	if err := register(reg, rejected, &c.CommandsRejected); err != nil {
		return nil, err
	}
	refresh := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gcs_refresh_duration_seconds",
		Help:    "Time spent building one refresh of the read model.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	if err := register(reg, refresh, &c.RefreshDuration); err != nil {
		return nil, err
	}

	gauges := []struct {
		name, help string
		dst        *prometheus.Gauge
	}{
		{"gcs_drones", "Drones in the swarm.", &c.Drones},
		{"gcs_stale_drones", "Drones whose telemetry link is stale.", &c.StaleDrones},
		{"gcs_armed_drones", "Drones reporting armed.", &c.ArmedDrones},
		{"gcs_teams", "Active teams.", &c.Teams},
		{"gcs_waypoints", "Waypoints on the map.", &c.Waypoints},
		{"gcs_mismatches", "Drones doing something other than their assigned command.", &c.Mismatches},
	}
	for _, g := range gauges {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help})
		if err := register(reg, gauge, g.dst); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SampleIngested counts one applied telemetry sample.
func (c *Collector) SampleIngested() {
	if c == nil {
		return
	}
	c.SamplesIngested.Inc()
}

// CommandIssued counts a command delivered to one drone.
func (c *Collector) CommandIssued(kind string) {
	if c == nil {
		return
	}
	c.CommandsIssued.WithLabelValues(kind).Inc()
}

// CommandRejected counts a refused command.
func (c *Collector) CommandRejected(reason string) {
	if c == nil {
		return
	}
	c.CommandsRejected.WithLabelValues(reason).Inc()
}

// ObserveRefresh records how long a refresh took.
func (c *Collector) ObserveRefresh(d time.Duration) {
	if c == nil {
		return
	}
	c.RefreshDuration.Observe(d.Seconds())
}

// SetState copies the refresh counters into the gauges.
func (c *Collector) SetState(row telemetry.StateRow) {
	if c == nil {
		return
	}
	c.Drones.Set(float64(row.Drones))
	c.StaleDrones.Set(float64(row.StaleDrones))
	c.ArmedDrones.Set(float64(row.ArmedDrones))
	c.Teams.Set(float64(row.Teams))
	c.Waypoints.Set(float64(row.Waypoints))
	c.Mismatches.Set(float64(row.Mismatches))
}

// register adds col to reg and stores it in dst. An identical collector that
// is already registered is reused.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, dst *T) error {
	if err := reg.Register(col); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return fmt.Errorf("collector %T already registered with incompatible type", col)
		}
		*dst = existing
		return nil
	}
	*dst = col
	return nil
}
