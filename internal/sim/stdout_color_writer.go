// ColorStdoutWriter prints human-friendly, colorized telemetry to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"swarm-gcs/internal/config"
	"swarm-gcs/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints rows using ANSI colors. Colors are dropped when
// the output is not a terminal.
type ColorStdoutWriter struct {
	cfg         *config.SimulationConfig
	out         io.Writer
	plain       bool
	once        sync.Once
	droneColors map[int]string
	colorIdx    int
}

var dronePalette = []string{colorRed, colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.SimulationConfig) *ColorStdoutWriter {
	return &ColorStdoutWriter{
		cfg:         cfg,
		out:         os.Stdout,
		plain:       !term.IsTerminal(int(os.Stdout.Fd())),
		droneColors: make(map[int]string),
	}
}

func (w *ColorStdoutWriter) c(color string) string {
	if w.plain {
		return ""
	}
	return color
}

func (w *ColorStdoutWriter) droneColor(id int) string {
	if c, ok := w.droneColors[id]; ok {
		return c
	}
	c := dronePalette[w.colorIdx%len(dronePalette)]
	w.droneColors[id] = c
	w.colorIdx++
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}

	fmt.Fprintln(w.out, "Session Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Session:\t%s\n", w.cfg.SessionID)
	fmt.Fprintf(tw, "Drones:\t%d\n", w.cfg.Swarm.Count)
	fmt.Fprintf(tw, "HQ:\t%s (%.5f, %.5f)\n", w.cfg.HQ.Name, w.cfg.HQ.Lat, w.cfg.HQ.Lng)
	fmt.Fprintf(tw, "Stale after (s):\t%.1f\n", w.cfg.Swarm.StaleThresholdSec)
	fmt.Fprintf(tw, "Battery window (s):\t%.0f\n", w.cfg.Swarm.BatteryWindowSec)
	fmt.Fprintf(tw, "Disarm cooldown (ms):\t%d\n", w.cfg.Safety.DisarmCooldownMs)
	tw.Flush()
	fmt.Fprintln(w.out)
}

func (w *ColorStdoutWriter) stamp(ts time.Time) {
	fmt.Fprintf(w.out, "%s[%s]%s ", w.c(colorGray), ts.Format(time.RFC3339), w.c(colorReset))
}

// Write outputs a single telemetry row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.TelemetryRow) error {
	w.once.Do(w.printOverview)

	battColor := colorGreen
	switch {
	case row.Battery < 15:
		battColor = colorRed
	case row.Battery < 30:
		battColor = colorYellow
	}
	reset := w.c(colorReset)

	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%sdrone=%d%s ", w.c(w.droneColor(row.DroneID)), row.DroneID, reset)
	fmt.Fprintf(w.out, "%slat=%.5f%s ", w.c(colorGreen), row.Lat, reset)
	fmt.Fprintf(w.out, "%slon=%.5f%s ", w.c(colorYellow), row.Lon, reset)
	fmt.Fprintf(w.out, "%salt=%.1f%s ", w.c(colorMagenta), row.Alt, reset)
	fmt.Fprintf(w.out, "%shdg=%.0f%s ", w.c(colorCyan), row.Heading, reset)
	fmt.Fprintf(w.out, "%sbatt=%.1f%s ", w.c(battColor), row.Battery, reset)
	if row.RSSI != nil {
		fmt.Fprintf(w.out, "%srssi=%.0f%s ", w.c(colorBlue), *row.RSSI, reset)
	}
	fmt.Fprintf(w.out, "cmd=%q", row.Command)
	if row.Armed {
		fmt.Fprintf(w.out, " %sarmed%s", w.c(colorRed), reset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple telemetry rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteCommand prints an issued command.
func (w *ColorStdoutWriter) WriteCommand(row telemetry.CommandRow) error {
	w.once.Do(w.printOverview)
	w.stamp(row.IssuedAt)
	fmt.Fprintf(w.out, "%sCOMMAND%s drone=%d key=%s source=%s %q\n",
		w.c(colorMagenta), w.c(colorReset), row.DroneID, row.SelectionKey, row.Source, row.Command)
	return nil
}

// WriteState prints station counters.
func (w *ColorStdoutWriter) WriteState(row telemetry.StateRow) error {
	w.once.Do(w.printOverview)
	staleColor := colorGreen
	if row.StaleDrones > 0 {
		staleColor = colorRed
	}
	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%sSTATE%s drones=%d %sstale=%d%s armed=%d teams=%d waypoints=%d mismatches=%d planned=%d\n",
		w.c(colorBlue), w.c(colorReset), row.Drones, w.c(staleColor), row.StaleDrones, w.c(colorReset),
		row.ArmedDrones, row.Teams, row.Waypoints, row.Mismatches, row.PlannedSteps)
	return nil
}
