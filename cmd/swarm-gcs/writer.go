package main

import (
	"fmt"
	"os"

	"swarm-gcs/internal/config"
	"swarm-gcs/internal/sim"
)

// newWriters sets up the row sinks based on flags and env vars. The TUI
// writer is returned separately so the caller can hand it the controller.
// The cleanup function closes any files and the console.
func newWriters(cfg *config.SimulationConfig, output string, printOnly bool, logFile string) ([]sim.TelemetryWriter, *sim.TUIWriter, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	ws, tui, err := baseWriters(cfg, output, printOnly)
	if err != nil {
		return nil, nil, nil, err
	}
	if tui != nil {
		closers = append(closers, tui.Close)
	}
	if logFile != "" {
		fw, err := sim.NewFileWriter(logFile, logFile+".commands", logFile+".state")
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, fw.Close)
		ws = append(ws, fw)
	}
	return ws, tui, cleanup, nil
}

// baseWriters chooses the console writer from output and adds GreptimeDB
// when GREPTIMEDB_ENDPOINT is set. With GreptimeDB active the JSON and color
// consoles are left out unless printOnly is given.
func baseWriters(cfg *config.SimulationConfig, output string, printOnly bool) ([]sim.TelemetryWriter, *sim.TUIWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	useDB := !printOnly && endpoint != ""

	var ws []sim.TelemetryWriter
	var tui *sim.TUIWriter
	switch output {
	case "json":
		if !useDB {
			ws = append(ws, sim.NewJSONStdoutWriter())
		}
	case "color":
		if !useDB {
			ws = append(ws, sim.NewColorStdoutWriter(cfg))
		}
	case "tui":
		tui = sim.NewTUIWriter(cfg)
		ws = append(ws, tui)
	default:
		return nil, nil, fmt.Errorf("unknown output %q (want json, color or tui)", output)
	}

	if useDB {
		// Empty table names pick up GREPTIMEDB_TABLE, COMMAND_TABLE and STATE_TABLE.
		w, err := sim.NewGreptimeDBWriter(endpoint, "public", "", "", "")
		if err != nil {
			if tui != nil {
				tui.Close()
			}
			return nil, nil, err
		}
		ws = append(ws, w)
	}
	return ws, tui, nil
}
