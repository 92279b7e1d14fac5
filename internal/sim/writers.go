package sim

import "swarm-gcs/internal/telemetry"

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.TelemetryRow) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.TelemetryRow) error
}

// CommandWriter receives every issued command.
type CommandWriter interface {
	WriteCommand(telemetry.CommandRow) error
}

// Optional: command writers may support batch mode.
type batchCommandWriter interface {
	WriteCommands([]telemetry.CommandRow) error
}

// StateWriter handles per-refresh station counters.
type StateWriter interface {
	WriteState(telemetry.StateRow) error
}

// Optional: writers may support batch mode for state rows.
type batchStateWriter interface {
	WriteStates([]telemetry.StateRow) error
}

// SnapshotWriter receives the read model after every refresh.
type SnapshotWriter interface {
	WriteSnapshot(Snapshot) error
}

// SnapshotFunc adapts a function to SnapshotWriter.
type SnapshotFunc func(Snapshot) error

func (f SnapshotFunc) WriteSnapshot(s Snapshot) error { return f(s) }

func writeTelemetry(w TelemetryWriter, rows []telemetry.TelemetryRow) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func writeCommands(w CommandWriter, rows []telemetry.CommandRow) error {
	if bw, ok := w.(batchCommandWriter); ok {
		return bw.WriteCommands(rows)
	}
	for _, r := range rows {
		if err := w.WriteCommand(r); err != nil {
			return err
		}
	}
	return nil
}

func writeStates(w StateWriter, rows []telemetry.StateRow) error {
	if bw, ok := w.(batchStateWriter); ok {
		return bw.WriteStates(rows)
	}
	for _, r := range rows {
		if err := w.WriteState(r); err != nil {
			return err
		}
	}
	return nil
}
