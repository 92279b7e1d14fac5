package sim

import (
	"errors"

	"swarm-gcs/internal/telemetry"
)

// MultiWriter fan-outs telemetry, command and state rows to multiple
// writers. Every writer is tried; the errors are joined.
type MultiWriter struct {
	telewriters  []TelemetryWriter
	cmdwriters   []CommandWriter
	statewriters []StateWriter
	snapwriters  []SnapshotWriter
}

// NewMultiWriter creates a new MultiWriter. Writers passed in tws that also
// implement CommandWriter, StateWriter or SnapshotWriter receive those rows
// too; extra writers for those streams can be added with the With methods.
func NewMultiWriter(tws ...TelemetryWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range tws {
		if w == nil {
			continue
		}
		mw.telewriters = append(mw.telewriters, w)
		if cw, ok := w.(CommandWriter); ok {
			mw.cmdwriters = append(mw.cmdwriters, cw)
		}
		if sw, ok := w.(StateWriter); ok {
			mw.statewriters = append(mw.statewriters, sw)
		}
		if sn, ok := w.(SnapshotWriter); ok {
			mw.snapwriters = append(mw.snapwriters, sn)
		}
	}
	return mw
}

// WithCommandWriter adds a command-only sink such as the command link.
func (mw *MultiWriter) WithCommandWriter(w CommandWriter) *MultiWriter {
	mw.cmdwriters = append(mw.cmdwriters, w)
	return mw
}

// WithSnapshotWriter adds a snapshot-only sink such as the stream hub.
func (mw *MultiWriter) WithSnapshotWriter(w SnapshotWriter) *MultiWriter {
	mw.snapwriters = append(mw.snapwriters, w)
	return mw
}

// Write sends a telemetry row to all writers.
func (mw *MultiWriter) Write(row telemetry.TelemetryRow) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, w.Write(row))
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple telemetry rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, writeTelemetry(w, rows))
	}
	return errors.Join(errs...)
}

// WriteCommand sends a command row to all command writers.
func (mw *MultiWriter) WriteCommand(row telemetry.CommandRow) error {
	var errs []error
	for _, w := range mw.cmdwriters {
		errs = append(errs, w.WriteCommand(row))
	}
	return errors.Join(errs...)
}

// WriteCommands sends multiple command rows to all command writers.
func (mw *MultiWriter) WriteCommands(rows []telemetry.CommandRow) error {
	var errs []error
	for _, w := range mw.cmdwriters {
		errs = append(errs, writeCommands(w, rows))
	}
	return errors.Join(errs...)
}

// WriteState sends a state row to all state writers.
func (mw *MultiWriter) WriteState(row telemetry.StateRow) error {
	var errs []error
	for _, w := range mw.statewriters {
		errs = append(errs, w.WriteState(row))
	}
	return errors.Join(errs...)
}

// WriteStates sends multiple state rows to all state writers.
func (mw *MultiWriter) WriteStates(rows []telemetry.StateRow) error {
	var errs []error
	for _, w := range mw.statewriters {
		errs = append(errs, writeStates(w, rows))
	}
	return errors.Join(errs...)
}

// WriteSnapshot hands the snapshot to every snapshot writer.
func (mw *MultiWriter) WriteSnapshot(s Snapshot) error {
	var errs []error
	for _, w := range mw.snapwriters {
		errs = append(errs, w.WriteSnapshot(s))
	}
	return errors.Join(errs...)
}
