package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"swarm-gcs/internal/telemetry"
)

// JSONStdoutWriter prints telemetry, commands and state as JSON to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) print(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a telemetry row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.TelemetryRow) error {
	return w.print(row)
}

// WriteBatch outputs multiple telemetry rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := w.print(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCommand outputs an issued command in JSON format.
func (w *JSONStdoutWriter) WriteCommand(row telemetry.CommandRow) error {
	return w.print(row)
}

// WriteState outputs station counters in JSON format.
func (w *JSONStdoutWriter) WriteState(row telemetry.StateRow) error {
	return w.print(row)
}
