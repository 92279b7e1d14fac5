package sim

import (
	"encoding/json"
	"os"

	"swarm-gcs/internal/telemetry"
)

// FileWriter writes telemetry, command and state rows to JSONL files.
type FileWriter struct {
	teleFile  *os.File
	cmdFile   *os.File
	stateFile *os.File
	teleEnc   *json.Encoder
	cmdEnc    *json.Encoder
	stateEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. commandPath or statePath may be empty to skip those logs.
func NewFileWriter(telemetryPath, commandPath, statePath string) (*FileWriter, error) {
	tf, err := os.Create(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	if commandPath != "" {
		cf, err := os.Create(commandPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.cmdFile = cf
		fw.cmdEnc = json.NewEncoder(cf)
	}
	if statePath != "" {
		sf, err := os.Create(statePath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.stateFile = sf
		fw.stateEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// Write logs a single telemetry row.
func (f *FileWriter) Write(row telemetry.TelemetryRow) error {
	return f.teleEnc.Encode(row)
}

// WriteBatch logs multiple telemetry rows.
func (f *FileWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCommand logs a command row, if enabled.
func (f *FileWriter) WriteCommand(row telemetry.CommandRow) error {
	if f.cmdEnc == nil {
		return nil
	}
	return f.cmdEnc.Encode(row)
}

// WriteState logs a state row, if enabled.
func (f *FileWriter) WriteState(row telemetry.StateRow) error {
	if f.stateEnc == nil {
		return nil
	}
	return f.stateEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, file := range []*os.File{f.teleFile, f.cmdFile, f.stateFile} {
		if file == nil {
			continue
		}
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
