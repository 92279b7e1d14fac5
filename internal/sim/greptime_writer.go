package sim

import (
	"context"
	"fmt"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"swarm-gcs/internal/telemetry"
)

// greptimeClient is the part of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes telemetry, commands and state rows to GreptimeDB
// via the ingester client.
type GreptimeDBWriter struct {
	client     greptimeClient
	teleTable  string
	cmdTable   string
	stateTable string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port"). Empty
// table names fall back to the row types' defaults.
func NewGreptimeDBWriter(endpoint, database, teleTable, cmdTable, stateTable string) (*GreptimeDBWriter, error) {
	host, port := endpoint, 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid GreptimeDB port %q: %w", p, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if teleTable == "" {
		teleTable = telemetry.TelemetryRow{}.TableName()
	}
	if cmdTable == "" {
		cmdTable = telemetry.CommandRow{}.TableName()
	}
	if stateTable == "" {
		stateTable = telemetry.StateRow{}.TableName()
	}
	return &GreptimeDBWriter{client: client, teleTable: teleTable, cmdTable: cmdTable, stateTable: stateTable}, nil
}

// column describes one table column; tag columns come first.
type column struct {
	name string
	kind types.ColumnType
	tag  bool
}

func newTable(name string, cols []column) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.kind)
		} else {
			err = tbl.AddFieldColumn(c.name, c.kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

var telemetryColumns = []column{
	{"session_id", types.STRING, true},
	{"drone_id", types.INT64, true},
	{"uptime_sec", types.FLOAT64, false},
	{"lat", types.FLOAT64, false},
	{"lon", types.FLOAT64, false},
	{"alt", types.FLOAT64, false},
	{"heading", types.FLOAT64, false},
	{"battery", types.FLOAT64, false},
	{"rssi", types.FLOAT64, false},
	{"command", types.STRING, false},
	{"armed", types.BOOLEAN, false},
	{"rescue_phase", types.STRING, false},
}

var commandColumns = []column{
	{"session_id", types.STRING, true},
	{"drone_id", types.INT64, true},
	{"id", types.STRING, false},
	{"selection_key", types.STRING, false},
	{"command", types.STRING, false},
	{"source", types.STRING, false},
}

var stateColumns = []column{
	{"session_id", types.STRING, true},
	{"drones", types.INT64, false},
	{"stale_drones", types.INT64, false},
	{"armed_drones", types.INT64, false},
	{"teams", types.INT64, false},
	{"waypoints", types.INT64, false},
	{"mismatches", types.INT64, false},
	{"planned_steps", types.INT64, false},
}

func (w *GreptimeDBWriter) send(name string, tbl *table.Table) error {
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		return fmt.Errorf("greptime write %s: %w", name, err)
	}
	return nil
}

// Write inserts a single telemetry row.
func (w *GreptimeDBWriter) Write(row telemetry.TelemetryRow) error {
	return w.WriteBatch([]telemetry.TelemetryRow{row})
}

// WriteBatch inserts multiple telemetry rows.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.teleTable, telemetryColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		var rssi any
		if r.RSSI != nil {
			rssi = *r.RSSI
		}
		err := tbl.AddRow(r.SessionID, int64(r.DroneID), r.UptimeSec, r.Lat, r.Lon, r.Alt,
			r.Heading, r.Battery, rssi, r.Command, r.Armed, r.RescuePhase, r.Timestamp)
		if err != nil {
			return err
		}
	}
	return w.send(w.teleTable, tbl)
}

// WriteCommand inserts a single command row.
func (w *GreptimeDBWriter) WriteCommand(row telemetry.CommandRow) error {
	return w.WriteCommands([]telemetry.CommandRow{row})
}

// WriteCommands inserts multiple command rows.
func (w *GreptimeDBWriter) WriteCommands(rows []telemetry.CommandRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.cmdTable, commandColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.SessionID, int64(r.DroneID), r.ID, r.SelectionKey, r.Command, r.Source, r.IssuedAt); err != nil {
			return err
		}
	}
	return w.send(w.cmdTable, tbl)
}

// WriteState inserts a state row.
func (w *GreptimeDBWriter) WriteState(row telemetry.StateRow) error {
	return w.WriteStates([]telemetry.StateRow{row})
}

// WriteStates inserts multiple state rows.
func (w *GreptimeDBWriter) WriteStates(rows []telemetry.StateRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.stateTable, stateColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		err := tbl.AddRow(r.SessionID, int64(r.Drones), int64(r.StaleDrones), int64(r.ArmedDrones),
			int64(r.Teams), int64(r.Waypoints), int64(r.Mismatches), int64(r.PlannedSteps), r.Timestamp)
		if err != nil {
			return err
		}
	}
	return w.send(w.stateTable, tbl)
}
