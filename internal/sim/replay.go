package sim

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"swarm-gcs/internal/logging"
	"swarm-gcs/internal/telemetry"
)

// Ingester accepts telemetry samples; *Simulator implements it.
type Ingester interface {
	Ingest(droneID int, sample telemetry.Sample, receivedAt time.Time) error
}

// ReplayLog feeds recorded telemetry rows from r into ing. A speed >0
// scales the recorded gaps; with speed <= 0 rows are applied back to back.
// Rows for drones the station does not know are skipped.
func ReplayLog(ctx context.Context, r io.Reader, ing Ingester, speed float64) (int, error) {
	log := logging.FromContext(ctx)
	dec := json.NewDecoder(r)
	var prev time.Time
	applied := 0
	for {
		var row telemetry.TelemetryRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return applied, nil
			}
			return applied, err
		}
		if !prev.IsZero() && speed > 0 {
			if diff := time.Duration(float64(row.Timestamp.Sub(prev)) / speed); diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return applied, ctx.Err()
				}
			}
		}
		prev = row.Timestamp
		err := ing.Ingest(row.DroneID, row.Sample(), time.Now())
		switch {
		case errors.Is(err, ErrUnknownDrone):
			log.Warn("skipping row for unknown drone", "drone_id", row.DroneID)
			continue
		case err != nil:
			log.Error("replay ingest failed", "drone_id", row.DroneID, "err", err)
		}
		applied++
	}
}

// ReplayLogFile opens a JSONL telemetry file and replays it.
func ReplayLogFile(ctx context.Context, path string, ing Ingester, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, ing, speed)
}
