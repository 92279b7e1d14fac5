package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	if err := Render(t.TempDir(), DefaultTables()); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")

	dir := t.TempDir()
	tables := Tables{Telemetry: "tele_x", Commands: "cmd_x", State: "state_x"}
	if err := Render(dir, tables); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "gcs-dashboard.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	out := string(b)
	for _, want := range []string{"uid1", "FROM tele_x", "FROM cmd_x", "FROM state_x"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dashboard lacks %q", want)
		}
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("dashboard is not valid JSON: %v", err)
	}
}

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()
	if tables.Telemetry == "" || tables.Commands == "" || tables.State == "" {
		t.Fatalf("tables = %+v", tables)
	}
}
