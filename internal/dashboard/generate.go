package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"swarm-gcs/internal/telemetry"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Tables names the GreptimeDB tables the dashboards query.
type Tables struct {
	Telemetry string
	Commands  string
	State     string
}

// DefaultTables returns the table names the writers use.
func DefaultTables() Tables {
	return Tables{
		Telemetry: telemetry.TelemetryRow{}.TableName(),
		Commands:  telemetry.CommandRow{}.TableName(),
		State:     telemetry.StateRow{}.TableName(),
	}
}

// Render executes every dashboard template and writes the Grafana JSON to
// outDir. Templates read the datasource uid through the env function.
func Render(outDir string, tables Tables) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	t, err := template.New("dashboards").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, tpl := range t.Templates() {
		name := tpl.Name()
		if !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := tpl.Execute(f, tables); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
