package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/youpoison/YM-Logs-API/internal/metrika"
	"github.com/youpoison/YM-Logs-API/internal/sink"
)

func TestLoad_QuotedDotenvValue(t *testing.T) {
	dir := t.TempDir()
	content := `SMTP_PASSWORD='value with "double quotes"'`
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	// an existing variable, even empty, would win over the file
	t.Setenv("SMTP_PASSWORD", "")
	if err := os.Unsetenv("SMTP_PASSWORD"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	expected := `value with "double quotes"`
	if cfg.SMTP.Password != expected {
		t.Errorf("Expected %s, got %s", expected, cfg.SMTP.Password)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	for _, value := range []string{"abc", "0", "-5"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("YM_POLL_INTERVAL_SECONDS", value)
			t.Setenv("DB_BATCH_SIZE", value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.PollInterval != 6*time.Second {
				t.Errorf("PollInterval = %s, want 6s", cfg.PollInterval)
			}
			if cfg.Sink.BatchSize != sink.DefaultBatchSize {
				t.Errorf("Sink.BatchSize = %d", cfg.Sink.BatchSize)
			}
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("YM_TOKEN", "y0_token")
	t.Setenv("DB_DIALECT", "postgres")
	t.Setenv("DB_DSN", "host=db user=etl")
	t.Setenv("YM_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("DATA_PATH", "/srv/ym")
	t.Setenv("ARCHIVE_USE_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "y0_token" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.Sink.Dialect != sink.Postgres || cfg.Sink.DSN != "host=db user=etl" {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.SMTP.Port != 465 {
		t.Errorf("SMTP.Port = %d", cfg.SMTP.Port)
	}
	if !cfg.Archive.UseSSL {
		t.Error("Archive.UseSSL should be true")
	}
	if cfg.ProjectsDir != filepath.Join("/srv/ym", "projects") {
		t.Errorf("ProjectsDir = %q", cfg.ProjectsDir)
	}
	if err := cfg.RequireToken(); err != nil {
		t.Errorf("RequireToken: %v", err)
	}
}

const shopYAML = `
counter: "26851704"
table: DFSA_427_data_03
email: owner@example.com
interval: 10
start_date: 2023-03-01
end_date: 2023-03-31
fields:
  hits:
    - ym:pv:date
    - ym:pv:clientID
  visits:
    - ym:s:date
    - ym:s:visitID
`

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shop.yaml"), []byte(shopYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProject(dir, "shop")
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if p.Name != "shop" || p.Counter != "26851704" || p.Interval != 10 {
		t.Errorf("unexpected project %+v", p)
	}

	fields, err := p.FieldsFor(metrika.Hits)
	if err != nil || len(fields) != 2 || fields[1] != "ym:pv:clientID" {
		t.Errorf("FieldsFor(hits) = %v, %v", fields, err)
	}

	rng, err := p.HistoryRange()
	if err != nil {
		t.Fatalf("HistoryRange: %v", err)
	}
	if rng.Days() != 31 {
		t.Errorf("HistoryRange days = %d", rng.Days())
	}

	if got := p.TableFor(metrika.Visits, true); got != "DFSA_427_data_03_visits" {
		t.Errorf("TableFor multi = %q", got)
	}
	if got := p.TableFor(metrika.Visits, false); got != "DFSA_427_data_03" {
		t.Errorf("TableFor single = %q", got)
	}
	if got := p.DatedTableFor(metrika.Hits, false, rng); got != "DFSA_427_data_03_20230301_20230331" {
		t.Errorf("DatedTableFor = %q", got)
	}
}

func TestParseProject_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no counter", "table: t\nfields:\n  hits: [a]\n"},
		{"no table", "counter: '1'\nfields:\n  hits: [a]\n"},
		{"no fields", "counter: '1'\ntable: t\n"},
		{"bad source", "counter: '1'\ntable: t\nfields:\n  sessions: [a]\n"},
		{"all is not a source", "counter: '1'\ntable: t\nfields:\n  all: [a]\n"},
		{"not yaml", "counter: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProject([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadProject_RejectsPathTraversal(t *testing.T) {
	if _, err := LoadProject(t.TempDir(), "../etc/passwd"); err == nil {
		t.Error("expected error")
	}
}
