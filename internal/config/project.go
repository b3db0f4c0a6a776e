package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/youpoison/YM-Logs-API/internal/daterange"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
)

var projectName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Project is one export target, read from <PROJECTS_DIR>/<name>.yaml.
type Project struct {
	Name      string              `yaml:"-"`
	Counter   string              `yaml:"counter"`
	Table     string              `yaml:"table"`
	Email     string              `yaml:"email"`
	Interval  int                 `yaml:"interval"`
	StartDate string              `yaml:"start_date"`
	EndDate   string              `yaml:"end_date"`
	Fields    map[string][]string `yaml:"fields"`
}

// LoadProject reads and validates the named project.
func LoadProject(dir, name string) (*Project, error) {
	if !projectName.MatchString(name) {
		return nil, fmt.Errorf("invalid project name %q", name)
	}
	path := filepath.Join(dir, name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}
	p, err := ParseProject(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Name = name
	return p, nil
}

// ParseProject decodes a project document.
func ParseProject(raw []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid project file: %w", err)
	}
	if p.Counter == "" {
		return nil, errors.New("counter is required")
	}
	if p.Table == "" {
		return nil, errors.New("table is required")
	}
	if len(p.Fields) == 0 {
		return nil, errors.New("fields are required")
	}
	for src := range p.Fields {
		if _, err := metrika.ParseSources(src); err != nil || src == "all" {
			return nil, fmt.Errorf("fields: unknown source %q", src)
		}
	}
	return &p, nil
}

// FieldsFor returns the configured field list of source.
func (p *Project) FieldsFor(source metrika.Source) ([]string, error) {
	f := p.Fields[string(source)]
	if len(f) == 0 {
		return nil, fmt.Errorf("project %s has no fields for %s", p.Name, source)
	}
	return f, nil
}

// HistoryRange is the configured start_date..end_date.
func (p *Project) HistoryRange() (daterange.Range, error) {
	if p.StartDate == "" || p.EndDate == "" {
		return daterange.Range{}, fmt.Errorf("project %s has no start_date/end_date for history mode", p.Name)
	}
	return daterange.ParseRange(p.StartDate, p.EndDate)
}

// TableFor names the destination table. With several sources each gets its own
// table suffixed by the source name.
func (p *Project) TableFor(source metrika.Source, multi bool) string {
	if multi {
		return p.Table + "_" + string(source)
	}
	return p.Table
}

// DatedTableFor names the table of a recurring run, so that every run of the
// regular and auto modes lands in a fresh <table>_<YYYYMMDD>_<YYYYMMDD>.
func (p *Project) DatedTableFor(source metrika.Source, multi bool, rng daterange.Range) string {
	const compact = "20060102"
	return p.TableFor(source, multi) + "_" + rng.Start.Format(compact) + "_" + rng.End.Format(compact)
}
