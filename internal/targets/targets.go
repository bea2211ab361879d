// Package targets loads monitor target lists from YAML, CSV or XLSX files.
package targets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/change-monitor/internal/model"
)

// Load reads the target list at path, choosing the format by extension.
func Load(path string) ([]model.MonitorTarget, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "targets: open csv")
		}
		defer f.Close()
		rows, err := ReadCSV(f)
		if err != nil {
			return nil, err
		}
		return FromRows(rows), nil
	case ".xlsx":
		rows, err := ReadXLSX(path)
		if err != nil {
			return nil, err
		}
		return FromRows(rows), nil
	default:
		return nil, eris.Errorf("targets: unsupported file type %q", filepath.Ext(path))
	}
}

// Merge appends extra to base, folding URLs of repeated entities into the
// first occurrence.
func Merge(base, extra []model.MonitorTarget) []model.MonitorTarget {
	g := newGrouper()
	for _, t := range base {
		g.add(t.EntityID, t.URLs...)
	}
	for _, t := range extra {
		g.add(t.EntityID, t.URLs...)
	}
	return g.targets()
}

func loadYAML(path string) ([]model.MonitorTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "targets: read yaml")
	}

	var doc struct {
		Targets []model.MonitorTarget `yaml:"targets"`
	}
	// Accept either a bare list or a document with a targets key.
	var list []model.MonitorTarget
	if err := yaml.Unmarshal(data, &list); err != nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrap(err, "targets: parse yaml")
		}
		list = doc.Targets
	}
	return Merge(nil, list), nil
}

// FromRows groups (entity_id, url) rows into targets in first-seen order.
// A leading header row, blank rows and rows missing either column are
// skipped.
func FromRows(rows [][]string) []model.MonitorTarget {
	g := newGrouper()
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		entity, url := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if i == 0 && isHeader(entity, url) {
			continue
		}
		g.add(entity, url)
	}
	return g.targets()
}

func isHeader(entity, url string) bool {
	return strings.EqualFold(entity, "entity_id") || strings.EqualFold(entity, "entity") ||
		strings.EqualFold(url, "url")
}

type grouper struct {
	order []string
	byID  map[string]*model.MonitorTarget
}

func newGrouper() *grouper {
	return &grouper{byID: make(map[string]*model.MonitorTarget)}
}

func (g *grouper) add(entity string, urls ...string) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return
	}
	t, ok := g.byID[entity]
	if !ok {
		t = &model.MonitorTarget{EntityID: entity}
		g.byID[entity] = t
		g.order = append(g.order, entity)
	}
	t.URLs = append(t.URLs, urls...)
}

func (g *grouper) targets() []model.MonitorTarget {
	out := make([]model.MonitorTarget, 0, len(g.order))
	for _, id := range g.order {
		t := g.byID[id].Normalize()
		if len(t.URLs) == 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}
