package targets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/change-monitor/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Monitors")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "targets.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

var want = []model.MonitorTarget{
	{EntityID: "acme", URLs: []string{"https://acme.com", "https://acme.com/news"}},
	{EntityID: "globex", URLs: []string{"https://globex.com/press"}},
}

func TestLoad_YAMLList(t *testing.T) {
	path := writeFile(t, "targets.yaml", `
- entity_id: acme
  urls:
    - https://acme.com
    - https://acme.com/news
    - https://acme.com
- entity_id: globex
  urls: [https://globex.com/press]
`)
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_YAMLDocument(t *testing.T) {
	path := writeFile(t, "targets.yml", `
targets:
  - entity_id: acme
    urls: [https://acme.com]
  - entity_id: globex
    urls: [https://globex.com/press]
  - entity_id: acme
    urls: [https://acme.com/news]
`)
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "targets.csv", strings.Join([]string{
		"entity_id,url",
		"acme,https://acme.com",
		"# paused: initech,https://initech.com",
		"globex, https://globex.com/press",
		"",
		"acme,https://acme.com/news",
		"acme,https://acme.com",
		"orphan",
		",https://nobody.com",
	}, "\n"))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Entity", "URL"},
		{"acme", "https://acme.com"},
		{"globex", "https://globex.com/press"},
		{"acme", "https://acme.com/news"},
		{"", ""},
	})

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "targets.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets: open csv")

	_, err = Load(filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")

	bad := writeFile(t, "bad.yaml", "targets: [entity_id: : :")
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets: parse yaml")
}

func TestFromRows_HeaderOnlyOnFirstRow(t *testing.T) {
	got := FromRows([][]string{
		{"acme", "https://acme.com"},
		{"entity", "url"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "entity", got[1].EntityID)
}

func TestMerge(t *testing.T) {
	got := Merge(
		[]model.MonitorTarget{{EntityID: "acme", URLs: []string{"https://acme.com"}}},
		[]model.MonitorTarget{
			{EntityID: "globex", URLs: []string{"https://globex.com/press"}},
			{EntityID: "acme", URLs: []string{"https://acme.com/news", "https://acme.com"}},
			{EntityID: "empty"},
		},
	)
	assert.Equal(t, want, got)
}
