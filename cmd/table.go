package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/change-monitor/internal/model"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// resultsTable renders one row per checked URL.
func resultsTable(runs []*model.Run) string {
	headers := []string{"ENTITY", "URL", "STATUS", "MAGNITUDE", "THRESHOLD", "SCORE", "SIGNIFICANT"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}

	var rows [][]string
	for _, run := range runs {
		for _, res := range run.Results {
			status := string(res.Status)
			if res.Error != "" {
				status = truncate(res.Error, 40)
			}
			rows = append(rows, []string{
				run.EntityID,
				truncate(res.URL, 50),
				status,
				formatMagnitude(res.ChangeMagnitude),
				strconv.FormatFloat(res.Threshold, 'f', -1, 64),
				formatScore(res.Score),
				yesNo(res.IsSignificant),
			})
		}
	}
	return renderTable(headers, rows, aligns)
}

// runsTable renders one row per recorded run.
func runsTable(runs []model.Run) string {
	headers := []string{"ID", "ENTITY", "STARTED", "DURATION", "URLS", "ERRORS", "CHANGED", "SIGNIFICANT", "MAX SCORE"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		maxScore := "-"
		if r.Summary.MaxScore != nil {
			maxScore = strconv.Itoa(*r.Summary.MaxScore)
		}
		rows = append(rows, []string{
			truncateID(r.ID),
			r.EntityID,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond).String(),
			strconv.Itoa(r.Summary.TotalURLs),
			strconv.Itoa(r.Summary.Errors),
			strconv.Itoa(r.Summary.Changed),
			strconv.Itoa(r.Summary.Significant),
			maxScore,
		})
	}
	return renderTable(headers, rows, aligns)
}

func formatMagnitude(m *float64) string {
	if m == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *m)
}

func formatScore(s *model.ScoreResult) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%d (%s)", s.Score, s.Method)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
