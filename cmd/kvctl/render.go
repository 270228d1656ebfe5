package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-kv/pkg/command"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Width(18)

	metricStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Width(42)

	tombstoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8800"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

func row(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

func renderStats(dataDir string, s lsm.Stats, tables []string) string {
	rows := []string{
		titleStyle.Render("Engine " + dataDir),
		"",
		row("Writes", s.WriteCount),
		row("Reads", s.ReadCount),
		row("Flushes", s.FlushCount),
		row("Tombstones cached", s.TombstonesCached),
		row("MemTable keys", s.MemTableLen),
		row("MemTable bytes", s.MemTableBytes),
		row("WAL bytes", s.WALBytes),
		row("Tables", s.TableCount),
	}
	if s.FlushFailed {
		rows = append(rows, errorStyle.Render("flush failed: writes are rejected"))
	}
	for _, t := range tables {
		rows = append(rows, mutedStyle.Render("  "+filepath.Base(t)))
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func renderTable(table *lsm.SSTable, commands []command.Command) string {
	f := table.Footer()

	header := []string{
		titleStyle.Render("Table " + filepath.Base(table.Path())),
		"",
		row("Size", table.Size()),
		row("Data", fmt.Sprintf("%d +%d", f.DataStart, f.DataLen)),
		row("Index", fmt.Sprintf("%d +%d", f.IndexStart, f.IndexLen)),
		row("Segment size", f.SegmentSize),
		row("Version", f.Version),
		row("Commands", len(commands)),
	}
	if ts := table.CreatedAt(); ts > 0 {
		header = append(header, row("Created", time.UnixMilli(ts).UTC().Format(time.RFC3339Nano)))
	}

	index := []string{titleStyle.Render("Sparse index")}
	for i, p := range table.Index() {
		index = append(index, fmt.Sprintf("%4d  %-20q offset=%d length=%d", i, p.Key, p.Offset, p.Length))
	}

	body := []string{titleStyle.Render("Commands")}
	for _, c := range commands {
		if c.IsTombstone() {
			body = append(body, tombstoneStyle.Render(c.String()))
			continue
		}
		body = append(body, c.String())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		boxStyle.Render(strings.Join(header, "\n")),
		boxStyle.Render(strings.Join(index, "\n")),
		boxStyle.Render(strings.Join(body, "\n")),
	)
}

// renderMetrics lists every gathered metric family with its value summed
// across labels. Histograms report their sample count.
func renderMetrics(registry *metrics.Registry) (string, error) {
	families, err := registry.GetPrometheusRegistry().Gather()
	if err != nil {
		return "", err
	}

	rows := []string{titleStyle.Render("Metrics (this process)"), ""}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		rows = append(rows, metricStyle.Render(mf.GetName())+fmt.Sprint(total))
	}
	return boxStyle.Render(strings.Join(rows, "\n")), nil
}
