package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
)

// ExportOptions hold parameters for exporting a task's alert history.
type ExportOptions struct {
	Task      string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders a task's persisted alert history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if _, ok := valueFields[opts.Task]; !ok {
		return fmt.Errorf("task %q has no numeric history to export", opts.Task)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	kv, closeKV, err := a.openKV(ctx)
	if err != nil {
		return err
	}
	if closeKV != nil {
		defer closeKV()
	}

	entries, err := readHistory(ctx, kv, historyKey(opts.Task), opts.Task)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Str("task", opts.Task).Msg("no history records to export")
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].NotifiedAt.Before(entries[j].NotifiedAt)
	})

	downsampled := downsampleEntries(entries, opts.MaxPoints)
	a.Logger.Info().Int("total", len(entries)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, opts.Task, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleEntries(entries []historyEntry, max int) []historyEntry {
	if max <= 0 || len(entries) <= max {
		return entries
	}

	result := make([]historyEntry, 0, max)
	step := float64(len(entries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		result = append(result, entries[idx])
	}
	return result
}

func writeHistoryCSV(path string, entries []historyEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"notified_at", "subject", "value"}); err != nil {
		return err
	}
	for _, entry := range entries {
		record := []string{
			entry.NotifiedAt.UTC().Format(time.RFC3339),
			entry.Label,
			entry.Value,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeHistoryPNG(path, taskName string, entries []historyEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(entries))
	y := make([]float64, 0, len(entries))
	for _, entry := range entries {
		value, err := decimal.NewFromString(entry.Value)
		if err != nil {
			continue
		}
		x = append(x, entry.NotifiedAt)
		y = append(y, value.InexactFloat64())
	}
	if len(x) < 2 {
		return errors.New("not enough numeric history records to chart")
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           valueFields[taskName],
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    taskName,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
