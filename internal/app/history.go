package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"market-signal-alerts/internal/storage"
)

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Task  string
	Limit int
	Clear bool
}

// historyEntry is the task-agnostic projection of one persisted alert record.
type historyEntry struct {
	NotifiedAt time.Time
	Label      string
	Value      string
}

// valueFields maps each task to the record field carrying its headline metric.
var valueFields = map[string]string{
	"fundingrate":  "rate",
	"ratio":        "ratio",
	"openinterest": "changePct",
	"price":        "changePct",
}

// History displays or clears a task's persisted dedupe history.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	kv, closeKV, err := a.openKV(ctx)
	if err != nil {
		return err
	}
	if closeKV != nil {
		defer closeKV()
	}

	key := historyKey(opts.Task)
	if opts.Clear {
		if err := kv.SetItem(ctx, key, []byte("[]")); err != nil {
			return fmt.Errorf("clear history %s: %w", key, err)
		}
		a.Logger.Info().Str("task", opts.Task).Msg("history cleared")
		return nil
	}

	entries, err := readHistory(ctx, kv, key, opts.Task)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no history records found")
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].NotifiedAt.After(entries[j].NotifiedAt)
	})
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Notified (UTC)\tSubject\tValue")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			entry.NotifiedAt.UTC().Format(time.RFC3339),
			sanitizeInline(entry.Label),
			entry.Value,
		)
	}
	return writer.Flush()
}

func readHistory(ctx context.Context, kv storage.KV, key, taskName string) ([]historyEntry, error) {
	raw, err := kv.GetItem(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", key, err)
	}

	entries := make([]historyEntry, 0, len(records))
	for _, record := range records {
		entry := historyEntry{
			Label: stringField(record, "symbol", "title"),
			Value: "-",
		}
		if field, ok := valueFields[taskName]; ok {
			if v, ok := record[field].(float64); ok {
				entry.Value = decimal.NewFromFloat(v).StringFixed(4)
			}
		}
		if ts, ok := record["notifiedAt"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				entry.NotifiedAt = parsed
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func stringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := record[key].(string); ok && v != "" {
			return v
		}
	}
	return "-"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
