package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DailyReport summarizes the metrics of the 24 hours before now.
func (s *Store) DailyReport(ctx context.Context, now time.Time) (string, error) {
	events, err := s.Metrics(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return "", err
	}
	return RenderDailyReport(events, now), nil
}

func RenderDailyReport(events []MetricEvent, now time.Time) string {
	byKind := map[string]int{}
	byContact := map[string]int{}
	for _, event := range events {
		kind := event.Kind
		if kind == "" {
			kind = "unknown"
		}
		byKind[kind]++
		if event.Phone != "" {
			byContact[event.Phone]++
		}
	}
	topContact := "N/A"
	if ranked := rankCounts(byContact); len(ranked) > 0 {
		topContact = ranked[0].key
	}

	var builder strings.Builder
	builder.WriteString("[REPORTE DIARIO]\n")
	fmt.Fprintf(&builder, "Fecha: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&builder, "Eventos 24h: %d\n", len(events))
	fmt.Fprintf(&builder, "Top contacto: %s\n", topContact)
	builder.WriteString("--- EVENTOS POR TIPO ---\n")
	for _, entry := range rankCounts(byKind) {
		fmt.Fprintf(&builder, "- %s: %d\n", entry.key, entry.count)
	}
	return strings.TrimRight(builder.String(), "\n")
}

type countEntry struct {
	key   string
	count int
}

// rankCounts orders by count descending, then key ascending for stable output.
func rankCounts(counts map[string]int) []countEntry {
	entries := make([]countEntry, 0, len(counts))
	for key, count := range counts {
		entries = append(entries, countEntry{key: key, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	return entries
}
