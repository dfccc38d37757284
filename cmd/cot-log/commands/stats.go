package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/omnitak/cot-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Units             map[string]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Units:             make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++
		if event.Category == log.CategoryError {
			stats.Errors++
		}
		if event.UID != "" {
			stats.Units[event.UID]++
		}

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if stats.TotalEvents == 0 {
		return
	}

	duration := stats.TimeRange.End.Sub(stats.TimeRange.Start)
	fmt.Fprintf(w, "Time range:   %s to %s (%s)\n",
		stats.TimeRange.Start.Format(time.RFC3339),
		stats.TimeRange.End.Format(time.RFC3339),
		duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Errors:       %d\n", stats.Errors)

	fmt.Fprintln(w, "\nBy layer:")
	for layer := log.LayerTransport; layer <= log.LayerDispatch; layer++ {
		if n := stats.EventsByLayer[layer]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", layer, n)
		}
	}

	fmt.Fprintln(w, "\nBy direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if n := stats.EventsByDirection[dir]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", dir, n)
		}
	}

	if len(stats.Units) > 0 {
		uids := make([]string, 0, len(stats.Units))
		for uid := range stats.Units {
			uids = append(uids, uid)
		}
		sort.Slice(uids, func(i, j int) bool {
			return stats.Units[uids[i]] > stats.Units[uids[j]]
		})

		fmt.Fprintf(w, "\nUnits (%d):\n", len(uids))
		for i, uid := range uids {
			if i >= 10 {
				fmt.Fprintf(w, "  ... and %d more\n", len(uids)-10)
				break
			}
			fmt.Fprintf(w, "  %-40s %d events\n", uid, stats.Units[uid])
		}
	}
}
