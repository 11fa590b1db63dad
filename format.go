package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ozenc/takvim/internal/gcal"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// eventRow is the display projection of an event for table output.
type eventRow struct {
	ID       string
	Start    string
	End      string
	Title    string
	Calendar string
	AllDay   bool
}

func toRows(events []gcal.Event) []eventRow {
	rows := make([]eventRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, eventRow{
			ID:       ev.ID,
			Start:    formatEventTime(ev.Start, ev.AllDay),
			End:      formatEventTime(ev.End, ev.AllDay),
			Title:    ev.Title,
			Calendar: ev.CalendarID,
			AllDay:   ev.AllDay,
		})
	}

	return rows
}

// printEvents writes events as an aligned table.
func printEvents(w io.Writer, rows []eventRow) {
	headers := []string{"START", "END", "TITLE", "CALENDAR", "ID"}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		title := r.Title
		if r.AllDay {
			title += " (all day)"
		}

		cells = append(cells, []string{r.Start, r.End, title, r.Calendar, r.ID})
	}

	printTable(w, headers, cells)
}

// formatEventTime compacts a wall-clock or date value for display.
func formatEventTime(s string, allDay bool) string {
	if allDay {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.Format("Jan _2 2006")
		}

		return s
	}

	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return formatTime(t)
	}

	return s
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
