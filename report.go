package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/stat"

	"grid-replanner/planner"
	"grid-replanner/store"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// TimingSummary is the mean and standard deviation of a set of durations.
type TimingSummary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
}

func summarize(durations []time.Duration) TimingSummary {
	if len(durations) == 0 {
		return TimingSummary{}
	}
	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}
	s := TimingSummary{Count: len(xs), Mean: time.Duration(stat.Mean(xs, nil))}
	if len(xs) > 1 {
		s.StdDev = time.Duration(stat.StdDev(xs, nil))
	}
	return s
}

func (s TimingSummary) String() string {
	if s.Count == 0 {
		return "-"
	}
	return fmt.Sprintf("%s ± %s (n=%d)", round(s.Mean), round(s.StdDev), s.Count)
}

// writeRunReport prints one row per map followed by timing summaries.
func writeRunReport(w io.Writer, results []MapResult) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Header = text.FormatDefault
	tbl.AppendHeader(table.Row{"Map", "Start", "Goal", "Search", "Points", "Covered", "Replan", "Encounters", "Detours", "Replan time", "Fallback", "Final"})

	var searches, replans, fallbacks []time.Duration
	solved := 0
	for _, res := range results {
		searches = append(searches, res.SearchDuration)
		replan, replanTime := "-", "-"
		if !res.Search.Empty() {
			replan = stateText(res.Replan.State)
			replanTime = round(res.Replan.Duration).String()
			replans = append(replans, res.Replan.Duration)
		}
		fallback := "-"
		if res.Fallback {
			fallback = round(res.FallbackDuration).String()
			fallbacks = append(fallbacks, res.FallbackDuration)
		}
		final := errorColor.Sprint("no path")
		if res.Solved() {
			solved++
			final = humanize.Comma(int64(len(res.Final)))
		}
		tbl.AppendRow(table.Row{
			res.Index,
			res.Start,
			res.Goal,
			round(res.SearchDuration),
			humanize.Comma(int64(len(res.Search))),
			res.Covered,
			replan,
			res.Replan.Encounters,
			res.Replan.Detours,
			replanTime,
			fallback,
			final,
		})
	}
	tbl.Render()

	fmt.Fprintln(w)
	headerColor.Fprintln(w, "Timing")
	fmt.Fprintf(w, "  grid search:  %s\n", summarize(searches))
	fmt.Fprintf(w, "  replanning:   %s\n", summarize(replans))
	fmt.Fprintf(w, "  fallback:     %s\n", summarize(fallbacks))

	summary := successColor
	if solved < len(results) {
		summary = warningColor
	}
	summary.Fprintf(w, "%s of %s maps solved\n", humanize.Comma(int64(solved)), humanize.Comma(int64(len(results))))
}

// writeHistory prints stored runs.
func writeHistory(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Header = text.FormatDefault
	tbl.AppendHeader(table.Row{"ID", "When", "Map", "Size", "Search", "Replan", "Detours", "Fallback", "Final"})
	for _, r := range runs {
		fallback := "no"
		if r.Fallback {
			fallback = "yes"
		}
		tbl.AppendRow(table.Row{
			shortID(r.ID),
			humanize.Time(r.CreatedAt),
			r.MapIndex,
			r.MapSize,
			round(r.SearchDuration),
			r.ReplanState,
			r.Detours,
			fallback,
			humanize.Comma(int64(r.FinalLength)),
		})
	}
	tbl.Render()
}

func stateText(s planner.State) string {
	switch s {
	case planner.StateSucceeded:
		return successColor.Sprint(s)
	case planner.StateFailed:
		return errorColor.Sprint(s)
	default:
		return s.String()
	}
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
