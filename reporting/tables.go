package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pome-lang/pome-harness/types"
)

// errorColumnWidth bounds the error column so long stderr dumps stay readable.
const errorColumnWidth = 80

// PrintTestTable renders every verdict of a run as a table.
func PrintTestTable(out io.Writer, runID string, verdicts []types.Verdict, summary types.Summary, duration time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("Pome Test Results (%s)", formatDuration(duration)))

	t.AppendHeader(table.Row{"#", "Script", "Expectation", "Exit", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Script", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: errorColumnWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, v := range verdicts {
		exit, duration := "-", "-"
		if v.Result != nil {
			exit = fmt.Sprintf("%d", v.Result.ExitCode)
			duration = formatDuration(v.Result.Duration)
		}
		t.AppendRow(table.Row{
			i + 1,
			v.Case.Path,
			v.Case.Expectation.String(),
			exit,
			duration,
			statusString(v.Passed),
			verdictError(v),
		})
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{"", "TOTAL", "", "", formatDuration(duration), statusString(summary.OK()), summary.String()})
	if runID != "" {
		t.SetCaption("run %s", runID)
	}

	if summary.OK() {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}

// PrintBenchTable renders the records of a benchmark run. Scripts that produced
// no record are listed with their failure.
func PrintBenchTable(out io.Writer, records []types.BenchmarkRecord, failures map[string]string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Pome Benchmark Summary")

	t.AppendHeader(table.Row{"Script", "Wall", "User", "Sys", "Peak RSS", "Internal"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Wall", Align: text.AlignRight},
		{Name: "User", Align: text.AlignRight},
		{Name: "Sys", Align: text.AlignRight},
		{Name: "Peak RSS", Align: text.AlignRight},
		{Name: "Internal", WidthMax: errorColumnWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	var total time.Duration
	for _, r := range records {
		user, sys, rss := "-", "-", "-"
		if r.Usage != nil {
			user = FormatSeconds(r.Usage.UserTime)
			sys = FormatSeconds(r.Usage.SystemTime)
			if r.Usage.MaxRSSBytes > 0 {
				rss = FormatBytes(r.Usage.MaxRSSBytes)
			}
		}
		t.AppendRow(table.Row{r.Script, FormatSeconds(r.WallTime), user, sys, rss, strings.Join(r.Internal, "\n")})
		total += r.WallTime
	}
	for script, reason := range failures {
		t.AppendRow(table.Row{script, "-", "-", "-", "-", "✗ " + reason})
	}
	t.SortBy([]table.SortBy{{Name: "Script", Mode: table.Asc}})

	t.AppendFooter(table.Row{fmt.Sprintf("%d ok / %d failed", len(records), len(failures)), FormatSeconds(total), "", "", "", ""})
	if len(failures) == 0 {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}

func statusString(passed bool) string {
	if passed {
		return "✓ pass"
	}
	return "✗ fail"
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func verdictError(v types.Verdict) string {
	if v.Passed {
		return ""
	}
	if v.LaunchErr != nil {
		return v.LaunchErr.Error()
	}
	if msg := KeyErrorLine(v.Stderr()); msg != "" {
		return msg
	}
	return v.Reason
}

// errorPatterns mark the stderr line most likely to explain a failure.
var errorPatterns = []string{
	"Error:",
	"error:",
	"panic:",
	"Exception",
	"expected",
	"Expected",
}

// KeyErrorLine picks the most telling line out of a script's stderr, with ANSI
// escapes removed. It falls back to the last non-empty line.
func KeyErrorLine(stderr string) string {
	clean := stripansi.Strip(stderr)
	var last string
	for _, line := range strings.Split(clean, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, pattern := range errorPatterns {
			if strings.Contains(line, pattern) {
				return line
			}
		}
		last = line
	}
	return last
}
