package harness

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"
)

// Status of a scenario.
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result of a single scenario.
type Result struct {
	Title    string
	Status   Status
	Err      error
	GasUsed  uint64
	Duration time.Duration
}

// Report of a suite run.
type Report struct {
	Network    string
	SkipReason string // set when the whole suite was skipped
	Results    []Result
}

func (r Report) count(s Status) int {
	return lo.CountBy(r.Results, func(res Result) bool { return res.Status == s })
}

func (r Report) Passed() int  { return r.count(StatusPassed) }
func (r Report) Failed() int  { return r.count(StatusFailed) }
func (r Report) Skipped() int { return r.count(StatusSkipped) }

// OK reports whether nothing failed. A skipped suite is OK.
func (r Report) OK() bool { return r.Failed() == 0 }

// Failures returns the failed results.
func (r Report) Failures() []Result {
	return lo.Filter(r.Results, func(res Result, _ int) bool { return res.Status == StatusFailed })
}

var (
	passMark = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	skipMark = color.New(color.FgCyan).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

// Render writes a mocha style summary followed by a table.
func (r Report) Render(w io.Writer) {
	fmt.Fprintf(w, "\n  FundMe on %s\n", r.Network)
	if r.SkipReason != "" {
		fmt.Fprintf(w, "    %s\n", skipMark("- skipped: "+r.SkipReason))
	}
	for _, res := range r.Results {
		switch res.Status {
		case StatusPassed:
			fmt.Fprintf(w, "    %s %s %s\n", passMark("✔"), res.Title, dim(fmt.Sprintf("(%dms)", res.Duration.Milliseconds())))
		case StatusFailed:
			fmt.Fprintf(w, "    %s %s\n", failMark("✖"), res.Title)
		default:
			fmt.Fprintf(w, "    %s\n", skipMark("- "+res.Title))
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Scenario", "Status", "Gas used", "Time"})
	for i, res := range r.Results {
		gas := "-"
		if res.GasUsed > 0 {
			gas = fmt.Sprintf("%d", res.GasUsed)
		}
		t.AppendRow(table.Row{i + 1, res.Title, res.Status, gas, res.Duration.Round(time.Millisecond)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d passing", r.Passed()), fmt.Sprintf("%d failing", r.Failed()), fmt.Sprintf("%d pending", r.Skipped())})
	t.Render()

	for i, res := range r.Failures() {
		fmt.Fprintf(w, "\n  %d) %s\n     %s\n", i+1, res.Title, failMark(res.Err))
	}
}
