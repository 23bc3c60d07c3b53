package harness

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/expect"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRunID() string { return uuid.New().String() }

// Report aggregates the results of a suite run.
type Report struct {
	RunID     string                                `json:"runId"`
	Suite     string                                `json:"suite"`
	Runner    string                                `json:"runner"`
	Results   []*Result                             `json:"results"`
	Counts    map[expect.Status]int                 `json:"counts"`
	ByBrowser map[schemas.Tag]map[expect.Status]int `json:"byBrowser"`
	Duration  time.Duration                         `json:"duration"`
}

// NewReport creates an empty report.
func NewReport(runID, suite, runner string) *Report {
	return &Report{
		RunID:     runID,
		Suite:     suite,
		Runner:    runner,
		Counts:    make(map[expect.Status]int),
		ByBrowser: make(map[schemas.Tag]map[expect.Status]int),
	}
}

// Add records one result.
func (r *Report) Add(res *Result) {
	r.Results = append(r.Results, res)
	r.Counts[res.Status]++
	per := r.ByBrowser[res.Browser]
	if per == nil {
		per = make(map[expect.Status]int)
		r.ByBrowser[res.Browser] = per
	}
	per[res.Status]++
}

// Merge appends the results of other.
func (r *Report) Merge(other *Report) {
	for _, res := range other.Results {
		r.Add(res)
	}
	r.Duration += other.Duration
}

// Failed reports whether any result fails the run.
func (r *Report) Failed() bool {
	for status, n := range r.Counts {
		if n > 0 && status.IsFailure() {
			return true
		}
	}
	return false
}

// Failures returns the failing results.
func (r *Report) Failures() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res.Status.IsFailure() {
			out = append(out, res)
		}
	}
	return out
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

var statusOrder = []expect.Status{
	expect.StatusPassed,
	expect.StatusFailed,
	expect.StatusKnownDivergence,
	expect.StatusUnexpectedPass,
	expect.StatusErrored,
}

// WriteText writes a human readable summary followed by every failure.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Suite %s (%s runner), %d results in %s\n\n", r.Suite, r.Runner, len(r.Results), r.Duration.Round(time.Millisecond))

	header := []string{"BROWSER"}
	for _, s := range statusOrder {
		header = append(header, strings.ToUpper(string(s)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	tags := make([]string, 0, len(r.ByBrowser))
	for t := range r.ByBrowser {
		tags = append(tags, string(t))
	}
	sort.Strings(tags)
	for _, t := range tags {
		row := []string{t}
		for _, s := range statusOrder {
			row = append(row, fmt.Sprint(r.ByBrowser[schemas.Tag(t)][s]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	total := []string{"TOTAL"}
	for _, s := range statusOrder {
		total = append(total, fmt.Sprint(r.Counts[s]))
	}
	fmt.Fprintln(tw, strings.Join(total, "\t"))
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, res := range r.Failures() {
		fmt.Fprintf(w, "\n%s [%s] %s\n", strings.ToUpper(string(res.Status)), res.Browser, res.Case)
		switch res.Status {
		case expect.StatusErrored:
			fmt.Fprintf(w, "  error: %s\n", res.Error)
		case expect.StatusUnexpectedPass:
			fmt.Fprintf(w, "  passed with %q; remove the not-yet-implemented marker\n", res.Actual)
		default:
			fmt.Fprintf(w, "  expected: %q\n  actual:   %q\n", res.Expected, res.Actual)
			if res.Diff != "" {
				fmt.Fprintf(w, "%s\n", indent(res.Diff, "  "))
			}
		}
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
