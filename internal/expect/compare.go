// File: internal/expect/compare.go
package expect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Mismatch describes the first position at which a captured alert list
// diverges from its expectation.
type Mismatch struct {
	// Index is the first divergent position.
	Index    int
	Expected []string
	Actual   []string
	// Diff is a go-cmp rendering of expected versus actual.
	Diff string
}

// absent is how a missing element is rendered in messages.
const absent = "<absent>"

func at(list []string, i int) string {
	if i < len(list) {
		return strconv.Quote(list[i])
	}
	return absent
}

// ExpectedAt returns the quoted expected value at Index, or "<absent>".
func (m *Mismatch) ExpectedAt() string { return at(m.Expected, m.Index) }

// ActualAt returns the quoted actual value at Index, or "<absent>".
func (m *Mismatch) ActualAt() string { return at(m.Actual, m.Index) }

func (m *Mismatch) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "alerts differ at index %d: expected %s, got %s", m.Index, m.ExpectedAt(), m.ActualAt())
	if len(m.Expected) != len(m.Actual) {
		fmt.Fprintf(&b, " (expected %d alerts, got %d)", len(m.Expected), len(m.Actual))
	}
	if m.Diff != "" {
		b.WriteString("\n-expected +actual:\n")
		b.WriteString(m.Diff)
	}
	return b.String()
}

// Compare checks a captured alert list against the expected one. Equality is
// positional and exact; nil and empty lists are equal. It returns nil or a
// *Mismatch.
func Compare(expected, actual []string) error {
	n := len(expected)
	if len(actual) < n {
		n = len(actual)
	}
	idx := -1
	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			idx = i
			break
		}
	}
	if idx < 0 {
		if len(expected) == len(actual) {
			return nil
		}
		idx = n
	}
	return &Mismatch{
		Index:    idx,
		Expected: copyOf(expected),
		Actual:   copyOf(actual),
		Diff:     cmp.Diff(nonNil(expected), nonNil(actual)),
	}
}

func copyOf(s []string) []string {
	return append([]string(nil), s...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// TestingT is the subset of testing.TB used by AssertAlerts; it matches
// testify's assert.TestingT plus Helper.
type TestingT interface {
	Errorf(format string, args ...interface{})
	Helper()
}

// AssertAlerts reports a test failure when actual differs from expected.
// It returns true when the lists are equal.
func AssertAlerts(t TestingT, expected, actual []string) bool {
	t.Helper()
	if err := Compare(expected, actual); err != nil {
		t.Errorf("%s", err.Error())
		return false
	}
	return true
}
