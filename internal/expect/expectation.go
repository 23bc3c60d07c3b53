// File: internal/expect/expectation.go
package expect

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// Expectation is a browser-conditional expected alert list. Default applies
// to every browser without a more specific override.
type Expectation struct {
	Default   []string
	Overrides map[schemas.Tag][]string
	// NotYetImplemented marks browsers whose divergence is known and accepted.
	NotYetImplemented map[schemas.Tag]bool
}

// Alerts starts an expectation whose default vector is the given values.
// Called without arguments it expects no alerts at all.
func Alerts(values ...string) *Expectation {
	return &Expectation{Default: append([]string{}, values...)}
}

// For adds an override for a tag or family and returns the expectation for chaining.
func (e *Expectation) For(tag schemas.Tag, values ...string) *Expectation {
	if e.Overrides == nil {
		e.Overrides = make(map[schemas.Tag][]string)
	}
	if tag == schemas.TagDefault {
		e.Default = append([]string{}, values...)
		return e
	}
	e.Overrides[tag] = append([]string{}, values...)
	return e
}

// NYI marks one or more tags as not yet implemented.
func (e *Expectation) NYI(tags ...schemas.Tag) *Expectation {
	if e.NotYetImplemented == nil {
		e.NotYetImplemented = make(map[schemas.Tag]bool)
	}
	for _, t := range tags {
		e.NotYetImplemented[t] = true
	}
	return e
}

// Resolve picks the vector for a browser tag: the exact tag first, then its
// family, then the default. The second result reports whether the browser is
// marked not-yet-implemented (exactly or through its family).
func (e *Expectation) Resolve(tag schemas.Tag) ([]string, bool) {
	if e == nil {
		return nil, false
	}
	nyi := e.NotYetImplemented[tag] || e.NotYetImplemented[tag.Family()]
	if v, ok := e.Overrides[tag]; ok {
		return v, nyi
	}
	if v, ok := e.Overrides[tag.Family()]; ok {
		return v, nyi
	}
	return e.Default, nyi
}

// ResolveFor is Resolve for a concrete browser version.
func (e *Expectation) ResolveFor(b schemas.BrowserVersion) ([]string, bool) {
	return e.Resolve(b.Tag)
}

// Status classifies the outcome of one case on one browser.
type Status string

const (
	StatusPassed          Status = "passed"
	StatusFailed          Status = "failed"
	StatusKnownDivergence Status = "known-divergence"
	// StatusUnexpectedPass is a case marked not-yet-implemented that passed.
	StatusUnexpectedPass Status = "unexpected-pass"
	// StatusErrored means the page could not be run at all.
	StatusErrored Status = "errored"
)

// IsFailure reports whether the status should fail a run.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusUnexpectedPass || s == StatusErrored
}

// Verdict is the judged outcome of comparing one capture.
type Verdict struct {
	Status   Status
	Expected []string
	// Mismatch is set whenever the lists differ, including known divergences.
	Mismatch *Mismatch
}

// Judge resolves the expectation for tag, compares it against actual and
// classifies the result.
func (e *Expectation) Judge(tag schemas.Tag, actual []string) Verdict {
	expected, nyi := e.Resolve(tag)
	v := Verdict{Expected: expected}
	if err := Compare(expected, actual); err != nil {
		v.Mismatch = err.(*Mismatch)
		if nyi {
			v.Status = StatusKnownDivergence
		} else {
			v.Status = StatusFailed
		}
		return v
	}
	if nyi {
		v.Status = StatusUnexpectedPass
	} else {
		v.Status = StatusPassed
	}
	return v
}

// String renders the expectation compactly for logs and reports.
func (e *Expectation) String() string {
	if e == nil {
		return "<none>"
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("DEFAULT=%q", e.Default))
	tags := make([]string, 0, len(e.Overrides))
	for t := range e.Overrides {
		tags = append(tags, string(t))
	}
	sort.Strings(tags)
	for _, t := range tags {
		parts = append(parts, fmt.Sprintf("%s=%q", t, e.Overrides[schemas.Tag(t)]))
	}
	if len(e.NotYetImplemented) > 0 {
		nyi := make([]string, 0, len(e.NotYetImplemented))
		for t, on := range e.NotYetImplemented {
			if on {
				nyi = append(nyi, string(t))
			}
		}
		sort.Strings(nyi)
		parts = append(parts, "NYI="+strings.Join(nyi, ","))
	}
	return strings.Join(parts, " ")
}

// UnmarshalYAML reads the fixture form:
//
//	expect:
//	  default: [a, b]
//	  IE8: [c]
//	  nyi: [FF60]
//
// A bare sequence is shorthand for a default-only expectation.
func (e *Expectation) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var list []string
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("expectation: %w", err)
		}
		*e = Expectation{Default: list}
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("expectation: line %d: expected a list or a mapping", value.Line)
	}

	out := Expectation{Default: []string{}}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := strings.TrimSpace(value.Content[i].Value)
		node := value.Content[i+1]

		if strings.EqualFold(key, "nyi") {
			var tags []string
			if err := node.Decode(&tags); err != nil {
				return fmt.Errorf("expectation: nyi: %w", err)
			}
			for _, raw := range tags {
				t, err := schemas.ParseTag(raw)
				if err != nil {
					return fmt.Errorf("expectation: nyi: %w", err)
				}
				out.NYI(t)
			}
			continue
		}

		var list []string
		if err := node.Decode(&list); err != nil {
			return fmt.Errorf("expectation: %s: %w", key, err)
		}
		t, err := schemas.ParseTag(key)
		if err != nil {
			return fmt.Errorf("expectation: %w", err)
		}
		out.For(t, list...)
	}
	*e = out
	return nil
}

// MarshalYAML writes the same form UnmarshalYAML reads.
func (e Expectation) MarshalYAML() (interface{}, error) {
	m := map[string]interface{}{"default": nonNil(e.Default)}
	for t, v := range e.Overrides {
		m[string(t)] = v
	}
	if len(e.NotYetImplemented) > 0 {
		var nyi []string
		for t, on := range e.NotYetImplemented {
			if on {
				nyi = append(nyi, string(t))
			}
		}
		sort.Strings(nyi)
		m["nyi"] = nyi
	}
	return m, nil
}
