package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, ev.Label(), ev.Session, ev.Entity)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(res *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(res, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(res *Result, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(res.Final, a)
	case AssertStats:
		return assertStats(res.Final.Stats, a)
	case AssertTraceCount:
		return assertTraceCount(res.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(res.Trace, a)
	case AssertNoLeaks:
		return assertNoLeaks(res.Final)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertFinalState(f Final, a Assertion) error {
	if f.State == a.State {
		return nil
	}
	return &AssertionError{Type: AssertFinalState, Expected: a.State, Actual: f.State}
}

// statsByName keys Stats by their JSON names.
func statsByName(s scanner.Stats) map[string]int64 {
	return map[string]int64{
		"acquired":    s.Acquired,
		"released":    s.Released,
		"results":     s.Results,
		"warnings":    s.Warnings,
		"suppressed":  s.Suppressed,
		"dropped":     s.Dropped,
		"sink_errors": s.SinkErrors,
	}
}

// assertStats checks the named counters only.
func assertStats(s scanner.Stats, a Assertion) error {
	actual := statsByName(s)
	names := make([]string, 0, len(a.Stats))
	for name := range a.Stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var mismatches []string
	for _, name := range names {
		if got := actual[name]; got != a.Stats[name] {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, got, a.Stats[name]))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertStats,
		Expected: fmt.Sprintf("%v", a.Stats),
		Actual:   strings.Join(mismatches, ", "),
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Label() == a.Event {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s x%d", a.Event, a.Count),
		Actual:   fmt.Sprintf("%s x%d", a.Event, count),
		Trace:    trace,
	}
}

// assertTraceOrder checks that the labels occur in order. Other events may
// occur in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Events) && ev.Label() == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("missing %s after %v", a.Events[next], a.Events[:next]),
		Trace:    trace,
	}
}

func assertNoLeaks(f Final) error {
	if f.Acquired == f.Released {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoLeaks,
		Expected: fmt.Sprintf("released == acquired (%d)", f.Acquired),
		Actual:   fmt.Sprintf("released %d", f.Released),
	}
}
