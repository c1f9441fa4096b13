package harness

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

// MarshalTrace renders a run as canonical JSON lines: a header, one line
// per step, one line per trace event and the final state.
func MarshalTrace(name string, res *Result) ([]byte, error) {
	lines := []any{map[string]any{"scenario": name}}
	for _, s := range res.Steps {
		lines = append(lines, stepLine(s))
	}
	for _, ev := range res.Trace {
		lines = append(lines, eventLine(ev))
	}
	lines = append(lines, map[string]any{"final": finalLine(res.Final)})

	var buf bytes.Buffer
	for _, line := range lines {
		data, err := qrpayload.MarshalCanonical(line)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func stepLine(s StepOutcome) map[string]any {
	m := map[string]any{"step": s.Step, "state": s.State}
	if s.Camera != "" {
		m["camera"] = s.Camera
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	return m
}

func eventLine(ev TraceEvent) map[string]any {
	m := map[string]any{
		"type":    ev.Type,
		"camera":  ev.Camera,
		"session": ev.Session,
	}
	if ev.Type == EventWarning {
		m["error"] = ev.Error
		return m
	}
	m["seq"] = ev.Seq
	m["kind"] = ev.Kind
	m["scanned_at_ms"] = ev.ScannedAt
	if ev.Entity != "" {
		m["entity"] = ev.Entity
	}
	if ev.Raw != "" {
		m["raw"] = ev.Raw
	}
	if ev.Recorded != nil {
		m["recorded"] = *ev.Recorded
	}
	return m
}

func finalLine(f Final) map[string]any {
	m := map[string]any{
		"state":  f.State,
		"stored": f.Stored,
		"stats": map[string]any{
			"acquired":    f.Stats.Acquired,
			"released":    f.Stats.Released,
			"results":     f.Stats.Results,
			"warnings":    f.Stats.Warnings,
			"suppressed":  f.Stats.Suppressed,
			"dropped":     f.Stats.Dropped,
			"sink_errors": f.Stats.SinkErrors,
		},
		"engine": map[string]any{
			"acquired": f.Acquired,
			"released": f.Released,
		},
	}
	if f.Selected != "" {
		m["selected"] = f.Selected
	}
	return m
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with -update.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return res, AssertGolden(t, scenario.Name, res)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()

	data, err := MarshalTrace(name, res)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
