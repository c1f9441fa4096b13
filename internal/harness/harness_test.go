package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			res, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/start_stop_cycle.yaml")
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 5; i++ {
		res, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		data, err := MarshalTrace(scenario.Name, res)
		require.NoError(t, err)
		if first == nil {
			first = data
			continue
		}
		assert.Equal(t, string(first), string(data), "run %d", i)
	}
}

func TestRun_UnexpectedStepErrorFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unexpected
description: start is denied but the scenario expects success
script:
  cameras: [{id: cam-back, label: Back Camera}]
  attach_errors: {cam-back: device_busy}
steps:
  - do: start
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `expected error "", got "device_busy"`)
}

func TestRun_FailedAssertions(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
description: every assertion is wrong
script:
  cameras: [{id: cam-back, label: Back Camera}]
  frames:
    - text: hello world
steps:
  - do: start
  - do: wait
assertions:
  - {type: final_state, state: cameras_enumerated}
  - {type: stats, stats: {results: 7}}
  - {type: trace_count, event: "result:student", count: 1}
  - {type: trace_order, events: ["warning", "result:unknown"]}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 4)
	assert.Contains(t, res.Errors[0], "Expected: cameras_enumerated")
	assert.Contains(t, res.Errors[0], "Actual: scanning")
	assert.Contains(t, res.Errors[1], "results=1 (want 7)")
	assert.Contains(t, res.Errors[2], "result:student x0")
	assert.Contains(t, res.Errors[3], "missing warning")

	assert.Equal(t, 1, res.Final.Acquired)
	assert.Equal(t, 1, res.Final.Released, "the harness closes the manager")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: y\nsteps: [{do: start}]\nflow: []\n",
			want: "flow",
		},
		{
			name: "missing name",
			yaml: "description: y\nsteps: [{do: start}]\n",
			want: "name is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: y\n",
			want: "steps list is required",
		},
		{
			name: "unknown step",
			yaml: "name: x\ndescription: y\nsteps: [{do: pause}]\n",
			want: `unknown step "pause"`,
		},
		{
			name: "switch without camera",
			yaml: "name: x\ndescription: y\nsteps: [{do: switch}]\n",
			want: "camera is required for switch",
		},
		{
			name: "start with camera",
			yaml: "name: x\ndescription: y\nsteps: [{do: start, camera: a}]\n",
			want: "start does not take a camera",
		},
		{
			name: "unknown stat",
			yaml: "name: x\ndescription: y\nsteps: [{do: start}]\nassertions: [{type: stats, stats: {frames: 1}}]\n",
			want: `unknown stat "frames"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: y\nsteps: [{do: start}]\nassertions: [{type: final_state_eq}]\n",
			want: `unknown assertion type "final_state_eq"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/absent.yaml")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to read scenario file"))
}

func TestTraceEvent_Label(t *testing.T) {
	assert.Equal(t, "result:school", TraceEvent{Type: EventResult, Kind: "school"}.Label())
	assert.Equal(t, "warning", TraceEvent{Type: EventWarning, Error: "x"}.Label())
}
