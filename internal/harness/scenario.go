package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner/replay"
)

// Scenario is one scan scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Script drives the simulated cameras.
	Script replay.Script `yaml:"script"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one manager operation.
type Step struct {
	// Do is one of the Step* constants.
	Do string `yaml:"do"`

	// Camera is the camera ID for select and switch.
	Camera string `yaml:"camera,omitempty"`

	// ExpectError is the error name the step must fail with
	// (a scanner cause such as "permission_denied", or "closed",
	// "unknown_camera", "session_active"). Empty means success.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step names.
const (
	StepEnumerate = "enumerate"
	StepSelect    = "select"
	StepStart     = "start"
	StepStop      = "stop"
	StepSwitch    = "switch"
	StepWait      = "wait"
	StepClose     = "close"
)

var needsCamera = map[string]bool{
	StepEnumerate: false,
	StepSelect:    true,
	StepStart:     false,
	StepStop:      false,
	StepSwitch:    true,
	StepWait:      false,
	StepClose:     false,
}

// Assertion checks the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// State is the expected final manager state (final_state).
	State string `yaml:"state,omitempty"`

	// Stats is a subset of scanner.Stats by JSON name (stats).
	Stats map[string]int64 `yaml:"stats,omitempty"`

	// Event is an event label such as "result:student" (trace_count).
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Events are labels that must appear in this order (trace_order).
	Events []string `yaml:"events,omitempty"`
}

// Assertion types.
const (
	AssertFinalState = "final_state"
	AssertStats      = "stats"
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
	AssertNoLeaks    = "no_leaks"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		camera, known := needsCamera[step.Do]
		if !known {
			return fmt.Errorf("steps[%d]: unknown step %q", i, step.Do)
		}
		if camera && step.Camera == "" {
			return fmt.Errorf("steps[%d]: camera is required for %s", i, step.Do)
		}
		if !camera && step.Camera != "" {
			return fmt.Errorf("steps[%d]: %s does not take a camera", i, step.Do)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertStats:
		if len(a.Stats) == 0 {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
		for name := range a.Stats {
			if _, ok := statsByName(scanner.Stats{})[name]; !ok {
				return fmt.Errorf("assertions[%d]: unknown stat %q", index, name)
			}
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertNoLeaks:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
