package harness

import "github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"

// Trace event types.
const (
	EventResult  = "result"
	EventWarning = "warning"
)

// StepOutcome is what one step returned.
type StepOutcome struct {
	Step   string `json:"step"`
	Camera string `json:"camera,omitempty"`
	Error  string `json:"error,omitempty"` // error name, empty on success
	State  string `json:"state"`           // manager state after the step
}

// TraceEvent is something the manager delivered to its sink, in delivery
// order.
type TraceEvent struct {
	Type    string `json:"type"`
	Camera  string `json:"camera"`
	Session string `json:"session"`

	// Result events.
	Seq       int64  `json:"seq,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Entity    string `json:"entity,omitempty"`
	Raw       string `json:"raw,omitempty"` // only for unrecognized codes
	ScannedAt int64  `json:"scanned_at_ms,omitempty"`
	Recorded  *bool  `json:"recorded,omitempty"`

	// Warning events.
	Error string `json:"error,omitempty"`
}

// Label names the event for trace assertions: "result:student", "warning".
func (e TraceEvent) Label() string {
	if e.Type == EventResult {
		return EventResult + ":" + e.Kind
	}
	return e.Type
}

// Final is the observable state after the last step.
type Final struct {
	State    string        `json:"state"`
	Selected string        `json:"selected,omitempty"`
	Stats    scanner.Stats `json:"stats"`
	Stored   int           `json:"stored"` // rows in the attendance store

	// Camera acquisitions seen by the replay engine, counted after the
	// manager was closed.
	Acquired int `json:"acquired"`
	Released int `json:"released"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Pass   bool          `json:"pass"`
	Steps  []StepOutcome `json:"steps"`
	Trace  []TraceEvent  `json:"trace"`
	Final  Final         `json:"final"`
	Errors []string      `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
