package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/attendance"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner/replay"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/testutil"
)

// Fixed inputs for every run.
var (
	IssuedAt  = time.UnixMilli(1_700_000_000_000)
	ScanStart = time.UnixMilli(1_700_000_060_000)
)

const (
	scanStep = 100 * time.Millisecond

	// stepTimeout bounds each step so a hung scenario fails instead of
	// blocking the test binary.
	stepTimeout = 10 * time.Second
)

// Harness runs one scenario.
type Harness struct {
	engine  *replay.Engine
	manager *scanner.Manager
	store   *attendance.Store
	logger  *slog.Logger

	mu     sync.Mutex
	result *Result
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sends manager logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Run executes a scenario in isolation: a fresh replay engine, manager and
// in-memory attendance store. The returned error covers setup failures;
// step and assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	codec := qrpayload.New(
		qrpayload.WithClock(testutil.FrozenClock(IssuedAt).Now),
		qrpayload.WithNonceSource(testutil.NewSequenceNonces("nonce")),
	)
	eng, err := replay.New(scenario.Script, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to build replay engine: %w", err)
	}

	st, err := attendance.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		engine: eng,
		store:  st,
		logger: cfg.logger,
		result: NewResult(),
	}

	// The manager enumerates on creation; that is not part of the trace.
	h.manager = scanner.New(ctx, eng,
		scanner.WithSink(h),
		scanner.WithCodec(codec),
		scanner.WithLogger(cfg.logger),
		scanner.WithSessionIDs(sessionIDs{testutil.NewSequenceNonces("scan")}),
		scanner.WithTimeSource(testutil.NewStepClock(ScanStart, scanStep).Now),
		scanner.WithSeqClock(scanner.NewClock()),
		scanner.WithFocusMode(scanner.FocusContinuous),
	)

	for i, step := range scenario.Steps {
		h.runStep(ctx, i, step)
	}

	final, err := h.final(ctx)
	if err != nil {
		return nil, err
	}

	res := h.snapshot()
	res.Final = final
	for _, msg := range EvaluateAssertions(res, scenario.Assertions) {
		res.AddError(msg)
	}
	return res, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step) {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	err := h.do(ctx, step)

	out := StepOutcome{
		Step:   step.Do,
		Camera: step.Camera,
		Error:  errorName(err),
		State:  string(h.manager.State()),
	}
	h.logger.Debug("scenario step", "index", i, "step", step.Do, "error", err, "state", out.State)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Steps = append(h.result.Steps, out)
	if out.Error != step.ExpectError {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %q, got %q (%v)", i, step.Do, step.ExpectError, out.Error, err))
	}
}

func (h *Harness) do(ctx context.Context, step Step) error {
	m := h.manager
	switch step.Do {
	case StepEnumerate:
		return m.Enumerate(ctx)
	case StepSelect:
		return m.Select(ctx, step.Camera)
	case StepStart:
		return m.Start(ctx)
	case StepStop:
		return m.Stop(ctx)
	case StepSwitch:
		return m.SwitchCamera(ctx, step.Camera)
	case StepWait:
		if err := h.engine.WaitEmitted(ctx); err != nil {
			return err
		}
		return m.Sync(ctx)
	case StepClose:
		return m.Close(ctx)
	}
	return fmt.Errorf("unknown step %q", step.Do)
}

// final captures the manager's state, then closes it and counts what the
// engine acquired and released.
func (h *Harness) final(ctx context.Context) (Final, error) {
	f := Final{
		State: string(h.manager.State()),
		Stats: h.manager.Stats(),
	}
	if cam, ok := h.manager.Selected(); ok {
		f.Selected = cam.ID
	}

	closeCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	if err := h.manager.Close(closeCtx); err != nil {
		return Final{}, fmt.Errorf("failed to close manager: %w", err)
	}
	f.Acquired, f.Released = h.engine.Counts()

	scans, err := h.store.List(ctx, attendance.Filter{})
	if err != nil {
		return Final{}, fmt.Errorf("failed to read attendance store: %w", err)
	}
	f.Stored = len(scans)
	return f, nil
}

func (h *Harness) appendEvent(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, e)
}

func (h *Harness) snapshot() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := *h.result
	res.Steps = append([]StepOutcome{}, h.result.Steps...)
	res.Trace = append([]TraceEvent{}, h.result.Trace...)
	res.Errors = append([]string{}, h.result.Errors...)
	return &res
}

// HandleResult records the result in the store and the trace.
func (h *Harness) HandleResult(ctx context.Context, r scanner.Result) error {
	c := r.Classification
	ev := TraceEvent{
		Type:      EventResult,
		Camera:    r.CameraID,
		Session:   r.SessionID,
		Seq:       r.Seq,
		Kind:      string(c.Kind),
		ScannedAt: r.ScannedAt.UnixMilli(),
	}

	if c.Recognized() {
		ev.Entity = c.Payload.EntityID()
		scan, err := attendance.ScanFromResult(r)
		if err != nil {
			h.appendEvent(ev)
			return err
		}
		inserted, err := h.store.Record(ctx, scan)
		if err != nil {
			h.appendEvent(ev)
			return err
		}
		ev.Recorded = &inserted
	} else {
		ev.Raw = c.Raw
	}
	h.appendEvent(ev)
	return nil
}

func (h *Harness) HandleWarning(ctx context.Context, w scanner.Warning) {
	h.appendEvent(TraceEvent{
		Type:    EventWarning,
		Camera:  w.CameraID,
		Session: w.SessionID,
		Error:   w.Err.Error(),
	})
}

// errorName maps a manager error to the name used in scenarios.
func errorName(err error) string {
	var se *scanner.ScanError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return string(se.Cause)
	case errors.Is(err, scanner.ErrClosed):
		return "closed"
	case errors.Is(err, scanner.ErrUnknownCamera):
		return "unknown_camera"
	case errors.Is(err, scanner.ErrSessionActive):
		return "session_active"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

// sessionIDs numbers scan sessions "scan-0001", "scan-0002", ...
type sessionIDs struct {
	seq *testutil.SequenceNonces
}

func (s sessionIDs) Generate() string {
	return s.seq.Nonce()
}
