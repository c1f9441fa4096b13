package scanner

import (
	"context"
	"time"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

// Result is one successfully read QR code, classified.
type Result struct {
	SessionID      string
	CameraID       string
	Seq            int64
	ScannedAt      time.Time
	Classification qrpayload.Classification
}

// Warning is a non-fatal frame decode anomaly. Scanning continues.
type Warning struct {
	SessionID string
	CameraID  string
	Err       error
}

// Sink receives everything a scan session produces.
//
// Handlers run on the manager's event loop. The ctx they receive may be
// passed to Stop, Close, Start or SwitchCamera from within the handler;
// those calls then run inline instead of deadlocking. Once the handler
// returns, the ctx no longer runs anything inline and calls made with it
// are queued. The ctx must not be handed to other goroutines while the
// handler is still running.
type Sink interface {
	// HandleResult is called exactly once per decoded frame. A returned
	// error is logged; it does not stop the session.
	HandleResult(ctx context.Context, r Result) error
	HandleWarning(ctx context.Context, w Warning)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnResult  func(ctx context.Context, r Result) error
	OnWarning func(ctx context.Context, w Warning)
}

func (s SinkFuncs) HandleResult(ctx context.Context, r Result) error {
	if s.OnResult == nil {
		return nil
	}
	return s.OnResult(ctx, r)
}

func (s SinkFuncs) HandleWarning(ctx context.Context, w Warning) {
	if s.OnWarning != nil {
		s.OnWarning(ctx, w)
	}
}
