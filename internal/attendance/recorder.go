package attendance

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// Recorder is a scanner.Sink that writes recognized results to a Store.
// Unrecognized results are logged and skipped unless KeepUnrecognized is set.
type Recorder struct {
	Store            *Store
	Log              *slog.Logger
	KeepUnrecognized bool

	// OnRecorded, if set, is called after each result is handled.
	OnRecorded func(scan Scan, inserted bool)

	recorded   atomic.Int64
	duplicates atomic.Int64
}

var _ scanner.Sink = (*Recorder)(nil)

func (r *Recorder) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Recorder) HandleResult(ctx context.Context, res scanner.Result) error {
	log := r.logger().With("session", res.SessionID, "seq", res.Seq)

	if !res.Classification.Recognized() && !r.KeepUnrecognized {
		log.Info("unrecognized code skipped", "kind", res.Classification.Kind)
		return nil
	}

	scan, err := ScanFromResult(res)
	if err != nil {
		return err
	}
	inserted, err := r.Store.Record(ctx, scan)
	if err != nil {
		return err
	}

	if inserted {
		r.recorded.Add(1)
		log.Info("scan recorded", "kind", scan.Kind, "entity", scan.EntityID)
	} else {
		r.duplicates.Add(1)
		log.Info("duplicate token ignored", "kind", scan.Kind, "entity", scan.EntityID, "nonce", scan.Nonce)
	}
	if r.OnRecorded != nil {
		r.OnRecorded(scan, inserted)
	}
	return nil
}

func (r *Recorder) HandleWarning(ctx context.Context, w scanner.Warning) {
	r.logger().Warn("frame decode anomaly", "session", w.SessionID, "camera", w.CameraID, "error", w.Err)
}

// Counts reports rows inserted and duplicates ignored so far.
func (r *Recorder) Counts() (recorded, duplicates int64) {
	return r.recorded.Load(), r.duplicates.Load()
}
