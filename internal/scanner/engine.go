package scanner

import "context"

// Camera is one video input device reported by an Engine.
type Camera struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// AttachConfig describes the stream the manager asks an Engine for.
type AttachConfig struct {
	CameraID   string
	SurfaceID  string // render surface the engine draws the feed into
	FPS        int
	RegionSize int // side of the square decode region, in pixels
}

// FrameCallbacks receive per-frame outcomes. Engines may call them from
// any goroutine; the manager serialises them onto its event loop.
type FrameCallbacks struct {
	OnDecoded func(text string)
	OnFailure func(err error)
}

// Engine is the decode-engine boundary: camera discovery plus a decode
// loop bound to one camera.
type Engine interface {
	ListCameras(ctx context.Context) ([]Camera, error)

	// Attach acquires the camera and starts delivering frames. On error the
	// returned Stream, if non-nil, holds a partially acquired resource that
	// the caller releases.
	Attach(ctx context.Context, cfg AttachConfig, cb FrameCallbacks) (Stream, error)
}

// Stream is an acquired camera bound to a decode loop.
type Stream interface {
	// Release stops decoding and frees the camera. No callbacks are made
	// after Release returns.
	Release(ctx context.Context) error
}

// FocusController is implemented by streams whose device exposes focus control.
type FocusController interface {
	ApplyFocus(ctx context.Context, mode FocusMode) error
}
