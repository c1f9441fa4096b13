package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// Engine is a scanner.Engine that replays a Script.
//
// Each Attach starts a goroutine that emits the script's frames through
// the callbacks. A camera can be attached by one stream at a time; a
// second Attach fails with scanner.ErrDeviceBusy.
type Engine struct {
	cameras   []scanner.Camera
	enumErr   error
	attachErr map[string]error
	frames    []outcome
	interval  time.Duration

	mu       sync.Mutex
	active   map[string]*stream
	acquired int
	released int
}

// New resolves the script's frames with codec and returns an engine.
// A nil codec uses qrpayload defaults.
func New(script Script, codec *qrpayload.Codec) (*Engine, error) {
	if codec == nil {
		codec = qrpayload.New()
	}
	frames, err := script.resolve(codec)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cameras:   append([]scanner.Camera(nil), script.Cameras...),
		attachErr: make(map[string]error, len(script.AttachErrors)),
		frames:    frames,
		interval:  script.Interval,
		active:    make(map[string]*stream),
	}
	if script.EnumerateError != "" {
		e.enumErr = errorFromText(script.EnumerateError)
	}
	for id, msg := range script.AttachErrors {
		e.attachErr[id] = errorFromText(msg)
	}
	return e, nil
}

// Load reads a script file and builds an engine from it.
func Load(path string, codec *qrpayload.Codec) (*Engine, error) {
	script, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return New(script, codec)
}

func (e *Engine) ListCameras(ctx context.Context) ([]scanner.Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.enumErr != nil {
		return nil, e.enumErr
	}
	return append([]scanner.Camera(nil), e.cameras...), nil
}

func (e *Engine) Attach(ctx context.Context, cfg scanner.AttachConfig, cb scanner.FrameCallbacks) (scanner.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.SurfaceID == "" {
		return nil, scanner.ErrSurfaceMissing
	}
	if err, ok := e.attachErr[cfg.CameraID]; ok {
		return nil, err
	}
	if !e.hasCamera(cfg.CameraID) {
		return nil, fmt.Errorf("%w: %q", scanner.ErrNoDevice, cfg.CameraID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[cfg.CameraID]; busy {
		return nil, fmt.Errorf("%w: %q", scanner.ErrDeviceBusy, cfg.CameraID)
	}

	s := &stream{
		engine:   e,
		cameraID: cfg.CameraID,
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	e.active[cfg.CameraID] = s
	e.acquired++

	go s.emit(e.frames, e.interval, cb)
	return s, nil
}

func (e *Engine) hasCamera(id string) bool {
	for _, c := range e.cameras {
		if c.ID == id {
			return true
		}
	}
	return false
}

// WaitEmitted blocks until every currently attached stream has emitted
// all of its frames (or was released), or ctx is done.
func (e *Engine) WaitEmitted(ctx context.Context) error {
	e.mu.Lock()
	pending := make([]<-chan struct{}, 0, len(e.active))
	for _, s := range e.active {
		pending = append(pending, s.exited)
	}
	e.mu.Unlock()

	for _, ch := range pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Counts returns how many streams were acquired and released.
func (e *Engine) Counts() (acquired, released int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acquired, e.released
}

// Active reports whether any stream is currently attached.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active) > 0
}

type stream struct {
	engine   *Engine
	cameraID string

	once   sync.Once
	stop   chan struct{}
	exited chan struct{} // closed once the emitter is done or stopped
}

func (s *stream) emit(frames []outcome, interval time.Duration, cb scanner.FrameCallbacks) {
	defer close(s.exited)

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for _, f := range frames {
		if tick != nil {
			select {
			case <-s.stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-s.stop:
				return
			default:
			}
		}

		if f.err != nil {
			if cb.OnFailure != nil {
				cb.OnFailure(f.err)
			}
			continue
		}
		if cb.OnDecoded != nil {
			cb.OnDecoded(f.text)
		}
	}
}

// Release stops emission and waits for the emitter to exit, so no
// callback runs after Release returns.
func (s *stream) Release(ctx context.Context) error {
	released := false
	s.once.Do(func() {
		close(s.stop)
		released = true
	})
	if !released {
		return nil
	}

	<-s.exited

	e := s.engine
	e.mu.Lock()
	delete(e.active, s.cameraID)
	e.released++
	e.mu.Unlock()
	return nil
}
