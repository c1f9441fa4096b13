package scanner

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// fakeEngine is an in-memory Engine that records every acquisition.
type fakeEngine struct {
	mu sync.Mutex

	cameras   []Camera
	listErr   error
	attachErr map[string]error
	partial   bool // return a stream alongside attach errors

	gate    chan struct{} // when set, Attach blocks until it is closed
	entered chan struct{} // receives once per Attach call

	releaseErr   error
	releasePanic bool
	focusErr     error

	attaches  []AttachConfig
	streams   []*fakeStream
	acquired  int
	released  int
	active    int
	maxActive int
}

type fakeStream struct {
	eng      *fakeEngine
	cameraID string
	cb       FrameCallbacks
	focus    FocusMode
	released bool
}

func newFakeEngine(cameras ...Camera) *fakeEngine {
	return &fakeEngine{
		cameras:   cameras,
		attachErr: make(map[string]error),
		entered:   make(chan struct{}, 64),
	}
}

func (e *fakeEngine) ListCameras(ctx context.Context) ([]Camera, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listErr != nil {
		return nil, e.listErr
	}
	return append([]Camera(nil), e.cameras...), nil
}

func (e *fakeEngine) Attach(ctx context.Context, cfg AttachConfig, cb FrameCallbacks) (Stream, error) {
	e.mu.Lock()
	e.attaches = append(e.attaches, cfg)
	gate := e.gate
	e.mu.Unlock()

	e.entered <- struct{}{}
	if gate != nil {
		<-gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.attachErr[cfg.CameraID]; err != nil {
		if e.partial {
			return e.newStreamLocked(cfg, cb), err
		}
		return nil, err
	}
	return e.newStreamLocked(cfg, cb), nil
}

func (e *fakeEngine) newStreamLocked(cfg AttachConfig, cb FrameCallbacks) *fakeStream {
	e.acquired++
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	s := &fakeStream{eng: e, cameraID: cfg.CameraID, cb: cb}
	e.streams = append(e.streams, s)
	return s
}

func (s *fakeStream) Release(ctx context.Context) error {
	e := s.eng
	e.mu.Lock()
	if !s.released {
		s.released = true
		e.released++
		e.active--
	}
	err, panics := e.releaseErr, e.releasePanic
	e.mu.Unlock()

	if panics {
		panic("driver crashed")
	}
	return err
}

func (s *fakeStream) ApplyFocus(ctx context.Context, mode FocusMode) error {
	e := s.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.focusErr != nil {
		return e.focusErr
	}
	s.focus = mode
	return nil
}

func (e *fakeEngine) lastStream() *fakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.streams) == 0 {
		return nil
	}
	return e.streams[len(e.streams)-1]
}

func (e *fakeEngine) counts() (acquired, released, maxActive int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acquired, e.released, e.maxActive
}

func (e *fakeEngine) attachedCameras() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.attaches))
	for i, a := range e.attaches {
		ids[i] = a.CameraID
	}
	return ids
}

// recordingSink keeps everything a manager delivers.
type recordingSink struct {
	mu       sync.Mutex
	results  []Result
	warnings []Warning
	onResult func(ctx context.Context, r Result)
}

func (s *recordingSink) HandleResult(ctx context.Context, r Result) error {
	s.mu.Lock()
	s.results = append(s.results, r)
	hook := s.onResult
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, r)
	}
	return nil
}

func (s *recordingSink) HandleWarning(ctx context.Context, w Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
}

func (s *recordingSink) snapshot() ([]Result, []Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...), append([]Warning(nil), s.warnings...)
}

// syncBuffer is a goroutine-safe log destination.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func captureLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

var (
	frontCam = Camera{ID: "cam-front", Label: "Front Camera"}
	backCam  = Camera{ID: "cam-back", Label: "Back Camera (environment)"}
)

func newTestManager(t *testing.T, eng Engine, opts ...Option) *Manager {
	t.Helper()
	m := New(context.Background(), eng, append([]Option{WithLogger(discardLogger())}, opts...)...)
	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})
	return m
}
