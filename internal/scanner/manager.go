package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

const (
	DefaultFPS        = 10
	DefaultRegionSize = 250
	DefaultSurface    = "qr-reader"
)

// Stats counts what a manager has done over its lifetime.
// Acquired equals Released whenever no session is active.
type Stats struct {
	Acquired   int64 `json:"acquired"`
	Released   int64 `json:"released"`
	Results    int64 `json:"results"`
	Warnings   int64 `json:"warnings"`
	Suppressed int64 `json:"suppressed"`
	Dropped    int64 `json:"dropped"`
	SinkErrors int64 `json:"sink_errors"`
}

type loopKey struct{}

// handlerCall identifies one sink invocation. A context carrying it runs
// manager calls inline only while that invocation is in progress.
type handlerCall struct {
	m *Manager
}

// session is one start-to-stop acquisition of a camera.
type session struct {
	id       string
	cameraID string
	stream   Stream
}

// Manager owns the camera and the scan loop.
//
// Every command and every frame outcome is processed by one goroutine in
// FIFO order, so at most one session exists and a stop issued during an
// acquisition is handled as soon as that acquisition settles.
//
// Thread-safety model:
//   - public methods: safe from any goroutine
//   - run(): the only goroutine that touches sessions and engine streams
type Manager struct {
	engine  Engine
	codec   *qrpayload.Codec
	sink    Sink
	log     *slog.Logger
	ids     IDGenerator
	clock   *Clock
	now     func() time.Time
	fps     int
	region  int
	surface string
	focus   FocusMode

	queue   *eventQueue
	loopCtx context.Context
	done    chan struct{}
	detach  func() bool
	handler atomic.Pointer[handlerCall]

	mu       sync.Mutex
	state    State
	err      error
	cameras  []Camera
	selected string
	starting bool
	closed   bool
	stats    Stats

	// Loop-owned.
	session *session
	exiting bool
}

// New creates a manager over eng, enumerates cameras and selects the
// preferred one. The outcome of enumeration is visible through State and
// Err.
//
// ctx is the owning context: once it is done the manager closes itself,
// releasing any active camera.
func New(ctx context.Context, eng Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:  eng,
		codec:   qrpayload.New(),
		sink:    SinkFuncs{},
		log:     slog.Default(),
		ids:     UUIDv7Generator{},
		clock:   NewClock(),
		now:     time.Now,
		fps:     DefaultFPS,
		region:  DefaultRegionSize,
		surface: DefaultSurface,
		state:   StateUninitialized,
		queue:   newEventQueue(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loopCtx = context.WithoutCancel(ctx)

	m.detach = context.AfterFunc(ctx, func() {
		if err := m.Close(context.Background()); err != nil {
			m.log.Warn("scanner teardown failed", "error", err)
		}
	})

	go m.run()

	if err := m.Enumerate(ctx); err != nil {
		m.log.Debug("initial enumeration did not succeed", "error", err)
	}
	return m
}

// Enumerate lists cameras again, for example after permission was granted
// or hardware attached. It fails with ErrSessionActive while scanning.
func (m *Manager) Enumerate(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.do(ctx, event{kind: evEnumerate})
}

// Select overrides the preferred camera for the next Start. It does not
// affect an active session; use SwitchCamera for that.
func (m *Manager) Select(ctx context.Context, cameraID string) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.do(ctx, event{kind: evSelect, cameraID: cameraID})
}

// Start acquires the selected camera and begins scanning. It returns once
// the acquisition has settled; a failure is returned as a *ScanError and
// leaves the manager in StateError with any partial stream released.
//
// A Start while another Start is in flight, or while scanning, returns nil
// immediately without queueing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.starting || m.state == StateScanning:
		m.mu.Unlock()
		return nil
	}
	m.starting = true
	m.mu.Unlock()

	err := m.do(ctx, event{kind: evStart})
	if errors.Is(err, ErrClosed) {
		m.setStarting(false)
	}
	return err
}

// Stop ends the active session, if any. It is safe to call at any time:
// stopping an idle or closed manager is a no-op. The stream is released
// even when Release fails, and the manager always returns to
// StateCamerasEnumerated.
func (m *Manager) Stop(ctx context.Context) error {
	if m.isClosed() {
		return nil
	}
	err := m.do(ctx, event{kind: evStop})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// SwitchCamera selects cameraID. When scanning, the current stream is
// released before the new camera is requested.
func (m *Manager) SwitchCamera(ctx context.Context, cameraID string) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.do(ctx, event{kind: evSwitch, cameraID: cameraID})
}

// Close stops any session and shuts down the event loop. Close is
// idempotent. Called from outside a sink handler, it waits for the loop to
// exit or for ctx to be done.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()

	if !already {
		if err := m.do(ctx, event{kind: evClose}); err != nil && !errors.Is(err, ErrClosed) {
			return err
		}
	}
	if m.inLoop(ctx) {
		return nil
	}

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until every command and frame queued before it has been
// handled, including delivery to the sink.
func (m *Manager) Sync(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.do(ctx, event{kind: evSync})
}

// Done is closed once the event loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the failure behind StateError, or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Manager) Cameras() []Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Camera(nil), m.cameras...)
}

// Selected returns the camera the next Start will use.
func (m *Manager) Selected() (Camera, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == "" {
		return Camera{}, false
	}
	return findCamera(m.cameras, m.selected)
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// do runs a command on the loop and waits for its result. Calls carrying
// the loop's own context run inline.
func (m *Manager) do(ctx context.Context, ev event) error {
	if m.inLoop(ctx) {
		if m.exiting {
			return ErrClosed
		}
		return m.handle(ctx, ev)
	}

	ev.ctx = ctx
	ev.reply = make(chan error, 1)
	if !m.queue.Enqueue(ev) {
		return ErrClosed
	}

	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) inLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	call, _ := ctx.Value(loopKey{}).(*handlerCall)
	return call != nil && call.m == m && m.handler.Load() == call
}

// handlerContext returns the context for one sink call and a func that
// ends it. Calls made with the context after it ended go through the queue.
func (m *Manager) handlerContext() (context.Context, func()) {
	call := &handlerCall{m: m}
	prev := m.handler.Swap(call)
	return context.WithValue(m.loopCtx, loopKey{}, call), func() {
		m.handler.Store(prev)
	}
}

// run is the single-writer event loop.
func (m *Manager) run() {
	defer close(m.done)
	defer m.detach()

	m.log.Debug("scanner loop starting")
	for !m.exiting {
		ev, ok := m.queue.TryDequeue()
		if ok {
			m.dispatch(ev)
			continue
		}
		<-m.queue.Wait()
	}

	for _, ev := range m.queue.Close() {
		if ev.isCommand() {
			ev.reply <- ErrClosed
		}
	}
	m.log.Debug("scanner loop stopped")
}

func (m *Manager) dispatch(ev event) {
	if !ev.isCommand() {
		m.handleFrame(ev)
		return
	}
	ev.reply <- m.handle(ev.ctx, ev)
}

func (m *Manager) handle(ctx context.Context, ev event) error {
	switch ev.kind {
	case evEnumerate:
		return m.handleEnumerate(ctx)
	case evSelect:
		return m.handleSelect(ev.cameraID)
	case evStart:
		return m.handleStart(ctx, "start")
	case evStop:
		m.handleStop(ctx)
		return nil
	case evSwitch:
		return m.handleSwitch(ctx, ev.cameraID)
	case evClose:
		m.handleStop(ctx)
		m.exiting = true
		return nil
	case evSync:
		return nil
	}
	return fmt.Errorf("unexpected command %s", ev.kind)
}

func (m *Manager) handleEnumerate(ctx context.Context) error {
	if m.session != nil {
		return ErrSessionActive
	}

	cams, err := m.engine.ListCameras(ctx)
	if err == nil && len(cams) == 0 {
		err = ErrNoDevice
	}
	if err != nil {
		serr := &ScanError{Op: "enumerate", Cause: classifyEnumeration(err), Err: err}
		m.mu.Lock()
		m.cameras = nil
		m.selected = ""
		m.state = StateError
		m.err = serr
		m.mu.Unlock()
		m.log.Error("camera enumeration failed", "cause", serr.Cause, "error", err)
		return serr
	}

	m.mu.Lock()
	m.cameras = append([]Camera(nil), cams...)
	if _, ok := findCamera(cams, m.selected); !ok {
		preferred, _ := PreferredCamera(cams)
		m.selected = preferred.ID
	}
	selected := m.selected
	m.state = StateCamerasEnumerated
	m.err = nil
	m.mu.Unlock()

	m.log.Info("cameras enumerated", "count", len(cams), "selected", selected)
	return nil
}

func (m *Manager) handleSelect(cameraID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := findCamera(m.cameras, cameraID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCamera, cameraID)
	}
	m.selected = cameraID
	return nil
}

func (m *Manager) handleStart(ctx context.Context, op string) error {
	defer m.setStarting(false)

	if m.session != nil {
		return nil
	}

	m.mu.Lock()
	cameraID := m.selected
	m.mu.Unlock()
	if cameraID == "" {
		serr := &ScanError{Op: op, Cause: CauseNoDevice, Err: ErrNoDevice}
		m.setError(serr)
		return serr
	}

	m.setState(StateStarting)
	sess := &session{id: m.ids.Generate(), cameraID: cameraID}

	stream, err := m.engine.Attach(ctx, AttachConfig{
		CameraID:   cameraID,
		SurfaceID:  m.surface,
		FPS:        m.fps,
		RegionSize: m.region,
	}, m.callbacks(sess.id))
	if stream != nil {
		m.count(func(s *Stats) { s.Acquired++ })
	}
	if err == nil && stream == nil {
		err = errors.New("engine returned no stream")
	}
	if err != nil {
		if stream != nil {
			m.release(ctx, &session{id: sess.id, cameraID: cameraID, stream: stream})
		}
		serr := &ScanError{Op: op, Cause: Classify(err), Err: err}
		m.setError(serr)
		m.log.Error("camera acquisition failed",
			"camera", cameraID,
			"cause", serr.Cause,
			"error", err,
		)
		return serr
	}

	sess.stream = stream
	m.applyFocus(ctx, sess)
	m.session = sess
	m.setState(StateScanning)

	m.log.Info("scan session started",
		"session", sess.id,
		"camera", cameraID,
		"fps", m.fps,
	)
	return nil
}

func (m *Manager) handleStop(ctx context.Context) {
	sess := m.session
	if sess == nil {
		return
	}
	m.session = nil

	m.setState(StateStopping)
	m.release(ctx, sess)
	m.setState(StateCamerasEnumerated)

	m.log.Info("scan session stopped", "session", sess.id, "camera", sess.cameraID)
}

func (m *Manager) handleSwitch(ctx context.Context, cameraID string) error {
	m.mu.Lock()
	_, known := findCamera(m.cameras, cameraID)
	m.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownCamera, cameraID)
	}

	wasScanning := m.session != nil
	m.handleStop(ctx)

	m.mu.Lock()
	m.selected = cameraID
	m.mu.Unlock()

	if !wasScanning {
		return nil
	}
	m.setStarting(true)
	return m.handleStart(ctx, "switch")
}

func (m *Manager) handleFrame(ev event) {
	sess := m.session
	if sess == nil || sess.id != ev.sessionID {
		m.count(func(s *Stats) { s.Dropped++ })
		m.log.Debug("frame from released session dropped", "session", ev.sessionID, "event", ev.kind)
		return
	}

	switch ev.kind {
	case evDecoded:
		res := Result{
			SessionID:      sess.id,
			CameraID:       sess.cameraID,
			Seq:            m.clock.Next(),
			ScannedAt:      m.now(),
			Classification: m.codec.Decode(ev.text),
		}
		m.count(func(s *Stats) { s.Results++ })
		m.log.Debug("code decoded",
			"session", sess.id,
			"seq", res.Seq,
			"kind", res.Classification.Kind,
		)
		ctx, end := m.handlerContext()
		err := m.sink.HandleResult(ctx, res)
		end()
		if err != nil {
			m.count(func(s *Stats) { s.SinkErrors++ })
			m.log.Error("result handler failed", "session", sess.id, "seq", res.Seq, "error", err)
		}

	case evFailed:
		if IsNoise(ev.err) {
			m.count(func(s *Stats) { s.Suppressed++ })
			return
		}
		m.count(func(s *Stats) { s.Warnings++ })
		m.log.Warn("frame decode failed", "session", sess.id, "camera", sess.cameraID, "error", ev.err)
		ctx, end := m.handlerContext()
		m.sink.HandleWarning(ctx, Warning{SessionID: sess.id, CameraID: sess.cameraID, Err: ev.err})
		end()
	}
}

// callbacks tags every frame with its session so frames that arrive after
// the session ended can be told apart.
func (m *Manager) callbacks(sessionID string) FrameCallbacks {
	return FrameCallbacks{
		OnDecoded: func(text string) {
			m.queue.Enqueue(event{kind: evDecoded, sessionID: sessionID, text: text})
		},
		OnFailure: func(err error) {
			m.queue.Enqueue(event{kind: evFailed, sessionID: sessionID, err: err})
		},
	}
}

func (m *Manager) applyFocus(ctx context.Context, sess *session) {
	if m.focus == FocusNone {
		return
	}
	fc, ok := sess.stream.(FocusController)
	if !ok {
		m.log.Debug("camera has no focus control", "camera", sess.cameraID)
		return
	}
	if err := fc.ApplyFocus(ctx, m.focus); err != nil {
		m.log.Warn("focus mode not applied", "camera", sess.cameraID, "mode", m.focus, "error", err)
	}
}

// release frees a stream. The release is not bound to the caller's
// cancellation, and a failing or panicking Release is logged.
func (m *Manager) release(ctx context.Context, sess *session) {
	err := safeRelease(context.WithoutCancel(ctx), sess.stream)
	m.count(func(s *Stats) { s.Released++ })
	if err != nil {
		m.log.Warn("camera release failed",
			"session", sess.id,
			"camera", sess.cameraID,
			"error", err,
		)
	}
}

func safeRelease(ctx context.Context, st Stream) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("release panicked: %v", r)
		}
	}()
	return st.Release(ctx)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) setStarting(v bool) {
	m.mu.Lock()
	m.starting = v
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	if s != StateError {
		m.err = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	m.state = StateError
	m.err = err
	m.mu.Unlock()
}

func (m *Manager) count(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}
