package imagedir

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

const (
	labelFile = "label"
	focusFile = "focus"
)

// ErrFocusUnsupported is returned by ApplyFocus for a mode the camera's
// focus file does not list.
var ErrFocusUnsupported = errors.New("focus mode not supported")

var _ scanner.FocusController = (*stream)(nil)

var frameExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Engine reads camera frames from a directory tree.
type Engine struct {
	root string
	loop bool
	log  *slog.Logger

	mu     sync.Mutex
	active map[string]*stream
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoop replays a camera's frames from the start after the last one,
// like a live feed. Without it each stream stops emitting after one pass.
func WithLoop(loop bool) Option {
	return func(e *Engine) { e.loop = loop }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an engine rooted at root. The directory is not read until
// ListCameras or Attach.
func New(root string, opts ...Option) *Engine {
	e := &Engine{
		root:   root,
		log:    slog.Default(),
		active: make(map[string]*stream),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ListCameras(ctx context.Context) ([]scanner.Camera, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, deviceError(err)
	}

	var cams []scanner.Camera
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cams = append(cams, scanner.Camera{
			ID:    entry.Name(),
			Label: e.label(entry.Name()),
		})
	}
	return cams, nil
}

func (e *Engine) label(cameraID string) string {
	data, err := os.ReadFile(filepath.Join(e.root, cameraID, labelFile))
	if err != nil {
		return cameraID
	}
	if l := strings.TrimSpace(string(data)); l != "" {
		return l
	}
	return cameraID
}

func (e *Engine) Attach(ctx context.Context, cfg scanner.AttachConfig, cb scanner.FrameCallbacks) (scanner.Stream, error) {
	if cfg.SurfaceID == "" {
		return nil, scanner.ErrSurfaceMissing
	}

	dir := filepath.Join(e.root, cfg.CameraID)
	frames, err := listFrames(dir)
	if err != nil {
		return nil, deviceError(err)
	}
	focusModes, err := readFocusModes(dir)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[cfg.CameraID]; busy {
		return nil, fmt.Errorf("%w: %s", scanner.ErrDeviceBusy, cfg.CameraID)
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = scanner.DefaultFPS
	}
	s := &stream{
		engine:   e,
		cameraID: cfg.CameraID,
		frames:   frames,
		region:   cfg.RegionSize,
		interval: time.Second / time.Duration(fps),
		reader:   qrcode.NewQRCodeReader(),
		modes:    focusModes,
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	e.active[cfg.CameraID] = s

	e.log.Debug("image camera attached", "camera", cfg.CameraID, "frames", len(frames), "fps", fps)
	go s.run(cb)
	return s, nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() || !frameExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		frames = append(frames, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

// deviceError maps file system failures onto scanner sentinels.
func deviceError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", scanner.ErrNoDevice, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", scanner.ErrPermissionDenied, err)
	}
	return err
}

type stream struct {
	engine   *Engine
	cameraID string
	frames   []string
	region   int
	interval time.Duration
	reader   gozxing.Reader
	modes    []scanner.FocusMode // nil: every mode is accepted

	focusMu sync.Mutex
	focus   scanner.FocusMode

	once   sync.Once
	stop   chan struct{}
	exited chan struct{}
}

func (s *stream) run(cb scanner.FrameCallbacks) {
	defer close(s.exited)
	if len(s.frames) == 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		if i == len(s.frames) {
			if !s.engine.loop {
				return
			}
			i = 0
		}

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		text, err := s.decode(s.frames[i])
		if err != nil {
			if cb.OnFailure != nil {
				cb.OnFailure(err)
			}
			continue
		}
		if cb.OnDecoded != nil {
			cb.OnDecoded(text)
		}
	}
}

func (s *stream) decode(path string) (string, error) {
	return decodeFrame(s.reader, path, s.region)
}

// DecodeFile reads one QR code from an image file. Only the centred
// region square is searched when region is positive. A file without a
// code fails with an error wrapping scanner.ErrNoCode.
func DecodeFile(path string, region int) (string, error) {
	return decodeFrame(qrcode.NewQRCodeReader(), path, region)
}

func decodeFrame(reader gozxing.Reader, path string, region int) (string, error) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("frame %s: %w", name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("frame %s: %w", name, err)
	}
	img = centerRegion(img, region)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("frame %s: %w", name, err)
	}
	res, err := reader.Decode(bmp, nil)
	if err != nil {
		var nf gozxing.NotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("frame %s: %w", name, scanner.ErrNoCode)
		}
		return "", fmt.Errorf("frame %s: %w", name, err)
	}
	return res.GetText(), nil
}

// centerRegion crops img to a centred square of side px when the image is
// larger than that in both dimensions.
func centerRegion(img image.Image, px int) image.Image {
	b := img.Bounds()
	if px <= 0 || b.Dx() <= px || b.Dy() <= px {
		return img
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return img
	}
	x0 := b.Min.X + (b.Dx()-px)/2
	y0 := b.Min.Y + (b.Dy()-px)/2
	return sub.SubImage(image.Rect(x0, y0, x0+px, y0+px))
}

// readFocusModes reads the whitespace-separated modes in a camera's focus
// file. A camera without the file accepts every mode.
func readFocusModes(dir string) ([]scanner.FocusMode, error) {
	data, err := os.ReadFile(filepath.Join(dir, focusFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, deviceError(err)
	}
	modes := []scanner.FocusMode{}
	for _, field := range strings.Fields(string(data)) {
		mode, ok := scanner.ParseFocusMode(strings.ToLower(field))
		if !ok || mode == scanner.FocusNone {
			return nil, fmt.Errorf("%s: unknown focus mode %q", filepath.Join(dir, focusFile), field)
		}
		modes = append(modes, mode)
	}
	return modes, nil
}

// ApplyFocus sets the stream's focus mode. Cameras with a focus file only
// accept the modes it lists.
func (s *stream) ApplyFocus(ctx context.Context, mode scanner.FocusMode) error {
	if s.modes != nil && !slices.Contains(s.modes, mode) {
		return fmt.Errorf("%w: %s on %s", ErrFocusUnsupported, mode, s.cameraID)
	}
	s.focusMu.Lock()
	defer s.focusMu.Unlock()
	s.focus = mode
	return nil
}

// Focus reports the focus mode applied to the camera's active stream.
// It is FocusNone when the camera is not attached or no mode was applied.
func (e *Engine) Focus(cameraID string) scanner.FocusMode {
	e.mu.Lock()
	s := e.active[cameraID]
	e.mu.Unlock()
	if s == nil {
		return scanner.FocusNone
	}
	s.focusMu.Lock()
	defer s.focusMu.Unlock()
	return s.focus
}

// Release stops the frame loop and waits for the frame in flight, if any.
func (s *stream) Release(ctx context.Context) error {
	first := false
	s.once.Do(func() {
		close(s.stop)
		first = true
	})
	if !first {
		return nil
	}

	<-s.exited

	e := s.engine
	e.mu.Lock()
	delete(e.active, s.cameraID)
	e.mu.Unlock()
	return nil
}

// WaitEmitted blocks until every attached stream has gone through its
// frames once (or was released), or ctx is done. With WithLoop streams only
// finish when released.
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
