package scanner

import (
	"log/slog"
	"time"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

// Option configures a Manager.
type Option func(*Manager)

// WithSink sets the receiver of results and warnings. The default discards them.
func WithSink(s Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithCodec sets the codec used to classify decoded text.
func WithCodec(c *qrpayload.Codec) Option {
	return func(m *Manager) {
		if c != nil {
			m.codec = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithFPS sets the target decode frame rate. Default: DefaultFPS.
func WithFPS(fps int) Option {
	return func(m *Manager) {
		if fps > 0 {
			m.fps = fps
		}
	}
}

// WithRegionSize sets the side of the square decode region. Default: DefaultRegionSize.
func WithRegionSize(px int) Option {
	return func(m *Manager) {
		if px > 0 {
			m.region = px
		}
	}
}

// WithSurface names the render surface passed to the engine. Default: DefaultSurface.
func WithSurface(id string) Option {
	return func(m *Manager) {
		m.surface = id
	}
}

// WithFocusMode sets the focus preference applied after acquisition.
func WithFocusMode(mode FocusMode) Option {
	return func(m *Manager) {
		m.focus = mode
	}
}

// WithSessionIDs sets the session ID generator. Default: UUIDv7Generator.
func WithSessionIDs(g IDGenerator) Option {
	return func(m *Manager) {
		if g != nil {
			m.ids = g
		}
	}
}

// WithTimeSource sets the clock used for Result.ScannedAt.
func WithTimeSource(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSeqClock sets the logical clock used for Result.Seq.
func WithSeqClock(c *Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}
