// Package qrimage renders token text as QR code images.
package qrimage

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the default PNG side length in pixels.
const DefaultSize = 256

// PNGRenderer renders text as a square PNG. It implements qrpayload.Renderer.
type PNGRenderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewPNGRenderer returns a renderer with the given size and error
// correction level name (see ParseLevel).
func NewPNGRenderer(size int, level string) (PNGRenderer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return PNGRenderer{}, err
	}
	if size <= 0 {
		size = DefaultSize
	}
	return PNGRenderer{Size: size, Level: lvl}, nil
}

// Render encodes text into a PNG image.
func (r PNGRenderer) Render(text string) ([]byte, error) {
	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(text, r.Level, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// ParseLevel maps low, medium, high and highest to a recovery level.
// An empty name means medium.
func ParseLevel(name string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(name) {
	case "low":
		return qrcode.Low, nil
	case "", "medium":
		return qrcode.Medium, nil
	case "high":
		return qrcode.High, nil
	case "highest":
		return qrcode.Highest, nil
	}
	return qrcode.Medium, fmt.Errorf("unknown error correction level %q", name)
}
