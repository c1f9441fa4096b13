package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Engines return (or wrap) the first four so the manager
// can classify failures without inspecting messages.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	ErrDeviceBusy       = errors.New("camera in use by another consumer")
	ErrSurfaceMissing   = errors.New("decode surface missing")

	// ErrNoCode marks a frame that contained no QR code. It is expected on
	// most frames and never reaches the sink.
	ErrNoCode = errors.New("no QR code in frame")

	ErrClosed        = errors.New("scanner closed")
	ErrUnknownCamera = errors.New("unknown camera")
	ErrSessionActive = errors.New("scan session active")
)

// ScanError is an enumeration or acquisition failure with its classified cause.
type ScanError struct {
	// Op is the manager operation that failed: "enumerate", "start" or "switch".
	Op    string
	Cause Cause
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Cause, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Cause, so a failure classified from a
// platform message still satisfies errors.Is(err, ErrDeviceBusy).
func (e *ScanError) Is(target error) bool {
	s := e.Cause.sentinel()
	return s != nil && target == s
}

func (c Cause) sentinel() error {
	switch c {
	case CausePermissionDenied:
		return ErrPermissionDenied
	case CauseNoDevice:
		return ErrNoDevice
	case CauseDeviceBusy:
		return ErrDeviceBusy
	case CauseSurfaceMissing:
		return ErrSurfaceMissing
	}
	return nil
}

// CauseOf returns the cause carried by a *ScanError in err's chain, or
// CauseUnknown.
func CauseOf(err error) Cause {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Cause
	}
	return CauseUnknown
}

// Lower-cased fragments of the messages camera stacks commonly report.
var causePatterns = []struct {
	cause    Cause
	patterns []string
}{
	{CausePermissionDenied, []string{"notallowederror", "permission denied", "permission dismissed", "not allowed"}},
	{CauseNoDevice, []string{"notfounderror", "requested device not found", "no camera", "devicesnotfounderror"}},
	{CauseDeviceBusy, []string{"notreadableerror", "could not start video source", "device in use", "device or resource busy", "trackstarterror"}},
	{CauseSurfaceMissing, []string{"element with id", "surface not found", "no such surface"}},
}

// Classify maps an engine error to a Cause. Sentinels are checked first,
// then well-known platform messages. Timeouts and anything unrecognised
// are CauseUnknown.
func Classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return CausePermissionDenied
	case errors.Is(err, ErrNoDevice):
		return CauseNoDevice
	case errors.Is(err, ErrDeviceBusy):
		return CauseDeviceBusy
	case errors.Is(err, ErrSurfaceMissing):
		return CauseSurfaceMissing
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CauseUnknown
	}

	msg := strings.ToLower(err.Error())
	for _, cp := range causePatterns {
		for _, p := range cp.patterns {
			if strings.Contains(msg, p) {
				return cp.cause
			}
		}
	}
	return CauseUnknown
}

// classifyEnumeration narrows Classify to the causes enumeration can report.
func classifyEnumeration(err error) Cause {
	switch c := Classify(err); c {
	case CausePermissionDenied, CauseNoDevice:
		return c
	}
	return CauseUnknown
}

var noisePatterns = []string{
	"notfoundexception",
	"no multiformat readers were able to detect the code",
	"no qr code found",
	"no code found",
}

// IsNoise reports whether a frame failure only means "no code in this frame".
func IsNoise(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoCode) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range noisePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
