package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Cause
	}{
		{"nil", nil, CauseUnknown},
		{"wrapped permission sentinel", fmt.Errorf("attach: %w", ErrPermissionDenied), CausePermissionDenied},
		{"no device sentinel", ErrNoDevice, CauseNoDevice},
		{"busy sentinel", ErrDeviceBusy, CauseDeviceBusy},
		{"surface sentinel", ErrSurfaceMissing, CauseSurfaceMissing},
		{"NotAllowedError", errors.New("NotAllowedError: Permission dismissed"), CausePermissionDenied},
		{"NotFoundError", errors.New("NotFoundError"), CauseNoDevice},
		{"NotReadableError", errors.New("NotReadableError: Could not start video source"), CauseDeviceBusy},
		{"linux busy", errors.New("open /dev/video0: device or resource busy"), CauseDeviceBusy},
		{"missing element", errors.New("HTML Element with id=reader not found"), CauseSurfaceMissing},
		{"deadline", context.DeadlineExceeded, CauseUnknown},
		{"canceled", fmt.Errorf("list: %w", context.Canceled), CauseUnknown},
		{"anything else", errors.New("OverconstrainedError"), CauseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsNoise(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrNoCode, true},
		{"wrapped sentinel", fmt.Errorf("frame 12: %w", ErrNoCode), true},
		{"zxing not found", errors.New("NotFoundException: No MultiFormat Readers were able to detect the code."), true},
		{"plain message", errors.New("No QR code found"), true},
		{"checksum", errors.New("ChecksumException"), false},
		{"format", errors.New("FormatException: unsupported version"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNoise(tt.err))
		})
	}
}

func TestScanError(t *testing.T) {
	err := fmt.Errorf("scan: %w", &ScanError{Op: "start", Cause: CauseSurfaceMissing, Err: errors.New("element with id=x")})

	assert.EqualError(t, err, "scan: start: surface_missing: element with id=x")
	assert.ErrorIs(t, err, ErrSurfaceMissing)
	assert.NotErrorIs(t, err, ErrDeviceBusy)
	assert.Equal(t, CauseSurfaceMissing, CauseOf(err))
	assert.Equal(t, CauseUnknown, CauseOf(errors.New("plain")))

	unknown := &ScanError{Op: "start", Cause: CauseUnknown, Err: errors.New("x")}
	assert.False(t, errors.Is(unknown, ErrNoDevice))
}

func TestParseFocusMode(t *testing.T) {
	for _, s := range []string{"", "none", "continuous", "auto", "manual"} {
		_, ok := ParseFocusMode(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseFocusMode("macro")
	assert.False(t, ok)
}
