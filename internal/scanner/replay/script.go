package replay

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// Script describes simulated cameras and the frames every stream replays.
type Script struct {
	// Cameras reported by ListCameras, in order.
	Cameras []scanner.Camera `yaml:"cameras"`

	// EnumerateError, when set, makes ListCameras fail. Cause names
	// (permission_denied, no_device, ...) map to the scanner sentinels;
	// anything else is used as the error message.
	EnumerateError string `yaml:"enumerate_error,omitempty"`

	// AttachErrors maps camera IDs to the error Attach returns for them.
	AttachErrors map[string]string `yaml:"attach_errors,omitempty"`

	// Frames are emitted in order by each attached stream.
	Frames []Frame `yaml:"frames"`

	// Interval between frames. Zero emits as fast as callbacks return.
	Interval time.Duration `yaml:"interval,omitempty"`
}

// Frame is one scripted frame outcome. Exactly one of Text, Error or
// Encode is set.
type Frame struct {
	// Text is delivered as successfully decoded content.
	Text string `yaml:"text,omitempty"`

	// Error is delivered as a frame failure. "no_code" is the
	// no-code-in-frame signal.
	Error string `yaml:"error,omitempty"`

	// Encode is a reference field map (see qrpayload.ReferenceFromFields)
	// encoded when the script is loaded and delivered as decoded text.
	Encode map[string]string `yaml:"encode,omitempty"`

	// Repeat emits the frame this many times. Zero means once.
	Repeat int `yaml:"repeat,omitempty"`
}

// LoadScript reads a YAML script, rejecting unknown fields.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read replay script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a YAML script, rejecting unknown fields.
func ParseScript(data []byte) (Script, error) {
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return Script{}, fmt.Errorf("failed to parse replay script: %w", err)
	}
	return s, nil
}

// outcome is a frame resolved to what the callbacks receive.
type outcome struct {
	text string
	err  error
}

func (s Script) resolve(codec *qrpayload.Codec) ([]outcome, error) {
	var out []outcome
	for i, f := range s.Frames {
		set := 0
		for _, present := range []bool{f.Text != "", f.Error != "", len(f.Encode) > 0} {
			if present {
				set++
			}
		}
		if set != 1 {
			return nil, fmt.Errorf("frame %d: exactly one of text, error or encode is required", i)
		}
		if f.Repeat < 0 {
			return nil, fmt.Errorf("frame %d: repeat must not be negative", i)
		}

		var o outcome
		switch {
		case f.Text != "":
			o.text = f.Text
		case f.Error != "":
			o.err = errorFromText(f.Error)
		default:
			ref, err := qrpayload.ReferenceFromFields(f.Encode)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			enc, err := codec.Encode(ref)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			o.text = enc.Text
		}

		n := f.Repeat
		if n == 0 {
			n = 1
		}
		for j := 0; j < n; j++ {
			out = append(out, o)
		}
	}
	return out, nil
}

var namedErrors = map[string]error{
	"no_code":                             scanner.ErrNoCode,
	string(scanner.CausePermissionDenied): scanner.ErrPermissionDenied,
	string(scanner.CauseNoDevice):         scanner.ErrNoDevice,
	string(scanner.CauseDeviceBusy):       scanner.ErrDeviceBusy,
	string(scanner.CauseSurfaceMissing):   scanner.ErrSurfaceMissing,
}

func errorFromText(s string) error {
	if err, ok := namedErrors[s]; ok {
		return err
	}
	return errors.New(s)
}
