package qrpayload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidReference is returned by Encode when a reference is nil or
// lacks a required field.
var ErrInvalidReference = errors.New("invalid reference")

// Encoded is a freshly stamped payload together with its token text.
type Encoded struct {
	Payload Payload
	Text    string
}

// Codec encodes references into token text and classifies scanned text.
// A Codec is safe for concurrent use.
type Codec struct {
	now    func() time.Time
	nonces NonceSource
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock sets the time source used for issuedAtMs.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithNonceSource sets the nonce generator.
func WithNonceSource(src NonceSource) Option {
	return func(c *Codec) { c.nonces = src }
}

// New creates a Codec. Defaults are the wall clock and RandomNonces.
func New(opts ...Option) *Codec {
	c := &Codec{
		now:    time.Now,
		nonces: RandomNonces{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = New()

// Encode stamps ref using the default codec.
func Encode(ref Reference) (Encoded, error) {
	return defaultCodec.Encode(ref)
}

// Decode classifies text using the default codec.
func Decode(text string) Classification {
	return defaultCodec.Decode(text)
}

// Encode stamps ref with the current time and a fresh nonce and renders
// it as canonical JSON. The token is admitted against its own variant
// schema before it is returned, so every returned token decodes back to
// the same variant.
func (c *Codec) Encode(ref Reference) (Encoded, error) {
	if ref == nil {
		return Encoded{}, fmt.Errorf("%w: nil reference", ErrInvalidReference)
	}

	p := ref.stamp(Stamp{
		IssuedAtMs: c.now().UnixMilli(),
		Nonce:      c.nonces.Nonce(),
	})

	text, err := MarshalCanonical(p.fields())
	if err != nil {
		return Encoded{}, fmt.Errorf("marshal %s: %w", p.Type(), err)
	}

	s, err := payloadSchema()
	if err != nil {
		return Encoded{}, err
	}
	if err := s.admit(p.Type(), text); err != nil {
		return Encoded{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	return Encoded{Payload: p, Text: string(text)}, nil
}

// Decode classifies arbitrary scanned text. It never fails: every input
// yields exactly one Classification.
//
// Text that is not a single JSON value is KindUnknown. A JSON object whose
// "type" names a variant and which carries every required field of that
// variant is classified as that variant; variants are tried in the order
// of Types. Any other object or array is KindStructuredUnrecognized, and
// any other JSON value is KindUnknown.
func (c *Codec) Decode(text string) (result Classification) {
	unknown := Classification{Kind: KindUnknown, Raw: text}

	defer func() {
		if r := recover(); r != nil {
			result = unknown
		}
	}()

	raw := []byte(text)
	if !json.Valid(raw) {
		return unknown
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return unknown
	}

	switch v := generic.(type) {
	case map[string]any:
		if p, ok := classifyObject(v, raw); ok {
			return Classification{Kind: p.Kind(), Payload: p, Raw: text}
		}
		return Classification{Kind: KindStructuredUnrecognized, Data: v, Raw: text}
	case []any:
		return Classification{Kind: KindStructuredUnrecognized, Data: v, Raw: text}
	default:
		return unknown
	}
}

func classifyObject(obj map[string]any, raw []byte) (Payload, bool) {
	discriminant, ok := obj["type"].(string)
	if !ok {
		return nil, false
	}

	s, err := payloadSchema()
	if err != nil {
		return nil, false
	}

	for _, t := range Types {
		if Type(discriminant) != t {
			continue
		}
		if err := s.admit(t, raw); err != nil {
			continue
		}
		p, err := unmarshalPayload(t, raw)
		if err != nil {
			continue
		}
		return p, true
	}
	return nil, false
}

func unmarshalPayload(t Type, raw []byte) (Payload, error) {
	switch t {
	case TypeTeacherAttendance:
		var p TeacherAttendance
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeStudentAttendance:
		var p StudentAttendance
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeSession:
		var p SessionToken
		err := json.Unmarshal(raw, &p)
		return p, err
	case TypeSchoolIdentification:
		var p SchoolIdentity
		err := json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown payload type %q", t)
	}
}

// Fields returns the payload's wire fields, or nil for classifications
// without a payload.
func (c Classification) Fields() map[string]any {
	if c.Payload == nil {
		return nil
	}
	return c.Payload.fields()
}

// MarshalJSON renders the classification as {"kind", "data", "raw"}.
// data is the payload fields for known kinds and the parsed value for
// structured_unrecognized; it is omitted for unknown.
func (c Classification) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind Kind   `json:"kind"`
		Data any    `json:"data,omitempty"`
		Raw  string `json:"raw"`
	}{Kind: c.Kind, Raw: c.Raw}

	switch {
	case c.Payload != nil:
		out.Data = c.Payload.fields()
	case c.Data != nil:
		out.Data = c.Data
	}
	return json.Marshal(out)
}
