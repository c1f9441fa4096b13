package qrpayload

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

var definitionNames = map[Type]string{
	TypeTeacherAttendance:    "#TeacherAttendance",
	TypeStudentAttendance:    "#StudentAttendance",
	TypeSession:              "#SessionToken",
	TypeSchoolIdentification: "#SchoolIdentity",
}

// schema admits payload JSON against the per-variant CUE definitions.
// A cue.Context is not safe for concurrent use, so every evaluation holds mu.
type schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[Type]cue.Value
}

var (
	schemaOnce   sync.Once
	loadedSchema *schema
	schemaErr    error
)

// payloadSchema returns the process-wide schema, compiling it on first use.
func payloadSchema() (*schema, error) {
	schemaOnce.Do(func() {
		loadedSchema, schemaErr = compileSchema(schemaSource)
	})
	return loadedSchema, schemaErr
}

func compileSchema(src string) (*schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	defs := make(map[Type]cue.Value, len(definitionNames))
	for t, name := range definitionNames {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("payload schema: definition %s not found", name)
		}
		defs[t] = def
	}
	return &schema{ctx: ctx, defs: defs}, nil
}

// admit reports whether raw, a JSON document, satisfies every required
// field of variant t. The returned error explains the first violation.
func (s *schema) admit(t Type, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[t]
	if !ok {
		return fmt.Errorf("unknown payload type %q", t)
	}

	expr, err := cuejson.Extract("payload", raw)
	if err != nil {
		return fmt.Errorf("extract payload: %w", err)
	}
	v := s.ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	return nil
}
