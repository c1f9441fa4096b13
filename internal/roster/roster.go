// Package roster reads YAML files listing the entities to print codes for.
//
//	school:
//	  id: "102330"
//	  name: Demo School
//	entities:
//	  - type: student_attendance
//	    studentId: S1
//	    rollNumber: "07"
//	  - type: teacher_attendance
//	    teacherId: T9
//	    subject: Physics
//
// Entity keys use the payload's wire names. The school block fills
// schoolId and schoolName on entries whose type accepts them and that do
// not set them.
package roster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

type School struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Roster is a parsed roster file.
type Roster struct {
	School   School              `yaml:"school"`
	Entities []map[string]string `yaml:"entities"`
}

// EntryError is a roster entry that does not form a valid reference.
type EntryError struct {
	Index int
	Type  qrpayload.Type
	Err   error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e EntryError) Unwrap() error { return e.Err }

// Load reads a roster file, rejecting unknown top-level fields.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Roster, error) {
	var r Roster
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	return &r, nil
}

// References builds one reference per entry. refs[i] is nil when entry i
// is invalid; its error is in errs.
func (r *Roster) References() (refs []qrpayload.Reference, errs []EntryError) {
	refs = make([]qrpayload.Reference, len(r.Entities))
	for i, entry := range r.Entities {
		ref, err := qrpayload.ReferenceFromFields(r.withSchool(entry))
		if err != nil {
			errs = append(errs, EntryError{Index: i, Type: qrpayload.Type(entry["type"]), Err: err})
			continue
		}
		refs[i] = ref
	}
	return refs, errs
}

func (r *Roster) withSchool(entry map[string]string) map[string]string {
	fields := make(map[string]string, len(entry)+2)
	for k, v := range entry {
		fields[k] = v
	}
	accepted := qrpayload.ReferenceKeys(qrpayload.Type(entry["type"]))
	fill := func(key, value string) {
		if value == "" || fields[key] != "" {
			return
		}
		for _, k := range accepted {
			if k == key {
				fields[key] = value
				return
			}
		}
	}
	fill("schoolId", r.School.ID)
	fill("schoolName", r.School.Name)
	return fields
}

// EncodeAll encodes every entry with codec. Invalid entries appear in
// Skipped with their build error; indexes refer to roster entries.
func (r *Roster) EncodeAll(ctx context.Context, codec *qrpayload.Codec, renderer qrpayload.Renderer) qrpayload.BatchResult {
	refs, errs := r.References()

	valid := make([]qrpayload.Reference, 0, len(refs))
	index := make([]int, 0, len(refs))
	for i, ref := range refs {
		if ref != nil {
			valid = append(valid, ref)
			index = append(index, i)
		}
	}

	res := codec.EncodeBatch(ctx, valid, renderer)
	for i := range res.Items {
		res.Items[i].Index = index[res.Items[i].Index]
	}
	for i := range res.Skipped {
		res.Skipped[i].Index = index[res.Skipped[i].Index]
	}
	for _, e := range errs {
		res.Skipped = append(res.Skipped, qrpayload.BatchSkip{
			Index:    e.Index,
			Type:     e.Type,
			EntityID: entityOf(r.Entities[e.Index]),
			Err:      e.Err,
		})
	}
	sort.Slice(res.Skipped, func(a, b int) bool {
		return res.Skipped[a].Index < res.Skipped[b].Index
	})
	return res
}

func entityOf(entry map[string]string) string {
	for _, key := range []string{"studentId", "teacherId", "sessionId", "schoolId"} {
		if id := entry[key]; id != "" {
			return id
		}
	}
	return ""
}
