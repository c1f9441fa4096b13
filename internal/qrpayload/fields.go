package qrpayload

import (
	"fmt"
	"sort"
	"strings"
)

var referenceKeys = map[Type][]string{
	TypeStudentAttendance:    {"studentId", "schoolId", "rollNumber"},
	TypeTeacherAttendance:    {"teacherId", "schoolId", "schoolName", "subject"},
	TypeSession:              {"sessionId", "classId", "teacherId"},
	TypeSchoolIdentification: {"schoolId", "schoolName"},
}

// ReferenceFromFields builds a reference from a flat field map keyed by
// wire names, for example {"type": "student_attendance", "studentId": "S1"}.
//
// Unknown keys are rejected. Missing fields are not checked here; Encode
// rejects them.
func ReferenceFromFields(fields map[string]string) (Reference, error) {
	t := Type(fields["type"])
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidReference, fields["type"])
	}

	allowed := referenceKeys[t]
	var unknown []string
	for k := range fields {
		if k == "type" || contains(allowed, k) {
			continue
		}
		unknown = append(unknown, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s does not accept %s", ErrInvalidReference, t, strings.Join(unknown, ", "))
	}

	switch t {
	case TypeStudentAttendance:
		return StudentRef{
			StudentID:  fields["studentId"],
			SchoolID:   fields["schoolId"],
			RollNumber: fields["rollNumber"],
		}, nil
	case TypeTeacherAttendance:
		return TeacherRef{
			TeacherID:  fields["teacherId"],
			SchoolID:   fields["schoolId"],
			SchoolName: fields["schoolName"],
			Subject:    fields["subject"],
		}, nil
	case TypeSession:
		return SessionRef{
			SessionID: fields["sessionId"],
			ClassID:   fields["classId"],
			TeacherID: fields["teacherId"],
		}, nil
	default:
		return SchoolRef{
			SchoolID:   fields["schoolId"],
			SchoolName: fields["schoolName"],
		}, nil
	}
}

// ReferenceKeys returns the field names accepted for t, excluding "type".
func ReferenceKeys(t Type) []string {
	return append([]string(nil), referenceKeys[t]...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
