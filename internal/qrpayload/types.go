package qrpayload

import "golang.org/x/text/unicode/norm"

// Type is the payload discriminant carried in the "type" field.
type Type string

const (
	TypeStudentAttendance    Type = "student_attendance"
	TypeTeacherAttendance    Type = "teacher_attendance"
	TypeSession              Type = "attendance_session"
	TypeSchoolIdentification Type = "school_identification"
)

// Types lists every payload type in decode precedence order.
var Types = []Type{
	TypeTeacherAttendance,
	TypeStudentAttendance,
	TypeSession,
	TypeSchoolIdentification,
}

// Valid reports whether t is one of the known payload types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Kind is the outcome of classifying scanned text.
type Kind string

const (
	KindStudent                Kind = "student"
	KindTeacher                Kind = "teacher"
	KindSession                Kind = "session"
	KindSchool                 Kind = "school"
	KindStructuredUnrecognized Kind = "structured_unrecognized"
	KindUnknown                Kind = "unknown"
)

// Stamp holds the fields generated at encode time.
type Stamp struct {
	IssuedAtMs int64  `json:"issuedAtMs"`
	Nonce      string `json:"nonce"`
}

// Payload is one decoded or freshly encoded token.
// Implemented by StudentAttendance, TeacherAttendance, SessionToken and SchoolIdentity.
type Payload interface {
	Type() Type
	Kind() Kind
	EntityID() string
	Stamped() Stamp

	// fields returns the wire fields, including "type".
	fields() map[string]any
}

// StudentAttendance identifies a student at a school.
type StudentAttendance struct {
	StudentID  string `json:"studentId"`
	SchoolID   string `json:"schoolId"`
	RollNumber string `json:"rollNumber"`
	Stamp
}

func (StudentAttendance) Type() Type         { return TypeStudentAttendance }
func (StudentAttendance) Kind() Kind         { return KindStudent }
func (p StudentAttendance) EntityID() string { return p.StudentID }
func (p StudentAttendance) Stamped() Stamp   { return p.Stamp }

func (p StudentAttendance) fields() map[string]any {
	return withStamp(map[string]any{
		"type":       string(TypeStudentAttendance),
		"studentId":  p.StudentID,
		"schoolId":   p.SchoolID,
		"rollNumber": p.RollNumber,
	}, p.Stamp)
}

// TeacherAttendance identifies a teacher at a school. Subject is optional.
type TeacherAttendance struct {
	TeacherID  string `json:"teacherId"`
	SchoolID   string `json:"schoolId"`
	SchoolName string `json:"schoolName"`
	Subject    string `json:"subject,omitempty"`
	Stamp
}

func (TeacherAttendance) Type() Type         { return TypeTeacherAttendance }
func (TeacherAttendance) Kind() Kind         { return KindTeacher }
func (p TeacherAttendance) EntityID() string { return p.TeacherID }
func (p TeacherAttendance) Stamped() Stamp   { return p.Stamp }

func (p TeacherAttendance) fields() map[string]any {
	m := map[string]any{
		"type":       string(TypeTeacherAttendance),
		"teacherId":  p.TeacherID,
		"schoolId":   p.SchoolID,
		"schoolName": p.SchoolName,
	}
	if p.Subject != "" {
		m["subject"] = p.Subject
	}
	return withStamp(m, p.Stamp)
}

// SessionToken identifies an attendance session opened for a class.
type SessionToken struct {
	SessionID string `json:"sessionId"`
	ClassID   string `json:"classId"`
	TeacherID string `json:"teacherId"`
	Stamp
}

func (SessionToken) Type() Type         { return TypeSession }
func (SessionToken) Kind() Kind         { return KindSession }
func (p SessionToken) EntityID() string { return p.SessionID }
func (p SessionToken) Stamped() Stamp   { return p.Stamp }

func (p SessionToken) fields() map[string]any {
	return withStamp(map[string]any{
		"type":      string(TypeSession),
		"sessionId": p.SessionID,
		"classId":   p.ClassID,
		"teacherId": p.TeacherID,
	}, p.Stamp)
}

// SchoolIdentity identifies a school.
type SchoolIdentity struct {
	SchoolID   string `json:"schoolId"`
	SchoolName string `json:"schoolName"`
	Stamp
}

func (SchoolIdentity) Type() Type         { return TypeSchoolIdentification }
func (SchoolIdentity) Kind() Kind         { return KindSchool }
func (p SchoolIdentity) EntityID() string { return p.SchoolID }
func (p SchoolIdentity) Stamped() Stamp   { return p.Stamp }

func (p SchoolIdentity) fields() map[string]any {
	return withStamp(map[string]any{
		"type":       string(TypeSchoolIdentification),
		"schoolId":   p.SchoolID,
		"schoolName": p.SchoolName,
	}, p.Stamp)
}

func withStamp(m map[string]any, s Stamp) map[string]any {
	m["issuedAtMs"] = s.IssuedAtMs
	m["nonce"] = s.Nonce
	return m
}

// Reference is the caller-supplied description of the entity to encode.
// The codec adds the stamp.
type Reference interface {
	PayloadType() Type
	EntityID() string

	stamp(s Stamp) Payload
}

// StudentRef references a student.
type StudentRef struct {
	StudentID  string
	SchoolID   string
	RollNumber string
}

func (StudentRef) PayloadType() Type   { return TypeStudentAttendance }
func (r StudentRef) EntityID() string { return r.StudentID }

func (r StudentRef) stamp(s Stamp) Payload {
	return StudentAttendance{StudentID: nfc(r.StudentID), SchoolID: nfc(r.SchoolID), RollNumber: nfc(r.RollNumber), Stamp: s}
}

// TeacherRef references a teacher.
type TeacherRef struct {
	TeacherID  string
	SchoolID   string
	SchoolName string
	Subject    string
}

func (TeacherRef) PayloadType() Type   { return TypeTeacherAttendance }
func (r TeacherRef) EntityID() string { return r.TeacherID }

func (r TeacherRef) stamp(s Stamp) Payload {
	return TeacherAttendance{
		TeacherID:  nfc(r.TeacherID),
		SchoolID:   nfc(r.SchoolID),
		SchoolName: nfc(r.SchoolName),
		Subject:    nfc(r.Subject),
		Stamp:      s,
	}
}

// SessionRef references a classroom attendance session.
type SessionRef struct {
	SessionID string
	ClassID   string
	TeacherID string
}

func (SessionRef) PayloadType() Type   { return TypeSession }
func (r SessionRef) EntityID() string { return r.SessionID }

func (r SessionRef) stamp(s Stamp) Payload {
	return SessionToken{SessionID: nfc(r.SessionID), ClassID: nfc(r.ClassID), TeacherID: nfc(r.TeacherID), Stamp: s}
}

// SchoolRef references a school.
type SchoolRef struct {
	SchoolID   string
	SchoolName string
}

func (SchoolRef) PayloadType() Type   { return TypeSchoolIdentification }
func (r SchoolRef) EntityID() string { return r.SchoolID }

func (r SchoolRef) stamp(s Stamp) Payload {
	return SchoolIdentity{SchoolID: nfc(r.SchoolID), SchoolName: nfc(r.SchoolName), Stamp: s}
}

// nfc applies the normalization token text uses, so a stamped payload
// equals what decoding its own token yields.
func nfc(s string) string {
	return norm.NFC.String(s)
}

// Classification is the result of decoding scanned text.
//
// Payload is set for KindStudent, KindTeacher, KindSession and KindSchool.
// Data holds the generic parsed JSON value for KindStructuredUnrecognized.
// Raw is always the text that was decoded.
type Classification struct {
	Kind    Kind
	Payload Payload
	Data    any
	Raw     string
}

// Recognized reports whether the text decoded to one of the known variants.
func (c Classification) Recognized() bool {
	return c.Payload != nil
}
