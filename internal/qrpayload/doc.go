// Package qrpayload implements the wire format carried inside attendance QR codes.
//
// A payload is a small tagged union. The "type" field selects one of four
// variants:
//
//   - student_attendance: a student's personal attendance card
//   - teacher_attendance: a teacher's personal attendance card
//   - attendance_session: a classroom session opened by a teacher
//   - school_identification: a school's identity card
//
// Every variant carries two stamp fields set at encode time: issuedAtMs
// (milliseconds since the Unix epoch) and nonce (a random identifier that
// makes two otherwise identical tokens distinguishable). Payloads are not
// signed; expiry and replay policy belong to whoever records the scan.
//
// # Text Format
//
// Payload text is canonical JSON: keys sorted, no HTML escaping, strings NFC
// normalized, integers only. Encoding the same payload twice yields the same
// bytes, so tokens can be compared and stored verbatim.
//
// # Classification
//
// Decode never fails. Every input maps to exactly one Classification,
// evaluated in a fixed precedence order:
//
//  1. text that is not JSON              -> unknown
//  2. admitted teacher_attendance        -> teacher
//  3. admitted student_attendance        -> student
//  4. admitted attendance_session        -> session
//  5. admitted school_identification     -> school
//  6. any other JSON object or array     -> structured_unrecognized
//  7. any other JSON value               -> unknown
//
// A payload is admitted when its variant's required fields, declared as a
// group in schema.cue, are all present and well-typed. Extra fields are
// ignored so newer producers can add fields without breaking older readers.
package qrpayload
