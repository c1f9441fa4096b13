// Package attendance records classified scan results in SQLite.
//
// Each recognized token carries a nonce. The scans table keeps nonces
// unique, so presenting the same printed code twice records one row and
// Record reports the second attempt as not inserted. Expiry of old tokens
// is left to callers via Filter.Since.
//
// Recorder plugs a Store into a scanner.Manager as its Sink.
package attendance
