package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// Scan is one row of the scan log.
type Scan struct {
	ID          int64          `json:"id"`
	Kind        qrpayload.Kind `json:"kind"`
	PayloadType qrpayload.Type `json:"payload_type,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	SchoolID    string         `json:"school_id,omitempty"`
	Nonce       string         `json:"nonce,omitempty"`
	IssuedAtMs  int64          `json:"issued_at_ms,omitempty"`
	ScannedAt   time.Time      `json:"scanned_at"`
	CameraID    string         `json:"camera_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Seq         int64          `json:"seq"`
	Payload     string         `json:"payload,omitempty"` // canonical JSON of the payload fields
	Raw         string         `json:"raw"`
}

// ScanFromResult flattens a scanner result into a row.
func ScanFromResult(r scanner.Result) (Scan, error) {
	c := r.Classification
	s := Scan{
		Kind:      c.Kind,
		ScannedAt: r.ScannedAt,
		CameraID:  r.CameraID,
		SessionID: r.SessionID,
		Seq:       r.Seq,
		Raw:       c.Raw,
	}
	if c.Payload == nil {
		return s, nil
	}

	stamp := c.Payload.Stamped()
	s.PayloadType = c.Payload.Type()
	s.EntityID = c.Payload.EntityID()
	s.SchoolID = schoolOf(c.Payload)
	s.Nonce = stamp.Nonce
	s.IssuedAtMs = stamp.IssuedAtMs

	payload, err := qrpayload.MarshalCanonical(c.Fields())
	if err != nil {
		return Scan{}, fmt.Errorf("scan payload: %w", err)
	}
	s.Payload = string(payload)
	return s, nil
}

func schoolOf(p qrpayload.Payload) string {
	switch p := p.(type) {
	case qrpayload.StudentAttendance:
		return p.SchoolID
	case qrpayload.TeacherAttendance:
		return p.SchoolID
	case qrpayload.SchoolIdentity:
		return p.SchoolID
	}
	return ""
}

// DayLayout formats the scan day a nonce is unique within.
const DayLayout = "2006-01-02"

// Record inserts a scan. It reports false without error when the same
// nonce was already recorded on the scan's day, in ScannedAt's location.
// The same card scanned on another day is recorded again.
func (s *Store) Record(ctx context.Context, scan Scan) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scans
		(kind, payload_type, entity_id, school_id, nonce, issued_at_ms, scanned_at_ms,
		 scan_day, camera_id, session_id, seq, payload, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		string(scan.Kind),
		string(scan.PayloadType),
		scan.EntityID,
		scan.SchoolID,
		sql.NullString{String: scan.Nonce, Valid: scan.Nonce != ""},
		scan.IssuedAtMs,
		scan.ScannedAt.UnixMilli(),
		scan.ScannedAt.Format(DayLayout),
		scan.CameraID,
		scan.SessionID,
		scan.Seq,
		scan.Payload,
		scan.Raw,
	)
	if err != nil {
		return false, fmt.Errorf("record scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record scan: %w", err)
	}
	return n == 1, nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Kind      qrpayload.Kind
	EntityID  string
	SchoolID  string
	SessionID string
	Since     time.Time // scanned at or after
	Limit     int
}

// List returns matching scans ordered by insertion.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) List(ctx context.Context, f Filter) ([]Scan, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if f.Kind != "" {
		add("kind = ?", string(f.Kind))
	}
	if f.EntityID != "" {
		add("entity_id = ?", f.EntityID)
	}
	if f.SchoolID != "" {
		add("school_id = ?", f.SchoolID)
	}
	if f.SessionID != "" {
		add("session_id = ?", f.SessionID)
	}
	if !f.Since.IsZero() {
		add("scanned_at_ms >= ?", f.Since.UnixMilli())
	}

	query := `
		SELECT id, kind, payload_type, entity_id, school_id, nonce, issued_at_ms,
		       scanned_at_ms, camera_id, session_id, seq, payload, raw
		FROM scans`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY id ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var (
			sc        Scan
			kind, typ string
			nonce     sql.NullString
			scannedMs int64
		)
		if err := rows.Scan(&sc.ID, &kind, &typ, &sc.EntityID, &sc.SchoolID, &nonce, &sc.IssuedAtMs,
			&scannedMs, &sc.CameraID, &sc.SessionID, &sc.Seq, &sc.Payload, &sc.Raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.Kind = qrpayload.Kind(kind)
		sc.PayloadType = qrpayload.Type(typ)
		sc.Nonce = nonce.String
		sc.ScannedAt = time.UnixMilli(scannedMs)
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return scans, nil
}
