package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/testutil"
)

var scanTime = time.UnixMilli(1_700_000_100_000)

func testCodec() *qrpayload.Codec {
	return qrpayload.New(
		qrpayload.WithClock(testutil.FrozenClock(time.UnixMilli(1_700_000_000_000)).Now),
		qrpayload.WithNonceSource(testutil.NewSequenceNonces("n")),
	)
}

func resultFor(t *testing.T, codec *qrpayload.Codec, text string, seq int64) scanner.Result {
	t.Helper()
	return scanner.Result{
		SessionID:      "sess-1",
		CameraID:       "cam-back",
		Seq:            seq,
		ScannedAt:      scanTime.Add(time.Duration(seq) * time.Second),
		Classification: codec.Decode(text),
	}
}

func encodeText(t *testing.T, codec *qrpayload.Codec, ref qrpayload.Reference) string {
	t.Helper()
	enc, err := codec.Encode(ref)
	require.NoError(t, err)
	return enc.Text
}

func TestScanFromResult(t *testing.T) {
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.StudentRef{StudentID: "S1", SchoolID: "102330", RollNumber: "07"})

	scan, err := ScanFromResult(resultFor(t, codec, text, 3))
	require.NoError(t, err)
	assert.Equal(t, Scan{
		Kind:        qrpayload.KindStudent,
		PayloadType: qrpayload.TypeStudentAttendance,
		EntityID:    "S1",
		SchoolID:    "102330",
		Nonce:       "n-0001",
		IssuedAtMs:  1_700_000_000_000,
		ScannedAt:   scanTime.Add(3 * time.Second),
		CameraID:    "cam-back",
		SessionID:   "sess-1",
		Seq:         3,
		Payload:     text,
		Raw:         text,
	}, scan)

	plain, err := ScanFromResult(resultFor(t, codec, "hello world", 4))
	require.NoError(t, err)
	assert.Equal(t, qrpayload.KindUnknown, plain.Kind)
	assert.Empty(t, plain.Nonce)
	assert.Empty(t, plain.Payload)
	assert.Equal(t, "hello world", plain.Raw)
}

func TestScanFromResult_SessionHasNoSchool(t *testing.T) {
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.SessionRef{SessionID: "SES-1", ClassID: "C-7A", TeacherID: "T9"})

	scan, err := ScanFromResult(resultFor(t, codec, text, 1))
	require.NoError(t, err)
	assert.Equal(t, "SES-1", scan.EntityID)
	assert.Empty(t, scan.SchoolID)
}

func TestRecord_DeduplicatesByNonce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.StudentRef{StudentID: "S1", SchoolID: "102330", RollNumber: "07"})

	first, err := ScanFromResult(resultFor(t, codec, text, 1))
	require.NoError(t, err)
	inserted, err := s.Record(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	again, err := ScanFromResult(resultFor(t, codec, text, 2))
	require.NoError(t, err)
	inserted, err = s.Record(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted, "same nonce must not be recorded twice")

	scans, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, int64(1), scans[0].Seq)
}

func TestRecorder_SameCardRecordedOncePerDay(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.StudentRef{StudentID: "S1", SchoolID: "102330", RollNumber: "07"})
	rec := &Recorder{Store: s}

	day1 := time.Date(2024, 3, 4, 8, 0, 0, 0, time.Local)
	scans := []struct {
		at      time.Time
		session string
	}{
		{day1, "morning"},
		{day1.Add(3 * time.Hour), "late"},
		{day1.AddDate(0, 0, 1), "morning"},
	}
	for i, sc := range scans {
		res := scanner.Result{
			SessionID:      sc.session,
			CameraID:       "cam-back",
			Seq:            int64(i + 1),
			ScannedAt:      sc.at,
			Classification: codec.Decode(text),
		}
		require.NoError(t, rec.HandleResult(ctx, res))
	}

	recorded, dups := rec.Counts()
	assert.Equal(t, int64(2), recorded)
	assert.Equal(t, int64(1), dups)

	rows, err := s.List(ctx, Filter{EntityID: "S1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-04", rows[0].ScannedAt.Format(DayLayout))
	assert.Equal(t, "2024-03-05", rows[1].ScannedAt.Format(DayLayout))
	assert.Equal(t, rows[0].Nonce, rows[1].Nonce)
}

func TestRecord_ScansWithoutNonceAreKept(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()

	for seq := int64(1); seq <= 3; seq++ {
		scan, err := ScanFromResult(resultFor(t, codec, "hello world", seq))
		require.NoError(t, err)
		inserted, err := s.Record(ctx, scan)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	scans, err := s.List(ctx, Filter{Kind: qrpayload.KindUnknown})
	require.NoError(t, err)
	assert.Len(t, scans, 3)
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()

	texts := []string{
		encodeText(t, codec, qrpayload.StudentRef{StudentID: "S1", SchoolID: "102330", RollNumber: "07"}),
		encodeText(t, codec, qrpayload.StudentRef{StudentID: "S2", SchoolID: "102330", RollNumber: "08"}),
		encodeText(t, codec, qrpayload.TeacherRef{TeacherID: "T9", SchoolID: "200000", SchoolName: "Other"}),
		encodeText(t, codec, qrpayload.StudentRef{StudentID: "S1", SchoolID: "102330", RollNumber: "07"}),
	}
	for i, text := range texts {
		scan, err := ScanFromResult(resultFor(t, codec, text, int64(i+1)))
		require.NoError(t, err)
		_, err = s.Record(ctx, scan)
		require.NoError(t, err)
	}

	entities := func(scans []Scan) []string {
		ids := make([]string, len(scans))
		for i, sc := range scans {
			ids[i] = sc.EntityID
		}
		return ids
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"S1", "S2", "T9", "S1"}},
		{"by kind", Filter{Kind: qrpayload.KindTeacher}, []string{"T9"}},
		{"by entity", Filter{EntityID: "S1"}, []string{"S1", "S1"}},
		{"by school", Filter{SchoolID: "102330"}, []string{"S1", "S2", "S1"}},
		{"by session", Filter{SessionID: "sess-1"}, []string{"S1", "S2", "T9", "S1"}},
		{"other session", Filter{SessionID: "sess-2"}, []string{}},
		{"since", Filter{Since: scanTime.Add(3 * time.Second)}, []string{"T9", "S1"}},
		{"limit", Filter{Limit: 2}, []string{"S1", "S2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entities(scans))
		})
	}
}

func TestList_RoundTripsFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.TeacherRef{TeacherID: "T9", SchoolID: "102330", SchoolName: "Demo School", Subject: "Physics"})

	want, err := ScanFromResult(resultFor(t, codec, text, 5))
	require.NoError(t, err)
	_, err = s.Record(ctx, want)
	require.NoError(t, err)

	got, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	want.ID = got[0].ID
	assert.Equal(t, want.ScannedAt.UnixMilli(), got[0].ScannedAt.UnixMilli())
	want.ScannedAt = got[0].ScannedAt
	assert.Equal(t, want, got[0])

	decoded := codec.Decode(got[0].Payload)
	assert.Equal(t, qrpayload.KindTeacher, decoded.Kind)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.SchoolRef{SchoolID: "102330", SchoolName: "Demo School"})

	var seen []bool
	rec := &Recorder{Store: s, OnRecorded: func(_ Scan, inserted bool) { seen = append(seen, inserted) }}

	require.NoError(t, rec.HandleResult(ctx, resultFor(t, codec, text, 1)))
	require.NoError(t, rec.HandleResult(ctx, resultFor(t, codec, text, 2)))
	require.NoError(t, rec.HandleResult(ctx, resultFor(t, codec, `{"type":"payment"}`, 3)))
	rec.HandleWarning(ctx, scanner.Warning{SessionID: "sess-1", Err: errors.New("checksum")})

	recorded, dups := rec.Counts()
	assert.Equal(t, int64(1), recorded)
	assert.Equal(t, int64(1), dups)
	assert.Equal(t, []bool{true, false}, seen)

	scans, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, scans, 1)
}

func TestRecorder_KeepUnrecognized(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	codec := testCodec()
	rec := &Recorder{Store: s, KeepUnrecognized: true}

	require.NoError(t, rec.HandleResult(ctx, resultFor(t, codec, `{"type":"payment"}`, 1)))

	scans, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, qrpayload.KindStructuredUnrecognized, scans[0].Kind)
}

func TestRecorder_StoreErrorSurfaces(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	codec := testCodec()
	text := encodeText(t, codec, qrpayload.SchoolRef{SchoolID: "102330", SchoolName: "Demo School"})

	rec := &Recorder{Store: s}
	err := rec.HandleResult(context.Background(), resultFor(t, codec, text, 1))
	assert.Error(t, err)
}
