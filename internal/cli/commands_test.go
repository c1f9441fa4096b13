package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/attendance"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

const (
	classroomScript = "../scanner/replay/testdata/classroom.yaml"
	classRoster     = "../roster/testdata/class7a.yaml"
	scenarioDir     = "../harness/testdata/scenarios"
	goldenDir       = "../harness/testdata/golden"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	out, _, code := runCLI(t, "", "--format", "json",
		"encode", "student_attendance", "studentId=S1", "schoolId=SCH1", "rollNumber=12")
	require.Equal(t, ExitSuccess, code, out)

	var enc encodeOutput
	decodeData(t, out, &enc)
	assert.Equal(t, qrpayload.TypeStudentAttendance, enc.Type)
	assert.Equal(t, "S1", enc.EntityID)

	out, _, code = runCLI(t, "", "--format", "json", "decode", enc.Text)
	require.Equal(t, ExitSuccess, code, out)

	var dec struct {
		Kind string         `json:"kind"`
		Data map[string]any `json:"data"`
		Raw  string         `json:"raw"`
	}
	decodeData(t, out, &dec)
	assert.Equal(t, "student", dec.Kind)
	assert.Equal(t, "S1", dec.Data["studentId"])
	assert.Equal(t, "12", dec.Data["rollNumber"])
	assert.Equal(t, enc.Text, dec.Raw)
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"missing field", []string{"student_attendance", "studentId=S1"}, CodeInvalidReference},
		{"unknown type", []string{"library_card", "cardId=L1"}, CodeInvalidReference},
		{"unknown key", []string{"school_identification", "schoolId=1", "schoolName=A", "motto=x"}, CodeInvalidReference},
		{"not key=value", []string{"student_attendance", "S1"}, CodeUsage},
		{"type as field", []string{"student_attendance", "type=session"}, CodeUsage},
		{"duplicate field", []string{"school_identification", "schoolId=1", "schoolId=2"}, CodeUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, code := runCLI(t, "", append([]string{"--format", "json", "encode"}, tt.args...)...)

			assert.Equal(t, ExitCommandError, code)
			assert.Contains(t, out, `"code":"`+tt.wantCode+`"`)
		})
	}
}

func TestEncode_PNGDecodesFromImage(t *testing.T) {
	t.Setenv("QRATTEND_SCAN_REGION", "0")
	png := filepath.Join(t.TempDir(), "school.png")

	out, _, code := runCLI(t, "", "--format", "json",
		"encode", "school_identification", "schoolId=102330", "schoolName=Demo School", "--png", png)
	require.Equal(t, ExitSuccess, code, out)

	var enc encodeOutput
	decodeData(t, out, &enc)
	assert.Equal(t, png, enc.PNG)
	require.FileExists(t, png)

	out, _, code = runCLI(t, "", "decode", "--image", png)
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "kind: school")
	assert.Contains(t, out, "entity: 102330")
}

func TestDecode_Stdin(t *testing.T) {
	out, _, code := runCLI(t, "hello world\n", "decode")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "kind: unknown\n", out)
}

func TestDecode_Structured(t *testing.T) {
	out, _, code := runCLI(t, "", "--format", "json", "decode", `{"foo":1}`)
	require.Equal(t, ExitSuccess, code)

	var dec struct {
		Kind string         `json:"kind"`
		Data map[string]any `json:"data"`
	}
	decodeData(t, out, &dec)
	assert.Equal(t, "structured_unrecognized", dec.Kind)
	assert.Equal(t, float64(1), dec.Data["foo"])
}

func TestDecode_TextAndImageConflict(t *testing.T) {
	_, _, code := runCLI(t, "", "decode", "--image", "x.png", "hello")
	assert.Equal(t, ExitCommandError, code)
}

func TestBatch_ReportsSkippedAndWritesImages(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "codes")

	out, _, code := runCLI(t, "", "--format", "json", "batch", classRoster, "--out", outDir, "--png")
	require.Equal(t, ExitSuccess, code, out)

	var report BatchReport
	decodeData(t, out, &report)
	require.Len(t, report.Tokens, 4)
	require.Len(t, report.Skipped, 3)

	var skipped []int
	for _, s := range report.Skipped {
		skipped = append(skipped, s.Index)
		assert.NotEmpty(t, s.Error)
	}
	assert.Equal(t, []int{1, 4, 6}, skipped)

	for _, tok := range report.Tokens {
		assert.Equal(t, imageName(tok.Index, tok.Type, tok.EntityID), tok.Image)
		assert.FileExists(t, filepath.Join(outDir, tok.Image))
		c := qrpayload.Decode(tok.Text)
		require.True(t, c.Recognized(), tok.Text)
		assert.Equal(t, tok.EntityID, c.Payload.EntityID())
	}
	assert.FileExists(t, filepath.Join(outDir, ManifestFile))
}

func TestBatch_Strict(t *testing.T) {
	out, _, code := runCLI(t, "", "batch", classRoster, "--strict")

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "4 encoded, 3 skipped")
}

func TestBatch_PNGRequiresOut(t *testing.T) {
	_, stderr, code := runCLI(t, "", "batch", classRoster, "--png")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "--png requires --out")
}

func TestCameras_MarksPreferred(t *testing.T) {
	out, _, code := runCLI(t, "", "--format", "json", "cameras", "--script", classroomScript)
	require.Equal(t, ExitSuccess, code, out)

	var cams []CameraInfo
	decodeData(t, out, &cams)
	assert.Equal(t, []CameraInfo{
		{ID: "cam-front", Label: "Front Camera"},
		{ID: "cam-back", Label: "Back Camera", Preferred: true},
	}, cams)
}

func TestCameras_FeedRequired(t *testing.T) {
	_, _, code := runCLI(t, "", "cameras")
	assert.Equal(t, ExitCommandError, code)

	_, _, code = runCLI(t, "", "cameras", "--dir", "a", "--script", "b")
	assert.Equal(t, ExitCommandError, code)
}

func TestCameras_MissingDirectory(t *testing.T) {
	out, _, code := runCLI(t, "", "--format", "json", "cameras", "--dir", filepath.Join(t.TempDir(), "none"))

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, `"code":"`+CodeCamera+`"`)
}

func TestScan_RecordsAndLists(t *testing.T) {
	db := filepath.Join(t.TempDir(), "scans.db")

	out, _, code := runCLI(t, "", "--format", "json", "scan", "--script", classroomScript, "--db", db)
	require.Equal(t, ExitSuccess, code, out)

	var report ScanReport
	decodeData(t, out, &report)
	assert.Equal(t, "cam-back", report.Camera)
	assert.EqualValues(t, 1, report.Recorded)
	assert.EqualValues(t, 0, report.Duplicates)
	assert.EqualValues(t, 2, report.Stats.Results)
	assert.EqualValues(t, 1, report.Stats.Warnings)
	assert.EqualValues(t, 3, report.Stats.Suppressed)
	assert.Equal(t, report.Stats.Acquired, report.Stats.Released)
	require.Len(t, report.Scans, 1)
	assert.Equal(t, "S1", report.Scans[0].EntityID)

	out, _, code = runCLI(t, "", "--format", "json", "attendance", "list", "--db", db, "--kind", "student")
	require.Equal(t, ExitSuccess, code, out)

	var scans []attendance.Scan
	decodeData(t, out, &scans)
	require.Len(t, scans, 1)
	assert.Equal(t, "S1", scans[0].EntityID)
	assert.Equal(t, "102330", scans[0].SchoolID)
	assert.Equal(t, "cam-back", scans[0].CameraID)
}

func TestScan_UnknownCamera(t *testing.T) {
	out, _, code := runCLI(t, "", "--format", "json", "scan", "--script", classroomScript, "--camera", "cam-side")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, `"code":"`+CodeCamera+`"`)
}

func TestScan_TextOutput(t *testing.T) {
	out, _, code := runCLI(t, "", "scan", "--script", classroomScript, "--camera", "cam-front")

	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "recorded student S1\n")
	assert.Contains(t, out, "1 recorded, 0 duplicates, 2 results, 1 warnings\n")
}

func TestAttendanceList_Empty(t *testing.T) {
	out, _, code := runCLI(t, "", "attendance", "list")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "no scans\n", out)
}

func TestAttendanceList_InvalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"--kind", "visitor"},
		{"--limit", "-1"},
		{"--since", "yesterday"},
	} {
		_, _, code := runCLI(t, "", append([]string{"attendance", "list"}, args...)...)
		assert.Equal(t, ExitCommandError, code, args)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("2h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = parseSince("2024-02-29T08:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), got)

	_, err = parseSince("-1h", now)
	assert.Error(t, err)
	_, err = parseSince("soon", now)
	assert.Error(t, err)
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "003-student_attendance-S_1.png", imageName(3, qrpayload.TypeStudentAttendance, "S/1"))
	assert.Equal(t, "012-attendance_session-SES-1.png", imageName(12, qrpayload.TypeSession, "SES-1"))
}

func TestCheck_ScenariosMatchGolden(t *testing.T) {
	out, _, code := runCLI(t, "", "--format", "json", "check", scenarioDir, "--golden", goldenDir)
	require.Equal(t, ExitSuccess, code, out)

	var report CheckReport
	decodeData(t, out, &report)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, len(report.Scenarios), report.Passed)
	for _, sr := range report.Scenarios {
		assert.Equal(t, "match", sr.Golden, sr.Name)
	}
}

func TestCheck_FilterAndUpdate(t *testing.T) {
	golden := t.TempDir()

	out, _, code := runCLI(t, "", "--format", "json", "check", scenarioDir, "--filter", "switch*", "--golden", golden, "--update")
	require.Equal(t, ExitSuccess, code, out)

	var report CheckReport
	decodeData(t, out, &report)
	require.Len(t, report.Scenarios, 1)
	assert.Equal(t, "switch_camera", report.Scenarios[0].Name)
	assert.Equal(t, "updated", report.Scenarios[0].Golden)

	want, err := os.ReadFile(filepath.Join(goldenDir, "switch_camera.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(golden, "switch_camera.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestCheck_MissingGoldenFails(t *testing.T) {
	out, _, code := runCLI(t, "", "check", scenarioDir, "--filter", "start_*", "--golden", t.TempDir())

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "FAIL start_stop_cycle")
}

func TestCheck_UpdateRequiresGolden(t *testing.T) {
	_, _, code := runCLI(t, "", "check", scenarioDir, "--update")
	assert.Equal(t, ExitCommandError, code)
}

func TestFindScenarioFiles(t *testing.T) {
	files, err := findScenarioFiles(scenarioDir)
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, filepath.Join(scenarioDir, "acquisition_failure.yaml"), files[0])
}
