package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/attendance"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
)

// NewAttendanceCommand creates the attendance command group.
func NewAttendanceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Inspect recorded attendance",
	}
	cmd.AddCommand(NewAttendanceListCommand(rootOpts))
	return cmd
}

// AttendanceListOptions holds flags for attendance list.
type AttendanceListOptions struct {
	*RootOptions
	DB      string
	Kind    string
	Entity  string
	School  string
	Session string
	Since   string
	Limit   int
}

// NewAttendanceListCommand creates the attendance list command.
func NewAttendanceListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttendanceListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded scans",
		Long: `List recorded scans in the order they were recorded.

--since accepts an RFC 3339 time or a duration back from now (e.g. 2h).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttendanceList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "attendance database (default from QRATTEND_DB)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only this kind (student, teacher, session, school, ...)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only this entity ID")
	cmd.Flags().StringVar(&opts.School, "school", "", "only this school ID")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only this scan session")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only scans at or after this time")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 = all)")

	return cmd
}

var listKinds = []qrpayload.Kind{
	qrpayload.KindStudent,
	qrpayload.KindTeacher,
	qrpayload.KindSession,
	qrpayload.KindSchool,
	qrpayload.KindStructuredUnrecognized,
	qrpayload.KindUnknown,
}

func runAttendanceList(cmd *cobra.Command, opts *AttendanceListOptions) error {
	filter := attendance.Filter{
		Kind:      qrpayload.Kind(opts.Kind),
		EntityID:  opts.Entity,
		SchoolID:  opts.School,
		SessionID: opts.Session,
		Limit:     opts.Limit,
	}
	if opts.Kind != "" && !validKind(filter.Kind) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be one of %v", opts.Kind, listKinds))
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	if opts.Since != "" {
		since, err := parseSince(opts.Since, time.Now())
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		filter.Since = since
	}

	dbPath := opts.DB
	if dbPath == "" {
		dbPath = opts.Config.Database
	}
	store, err := attendance.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open attendance database", err).withResponse(CodeStore)
	}
	defer store.Close()

	scans, err := store.List(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list scans", err).withResponse(CodeStore)
	}

	return opts.formatter(cmd).Result(scans, func(w io.Writer) {
		if len(scans) == 0 {
			fmt.Fprintln(w, "no scans")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSCANNED AT\tKIND\tENTITY\tSCHOOL\tCAMERA")
		for _, s := range scans {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.ScannedAt.Format(time.RFC3339), s.Kind, displayEntity(s), s.SchoolID, s.CameraID)
		}
		tw.Flush()
	})
}

func validKind(k qrpayload.Kind) bool {
	for _, known := range listKinds {
		if k == known {
			return true
		}
	}
	return false
}

// parseSince accepts an RFC 3339 timestamp or a duration before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither an RFC 3339 time nor a duration", s)
	}
	if d < 0 {
		return time.Time{}, fmt.Errorf("duration %q must not be negative", s)
	}
	return now.Add(-d), nil
}
