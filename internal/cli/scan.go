package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/attendance"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Feed             FeedOptions
	Camera           string
	DB               string
	Duration         time.Duration
	KeepUnrecognized bool
}

// ScanReport summarises one scan run.
type ScanReport struct {
	Camera     string            `json:"camera"`
	Recorded   int64             `json:"recorded"`
	Duplicates int64             `json:"duplicates"`
	Stats      scanner.Stats     `json:"stats"`
	Scans      []attendance.Scan `json:"scans"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan QR codes from a camera and record attendance",
		Long: `Scan QR codes from a camera feed and record recognized tokens in the
attendance database. A token is recorded once; rescans of the same token
are reported as duplicates.

Without --loop or --duration scanning stops when the feed runs out of
frames. Interrupt (Ctrl-C) stops scanning early.

Examples:
  qrattend scan --dir ./cameras --camera back
  qrattend scan --script classroom.yaml --db attendance.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	opts.Feed.addFlags(cmd, true)
	cmd.Flags().StringVar(&opts.Camera, "camera", "", "camera ID (default: rear-facing camera)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "attendance database (default from QRATTEND_DB)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop scanning after this long")
	cmd.Flags().BoolVar(&opts.KeepUnrecognized, "keep-unrecognized", false, "also record codes that are not attendance tokens")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions) error {
	eng, err := opts.Feed.open(opts.RootOptions)
	if err != nil {
		return err
	}
	focus, ok := scanner.ParseFocusMode(opts.Config.FocusMode)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid focus mode %q", opts.Config.FocusMode)).withResponse(CodeConfig)
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

	f := opts.formatter(cmd)
	var (
		mu    sync.Mutex
		scans = []attendance.Scan{}
	)
	rec := &attendance.Recorder{
		Store:            store,
		Log:              opts.Logger,
		KeepUnrecognized: opts.KeepUnrecognized,
		OnRecorded: func(scan attendance.Scan, inserted bool) {
			mu.Lock()
			defer mu.Unlock()
			if !inserted {
				if f.Format == "text" {
					fmt.Fprintf(f.Writer, "duplicate %s %s\n", scan.Kind, scan.EntityID)
				}
				return
			}
			scans = append(scans, scan)
			if f.Format == "text" {
				fmt.Fprintf(f.Writer, "recorded %s %s\n", scan.Kind, displayEntity(scan))
			}
		},
	}

	m := scanner.New(cmd.Context(), eng,
		scanner.WithSink(rec),
		scanner.WithLogger(opts.Logger),
		scanner.WithFPS(opts.Config.ScanFPS),
		scanner.WithRegionSize(opts.Config.ScanRegion),
		scanner.WithSurface(opts.Config.ScanSurface),
		scanner.WithFocusMode(focus),
	)
	defer m.Close(context.Background())

	if err := m.Err(); err != nil {
		return cameraError("camera enumeration failed", err)
	}
	if opts.Camera != "" {
		if err := m.Select(cmd.Context(), opts.Camera); err != nil {
			return cameraError("cannot select camera", err)
		}
	}
	if err := m.Start(cmd.Context()); err != nil {
		return cameraError("failed to start scanning", err)
	}
	cam, _ := m.Selected()
	f.VerboseLog("scanning with %s (%s)", cam.ID, cam.Label)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	waitFeed(ctx, eng, m, opts)

	bg := context.Background()
	if err := m.Sync(bg); err == nil {
		if err := m.Stop(bg); err != nil {
			opts.Logger.Warn("stop failed", "error", err)
		}
	}
	if err := m.Close(bg); err != nil {
		opts.Logger.Warn("close failed", "error", err)
	}

	recorded, duplicates := rec.Counts()
	mu.Lock()
	report := ScanReport{
		Camera:     cam.ID,
		Recorded:   recorded,
		Duplicates: duplicates,
		Stats:      m.Stats(),
		Scans:      scans,
	}
	mu.Unlock()

	return f.Result(report, func(w io.Writer) {
		s := report.Stats
		fmt.Fprintf(w, "%d recorded, %d duplicates, %d results, %d warnings\n",
			report.Recorded, report.Duplicates, s.Results, s.Warnings)
	})
}

// waitFeed blocks until the feed is exhausted, the duration passes, the
// manager closes or ctx is done.
func waitFeed(ctx context.Context, eng feedEngine, m *scanner.Manager, opts *ScanOptions) {
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if opts.Feed.Loop {
		select {
		case <-ctx.Done():
		case <-m.Done():
		}
		return
	}

	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		_ = eng.WaitEmitted(ctx)
	}()
	select {
	case <-emitted:
	case <-m.Done():
	}
}

func displayEntity(s attendance.Scan) string {
	if s.EntityID != "" {
		return s.EntityID
	}
	return fmt.Sprintf("%q", s.Raw)
}
