package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
)

// CameraInfo is one listed camera.
type CameraInfo struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Preferred bool   `json:"preferred"`
}

// NewCamerasCommand creates the cameras command.
func NewCamerasCommand(rootOpts *RootOptions) *cobra.Command {
	feed := &FeedOptions{}

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List cameras and the one scanning would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCameras(cmd, rootOpts, feed)
		},
	}

	feed.addFlags(cmd, false)

	return cmd
}

func runCameras(cmd *cobra.Command, opts *RootOptions, feed *FeedOptions) error {
	eng, err := feed.open(opts)
	if err != nil {
		return err
	}
	cams, err := eng.ListCameras(cmd.Context())
	if err != nil {
		return cameraError("camera enumeration failed", &scanner.ScanError{Op: "enumerate", Cause: scanner.Classify(err), Err: err})
	}

	preferred, _ := scanner.PreferredCamera(cams)
	infos := make([]CameraInfo, len(cams))
	for i, c := range cams {
		infos[i] = CameraInfo{ID: c.ID, Label: c.Label, Preferred: c.ID == preferred.ID}
	}

	return opts.formatter(cmd).Result(infos, func(w io.Writer) {
		if len(infos) == 0 {
			fmt.Fprintln(w, "no cameras")
			return
		}
		for _, c := range infos {
			mark := " "
			if c.Preferred {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %s\t%s\n", mark, c.ID, c.Label)
		}
	})
}
