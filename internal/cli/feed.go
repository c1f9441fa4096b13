package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner/imagedir"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner/replay"
)

// feedEngine is a camera engine whose frames run out.
type feedEngine interface {
	scanner.Engine
	WaitEmitted(ctx context.Context) error
}

// FeedOptions selects where camera frames come from.
type FeedOptions struct {
	Dir    string // image directory, one subdirectory per camera
	Script string // replay script
	Loop   bool   // replay image frames until stopped
}

func (f *FeedOptions) addFlags(cmd *cobra.Command, withLoop bool) {
	cmd.Flags().StringVar(&f.Dir, "dir", "", "camera image directory (one subdirectory per camera)")
	cmd.Flags().StringVar(&f.Script, "script", "", "replay script (YAML)")
	if withLoop {
		cmd.Flags().BoolVar(&f.Loop, "loop", false, "repeat image frames until stopped")
	}
}

func (f *FeedOptions) open(o *RootOptions) (feedEngine, error) {
	switch {
	case f.Dir != "" && f.Script != "":
		return nil, NewExitError(ExitCommandError, "give either --dir or --script, not both")
	case f.Dir != "":
		return imagedir.New(f.Dir, imagedir.WithLoop(f.Loop), imagedir.WithLogger(o.Logger)), nil
	case f.Script != "":
		eng, err := replay.Load(f.Script, qrpayload.New())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load replay script", err)
		}
		return eng, nil
	}
	return nil, NewExitError(ExitCommandError, "a camera feed is required: --dir or --script")
}

// cameraError wraps an enumeration or acquisition failure.
func cameraError(message string, err error) *ExitError {
	code := ExitFailure
	if errors.Is(err, scanner.ErrUnknownCamera) {
		code = ExitCommandError
	}
	return WrapExitError(code, message, err).withResponse(CodeCamera)
}
