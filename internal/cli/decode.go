package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/scanner/imagedir"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Image string
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode [text]",
		Short: "Classify scanned QR text",
		Long: `Classify QR text as student, teacher, session, school,
structured_unrecognized or unknown.

The text comes from the argument, from --image, or from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Image, "image", "", "read the QR code from an image file")

	return cmd
}

func runDecode(cmd *cobra.Command, opts *DecodeOptions, args []string) error {
	var text string
	switch {
	case opts.Image != "" && len(args) > 0:
		return NewExitError(ExitCommandError, "give either text or --image, not both")
	case opts.Image != "":
		t, err := imagedir.DecodeFile(opts.Image, opts.Config.ScanRegion)
		if err != nil {
			if errors.Is(err, scanner.ErrNoCode) {
				return WrapExitError(ExitFailure, "no QR code found", err).withResponse(CodeNoCode)
			}
			return WrapExitError(ExitCommandError, "failed to read image", err)
		}
		text = t
	case len(args) == 1:
		text = args[0]
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		text = strings.TrimRight(string(data), "\r\n")
	}

	c := qrpayload.Decode(text)
	opts.Logger.Debug("text classified", "kind", c.Kind)
	return opts.formatter(cmd).Result(c, func(w io.Writer) {
		fmt.Fprintf(w, "kind: %s\n", c.Kind)
		if c.Payload != nil {
			stamp := c.Payload.Stamped()
			fmt.Fprintf(w, "type: %s\n", c.Payload.Type())
			fmt.Fprintf(w, "entity: %s\n", c.Payload.EntityID())
			fmt.Fprintf(w, "nonce: %s\n", stamp.Nonce)
			fmt.Fprintf(w, "issued_at_ms: %d\n", stamp.IssuedAtMs)
		}
	})
}
