package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrimage"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/qrpayload"
	"github.com/mdlavlusheikh1/demoschool-sub009/internal/roster"
)

// ManifestFile is written into the batch output directory.
const ManifestFile = "tokens.json"

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Out    string
	PNG    bool
	Strict bool
}

// BatchToken is one encoded roster entry in the manifest.
type BatchToken struct {
	Index    int            `json:"index"`
	Type     qrpayload.Type `json:"type"`
	EntityID string         `json:"entity_id"`
	Text     string         `json:"text"`
	Image    string         `json:"image,omitempty"` // file name inside the output directory
}

// BatchSkipped is one roster entry that was not encoded.
type BatchSkipped struct {
	Index    int            `json:"index"`
	Type     qrpayload.Type `json:"type,omitempty"`
	EntityID string         `json:"entity_id,omitempty"`
	Error    string         `json:"error"`
}

// BatchReport is the batch command's output and the manifest content.
type BatchReport struct {
	Roster  string         `json:"roster"`
	Tokens  []BatchToken   `json:"tokens"`
	Skipped []BatchSkipped `json:"skipped"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <roster.yaml>",
		Short: "Encode every entity in a roster",
		Long: `Encode every entity in a roster file. Invalid entries are reported
and skipped; the rest are still encoded.

With --out the tokens are written to a tokens.json manifest, plus one PNG
per token when --png is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output directory for the manifest and images")
	cmd.Flags().BoolVar(&opts.PNG, "png", false, "render a PNG per token (requires --out)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 when any entry was skipped")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *BatchOptions, path string) error {
	if opts.PNG && opts.Out == "" {
		return NewExitError(ExitCommandError, "--png requires --out")
	}

	r, err := roster.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load roster", err)
	}

	var renderer qrpayload.Renderer
	if opts.PNG {
		png, err := qrimage.NewPNGRenderer(opts.Config.QRSize, opts.Config.QRLevel)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid QR settings", err).withResponse(CodeConfig)
		}
		renderer = png
	}

	res := r.EncodeAll(cmd.Context(), qrpayload.New(), renderer)
	report := BatchReport{
		Roster:  path,
		Tokens:  make([]BatchToken, 0, len(res.Items)),
		Skipped: make([]BatchSkipped, 0, len(res.Skipped)),
	}

	if opts.Out != "" {
		if err := os.MkdirAll(opts.Out, 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create output directory", err)
		}
	}
	for _, item := range res.Items {
		tok := BatchToken{
			Index:    item.Index,
			Type:     item.Ref.PayloadType(),
			EntityID: item.Ref.EntityID(),
			Text:     item.Encoded.Text,
		}
		if item.Image != nil {
			tok.Image = imageName(item.Index, tok.Type, tok.EntityID)
			if err := os.WriteFile(filepath.Join(opts.Out, tok.Image), item.Image, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write image", err)
			}
		}
		report.Tokens = append(report.Tokens, tok)
	}
	for _, skip := range res.Skipped {
		opts.Logger.Warn("roster entry skipped", "index", skip.Index, "type", skip.Type, "entity", skip.EntityID, "error", skip.Err)
		report.Skipped = append(report.Skipped, BatchSkipped{
			Index:    skip.Index,
			Type:     skip.Type,
			EntityID: skip.EntityID,
			Error:    skip.Err.Error(),
		})
	}

	if opts.Out != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode manifest", err)
		}
		if err := os.WriteFile(filepath.Join(opts.Out, ManifestFile), append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write manifest", err)
		}
	}

	f := opts.formatter(cmd)
	if err := f.Result(report, func(w io.Writer) { printBatch(w, report, opts.Out) }); err != nil {
		return err
	}
	if opts.Strict && len(report.Skipped) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d roster entries skipped", len(report.Skipped))).withResponse(CodeInvalidReference)
	}
	return nil
}

func printBatch(w io.Writer, report BatchReport, out string) {
	if out == "" {
		for _, tok := range report.Tokens {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", tok.Index, tok.Type, tok.EntityID, tok.Text)
		}
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "skipped #%d %s %s: %s\n", s.Index, s.Type, s.EntityID, s.Error)
	}
	fmt.Fprintf(w, "%d encoded, %d skipped\n", len(report.Tokens), len(report.Skipped))
	if out != "" {
		fmt.Fprintf(w, "wrote %s\n", filepath.Join(out, ManifestFile))
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// imageName is the PNG file name for one token, stable across runs.
func imageName(index int, t qrpayload.Type, entityID string) string {
	return fmt.Sprintf("%03d-%s-%s.png", index, t, unsafeNameChars.ReplaceAllString(entityID, "_"))
}
