package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/harness"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Filter string // glob matched against scenario names
	Golden string // directory of <name>.golden trace files
	Update bool   // rewrite golden files instead of comparing
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "mismatch", "missing" or "updated"
	Errors []string `json:"errors,omitempty"`
}

// CheckReport is the output of the check command.
type CheckReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <scenarios-dir>",
		Short: "Run scanner scenarios against the replay engine",
		Long: `Run every scenario (*.yaml) under a directory against a scripted camera
engine and evaluate its assertions.

With --golden each run's trace is compared with <name>.golden in that
directory; --update rewrites those files instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only scenarios whose name matches this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files (requires --golden)")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions, dir string) error {
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid --filter", err)
		}
	}

	files, err := findScenarioFiles(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios in %s", dir))
	}

	f := opts.formatter(cmd)
	report := CheckReport{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid scenario", err)
		}
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, scenario.Name); !ok {
				continue
			}
		}

		f.VerboseLog("running %s", scenario.Name)
		sr := runScenario(cmd, opts, file, scenario)
		if sr.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, sr)
	}

	if err := f.Result(report, func(w io.Writer) { printCheck(w, report) }); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", report.Failed, len(report.Scenarios))).withResponse(CodeScenario)
	}
	return nil
}

func runScenario(cmd *cobra.Command, opts *CheckOptions, file string, scenario *harness.Scenario) ScenarioResult {
	sr := ScenarioResult{Name: scenario.Name, File: file}

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(opts.Logger))
	}
	res, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Pass = res.Pass
	sr.Errors = res.Errors

	if opts.Golden == "" {
		return sr
	}
	status, err := checkGolden(opts, scenario.Name, res)
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, err.Error())
		return sr
	}
	sr.Golden = status
	if status == "mismatch" || status == "missing" {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("trace does not match %s", goldenPath(opts.Golden, scenario.Name)))
	}
	return sr
}

func checkGolden(opts *CheckOptions, name string, res *harness.Result) (string, error) {
	trace, err := harness.MarshalTrace(name, res)
	if err != nil {
		return "", fmt.Errorf("failed to render trace: %w", err)
	}
	path := goldenPath(opts.Golden, name)

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, trace, 0o644); err != nil {
			return "", err
		}
		return "updated", nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "missing", nil
	}
	if err != nil {
		return "", err
	}
	if !bytes.Equal(want, trace) {
		return "mismatch", nil
	}
	return "match", nil
}

func goldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

func printCheck(w io.Writer, report CheckReport) {
	for _, sr := range report.Scenarios {
		status := "PASS"
		if !sr.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %s\n", status, sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	fmt.Fprintf(w, "%d passed, %d failed\n", report.Passed, report.Failed)
}

// findScenarioFiles returns the YAML files under dir, sorted.
func findScenarioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
