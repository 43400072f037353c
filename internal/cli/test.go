package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run rule scenarios",
		Long: `Run YAML rule scenarios, each against fresh SQLite stores.

Each scenario's expectations and assertions are checked, and its trace is
compared with golden/<name>.golden next to the scenario file when that
file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  vsptd test ./scenarios
  vsptd test ./scenarios --filter "insert_*"
  vsptd test ./scenarios --update
  vsptd test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(scenariosDir); errors.Is(err, fs.ErrNotExist) {
		msg := fmt.Sprintf("scenarios directory not found: %s", scenariosDir)
		_ = formatter.Error(ErrCodeScenario, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	sess, err := opts.open(cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer sess.Close()

	engineOpts, err := engine.FromConfig(sess.cfg)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	engineOpts = append(engineOpts, engine.WithMetrics(sess.metrics))

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, opts, formatter, engineOpts)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile string, opts *TestOptions, f *OutputFormatter, engineOpts []engine.Option) ScenarioResult {
	fail := func(name string, errs ...string) ScenarioResult {
		if f.Format != "json" {
			fmt.Fprintf(f.Writer, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(f.Writer, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}
	pass := func(name, note string) ScenarioResult {
		if f.Format != "json" {
			fmt.Fprintf(f.Writer, "✓ %s%s\n", name, note)
		}
		return ScenarioResult{Name: name, Pass: true}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}
	f.VerboseLog("Running %s (%d step(s))", scenario.Name, len(scenario.Steps))

	result, err := harness.Run(scenario, engineOpts...)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to render trace: %v", err))
	}
	goldenPath := goldenFilePath(scenarioFile)

	if opts.Update {
		if err := writeGoldenFile(goldenPath, snapshot); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		if !result.Pass {
			return fail(scenario.Name, result.Errors...)
		}
		return pass(scenario.Name, " (golden updated)")
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No golden file - assertion-based validation only
	case err != nil:
		return fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
	case !bytes.Equal(golden, snapshot):
		return fail(scenario.Name, append([]string{"trace does not match golden file (run with --update to regenerate)"}, result.Errors...)...)
	}

	if !result.Pass {
		return fail(scenario.Name, result.Errors...)
	}
	return pass(scenario.Name, "")
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// writeGoldenFile writes the current trace as the golden file.
func writeGoldenFile(goldenPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(f *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: statusOf(result.Failed == 0), Data: result}
	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := f.encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(f *OutputFormatter, result TestResult) error {
	w := f.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
