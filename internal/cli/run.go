package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/ruleset"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// EngineOptions are appended to the configured options (for testing).
	EngineOptions []engine.Option
}

// StepResult is one evaluated rule of a rule set.
type StepResult struct {
	Rule string `json:"rule"`
	ExecResult
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	RuleSet string       `json:"ruleset"`
	Agent   string       `json:"agent"`
	Steps   []StepResult `json:"steps"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <ruleset.cue>",
		Short: "Evaluate every rule of a rule set in order",
		Long: `Evaluate the rules of a CUE rule set, in order, for its agent context.

The first failing rule stops the run; the rules before it stay applied.
Relative store locators resolve against the rule set's directory.

Example:
  vsptd run rules/vert.cue
  vsptd run rules/vert.cue --format json --metrics-file vsptd.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuleSet(opts, args[0], cmd)
		},
	}

	return cmd
}

func runRuleSet(opts *RunOptions, path string, cmd *cobra.Command) (err error) {
	formatter := opts.formatter(cmd)

	sess, err := opts.open(cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to finish", cerr)
		}
	}()

	rs, err := ruleset.Load(path)
	if err != nil {
		return outputRuleSetError(formatter, err)
	}
	sess.logger.Info("rule set loaded", "path", path, "agent", rs.Spec.Agent, "rules", len(rs.Rules))

	eng, err := sess.engine(opts.EngineOptions...)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	steps, runErr := rs.Run(ctx, eng)

	result := RunResult{RuleSet: path, Agent: rs.Spec.Agent, Steps: make([]StepResult, 0, len(steps))}
	for _, s := range steps {
		result.Steps = append(result.Steps, StepResult{Rule: s.Rule.Name, ExecResult: newExecResult(s.Result)})
	}

	if runErr != nil {
		if formatter.Format != "json" {
			printSteps(formatter, result)
			fmt.Fprintf(formatter.Writer, "✗ stopped after %d of %d rule(s)\n", len(steps), len(rs.Rules))
		}
		_ = formatter.Failure(runErr, result)
		return WrapExitError(exitCodeFor(runErr), "rule set failed", runErr)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	printSteps(formatter, result)
	fmt.Fprintf(formatter.Writer, "✓ %d rule(s) evaluated\n", len(steps))
	return nil
}

func printSteps(f *OutputFormatter, result RunResult) {
	for _, s := range result.Steps {
		fmt.Fprintf(f.Writer, "✓ %s: %s\n", s.Rule, s.Outcome)
		if s.Triples != "" {
			fmt.Fprintf(f.Writer, "  %s\n", s.Triples)
		}
		f.VerboseLog("%s sql: %s", s.Rule, s.SQL)
	}
}
