package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/engine"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Context ContextFlags
}

// ExplainResult is the JSON payload of an explained rule.
type ExplainResult struct {
	Condition string `json:"condition"`
	Matched   bool   `json:"matched"`
	Action    string `json:"action"`
	Table     string `json:"table"`
	Probe     string `json:"probe,omitempty"`
	SQL       string `json:"sql"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <rule>",
		Short: "Show the SQL a rule would run",
		Long: `Resolve a rule against the metadata store and print its statements
with values inlined. The data store is never opened.

The statements are built even when the condition is false.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	opts.Context.bind(cmd)
	return cmd
}

func runExplain(opts *ExplainOptions, ruleText string, cmd *cobra.Command) (err error) {
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

	ac, err := opts.Context.context()
	if err != nil {
		_ = formatter.Failure(err, nil)
		return err
	}

	eng, err := sess.engine()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	ex, err := eng.Explain(ctx, ruleText, ac)
	if err != nil {
		_ = formatter.Failure(err, nil)
		return WrapExitError(exitCodeFor(err), "rule failed", err)
	}

	out := newExplainResult(ex)
	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "condition: %s (%s)\n", out.Condition, matchedLabel(out.Matched))
	fmt.Fprintf(w, "action:    %s %s\n", out.Action, out.Table)
	if out.Probe != "" {
		fmt.Fprintf(w, "probe:     %s\n", out.Probe)
	}
	fmt.Fprintf(w, "sql:       %s\n", out.SQL)
	return nil
}

func newExplainResult(ex *engine.Explanation) ExplainResult {
	out := ExplainResult{
		Condition: ex.Condition,
		Matched:   ex.Matched,
		Action:    ex.Plan.Kind.String(),
		Table:     ex.Plan.Table,
		SQL:       ex.Plan.Statement.Inline(),
	}
	if ex.Plan.Probe != nil {
		out.Probe = ex.Plan.Probe.Inline()
	}
	return out
}

func matchedLabel(matched bool) string {
	if matched {
		return "true"
	}
	return "false"
}
