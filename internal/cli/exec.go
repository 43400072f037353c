package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/engine"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Context ContextFlags

	// EngineOptions are appended to the configured options (for testing).
	EngineOptions []engine.Option
}

// ExecResult is the JSON payload of one evaluated rule.
type ExecResult struct {
	ID      string `json:"id"`
	Seq     int64  `json:"seq"`
	Outcome string `json:"outcome"`
	Action  string `json:"action,omitempty"`
	Applied bool   `json:"applied"`
	Triples string `json:"triples,omitempty"`
	SQL     string `json:"sql,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return newExecCommand(&ExecOptions{RootOptions: rootOpts})
}

func newExecCommand(opts *ExecOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <rule>",
		Short: "Evaluate one rule",
		Long: `Evaluate one rule for an agent and apply its action.

A false condition is not an error: the outcome is no_match and no store is
touched. Insert and delete report already_exists / not_found when there is
nothing to do.

Exit codes:
  0 - Rule evaluated (any outcome)
  1 - Rule failed (malformed rule, unresolved triplet or column, store error)
  2 - Command error (invalid context, unknown store kind, missing store)

Example:
  vsptd exec 'ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D И E.L>$L.L);' \
    --agent VERT --db bases/base.sqlite --meta bases/metabase.sqlite \
    --triples '$L.D=35;$L.L=10;'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	opts.Context.bind(cmd)
	return cmd
}

func runExec(opts *ExecOptions, ruleText string, cmd *cobra.Command) (err error) {
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

	eng, err := sess.engine(opts.EngineOptions...)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	res, err := eng.Exec(ctx, ruleText, ac)
	if err != nil {
		_ = formatter.Failure(err, nil)
		return WrapExitError(exitCodeFor(err), "rule failed", err)
	}

	out := newExecResult(res)
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	printExecResult(formatter, out, res)
	return nil
}

func newExecResult(res engine.Result) ExecResult {
	out := ExecResult{
		ID:      res.ID,
		Seq:     res.Seq,
		Outcome: string(res.Outcome),
		Applied: res.Applied(),
		SQL:     res.Statement.Inline(),
	}
	if res.Action != 0 {
		out.Action = res.Action.String()
	}
	if res.Found != nil {
		out.Triples = res.Found.String()
	}
	return out
}

func printExecResult(f *OutputFormatter, out ExecResult, res engine.Result) {
	w := f.Writer
	fmt.Fprintf(w, "outcome: %s\n", out.Outcome)
	if out.Action != "" {
		fmt.Fprintf(w, "action:  %s\n", out.Action)
	}
	if res.Found != nil {
		for _, t := range res.Found.Triplets() {
			fmt.Fprintf(w, "  %s;\n", t)
		}
		if res.Found.Len() == 0 {
			fmt.Fprintln(w, "  (no rows)")
		}
	}
	f.VerboseLog("sql: %s", out.SQL)
}

// signalContext returns the command's context, canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
