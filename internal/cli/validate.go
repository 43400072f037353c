package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/condition"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/ruleset"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	RuleSet string // validate every rule of a CUE rule set
}

// RuleValidation is the validation result of one rule.
type RuleValidation struct {
	Name      string    `json:"name"`
	Valid     bool      `json:"valid"`
	Condition string    `json:"condition,omitempty"`
	Action    string    `json:"action,omitempty"`
	Error     *CLIError `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Rules []RuleValidation `json:"rules"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [rule...]",
		Short: "Check rule syntax without touching any store",
		Long: `Check the envelope, the condition syntax and the action form of each
rule. No fact pool or store is needed: references are not resolved.

Examples:
  vsptd validate 'ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D);'
  vsptd validate --ruleset rules.cue`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RuleSet, "ruleset", "", "validate the rules of a CUE rule set file")
	return cmd
}

type namedRule struct {
	name, text string
}

func runValidate(opts *ValidateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	sess, err := opts.open(cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer sess.Close()

	g, err := rule.NewGrammar(sess.cfg.Keywords)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid keywords", err)
	}

	rules := make([]namedRule, 0, len(args))
	for i, a := range args {
		rules = append(rules, namedRule{name: fmt.Sprintf("rule-%d", i+1), text: a})
	}
	if opts.RuleSet != "" {
		rs, err := ruleset.Load(opts.RuleSet)
		if err != nil {
			return outputRuleSetError(formatter, err)
		}
		formatter.VerboseLog("Loaded %d rule(s) from %s", len(rs.Rules), opts.RuleSet)
		for _, r := range rs.Rules {
			rules = append(rules, namedRule{name: r.Name, text: r.Text})
		}
	}
	if len(rules) == 0 {
		_ = formatter.Error(ErrCodeGeneric, "no rules given", nil)
		return NewExitError(ExitCommandError, "no rules given")
	}

	ev := condition.New(g)
	result := ValidationResult{Valid: true, Rules: make([]RuleValidation, 0, len(rules))}
	for _, r := range rules {
		v := validateRule(g, ev, r)
		if !v.Valid {
			result.Valid = false
		}
		result.Rules = append(result.Rules, v)
	}

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{Status: statusOf(result.Valid), Data: result}); err != nil {
			return err
		}
	} else {
		printValidation(formatter, result)
	}

	if !result.Valid {
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d rule(s) invalid", countInvalid(result)))
	}
	return nil
}

// validateRule checks one rule without any fact pool.
func validateRule(g *rule.Grammar, ev *condition.Evaluator, r namedRule) RuleValidation {
	v := RuleValidation{Name: r.name}

	cond, actionText, err := g.ParseEnvelope(r.text)
	if err != nil {
		v.Error = describe(err)
		return v
	}
	v.Condition = cond

	if _, err := ev.Compile(cond); err != nil {
		v.Error = describe(err)
		return v
	}

	action, err := g.Classify(actionText)
	if err != nil {
		v.Error = describe(err)
		return v
	}
	v.Action = action.Kind().String()
	v.Valid = true
	return v
}

func printValidation(f *OutputFormatter, result ValidationResult) {
	for _, r := range result.Rules {
		if r.Valid {
			fmt.Fprintf(f.Writer, "✓ %s (%s)\n", r.Name, r.Action)
			continue
		}
		fmt.Fprintf(f.Writer, "✗ %s\n", r.Name)
		fmt.Fprintf(f.Writer, "  %s: %s\n", r.Error.Code, r.Error.Message)
	}

	if result.Valid {
		fmt.Fprintln(f.Writer, "✓ All rules valid")
		return
	}
	fmt.Fprintln(f.Writer)
	fmt.Fprintf(f.Writer, "✗ Validation failed: %d of %d rule(s) invalid\n", countInvalid(result), len(result.Rules))
}

func countInvalid(result ValidationResult) int {
	n := 0
	for _, r := range result.Rules {
		if !r.Valid {
			n++
		}
	}
	return n
}

func statusOf(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// outputRuleSetError reports a rule set that could not be loaded.
func outputRuleSetError(f *OutputFormatter, err error) error {
	var loadErr *ruleset.LoadError
	if errors.As(err, &loadErr) {
		var details any
		if loadErr.Pos.IsValid() {
			details = map[string]any{"line": loadErr.Pos.Line(), "field": loadErr.Field}
		}
		_ = f.Error(ErrCodeRuleSet, err.Error(), details)
		return WrapExitError(ExitCommandError, "invalid rule set", err)
	}
	if ruleerr.CodeOf(err) != "" {
		_ = f.Failure(err, nil)
		return WrapExitError(ExitCommandError, "invalid rule set", err)
	}
	_ = f.Error(ErrCodeRuleSet, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load rule set", err)
}
