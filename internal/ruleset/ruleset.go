// Package ruleset loads rule-set files: one agent context plus an ordered
// list of rules, written in CUE and validated against an embedded schema.
//
//	context: {
//		agent: "VERT"
//		store:    {locator: "bases/base.sqlite", kind: "SQLite"}
//		metadata: {locator: "bases/metabase.sqlite", kind: 1}
//		triples:  "$L.D=35;$L.L=10;"
//	}
//	rules: [
//		"ЕСЛИ $L.D=35 ТО НАЙТИ_В_БД(E.D<$L.D И E.L>$L.L);",
//		{name: "add", rule: "ЕСЛИ 1 ТО ДОБАВИТЬ_В_БД(E);", triples: "$E.NM='Пила';"},
//	]
//
// Relative locators resolve against the directory of the file.
package ruleset

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/triple"
)

//go:embed schema.cue
var schemaSource string

// Rule is one entry of a rule set.
type Rule struct {
	// Name defaults to "rule-<n>", counting from 1.
	Name string
	Text string

	// Triples, when set, replaces the context's primary pool for this rule.
	Triples *string

	Pos token.Pos
}

// RuleSet is a loaded rule-set file.
type RuleSet struct {
	Path  string
	Spec  engine.AgentSpec
	Rules []Rule
}

// LoadError is a rule-set file that cannot be loaded.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates a rule-set file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	return Parse(path, data)
}

// Parse validates rule-set source. path names the source in errors and
// anchors relative locators.
func Parse(path string, data []byte) (*RuleSet, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile rule-set schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v = schema.LookupPath(cue.ParsePath("#RuleSet")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	rs := &RuleSet{Path: path}
	base := filepath.Dir(path)

	spec, err := parseContext(v.LookupPath(cue.ParsePath("context")), base)
	if err != nil {
		return nil, err
	}
	rs.Spec = spec

	iter, err := v.LookupPath(cue.ParsePath("rules")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 1; iter.Next(); i++ {
		r, err := parseRule(iter.Value(), i)
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, r)
	}
	return rs, nil
}

func parseContext(v cue.Value, base string) (engine.AgentSpec, error) {
	var spec engine.AgentSpec
	var err error

	if spec.Agent, err = lookupString(v, "agent"); err != nil {
		return spec, err
	}
	if spec.Store, err = parseLocator(v.LookupPath(cue.ParsePath("store")), base); err != nil {
		return spec, err
	}
	if spec.Metadata, err = parseLocator(v.LookupPath(cue.ParsePath("metadata")), base); err != nil {
		return spec, err
	}
	if spec.Triples, err = lookupString(v, "triples"); err != nil {
		return spec, err
	}
	if spec.Reference, err = lookupString(v, "reference"); err != nil {
		return spec, err
	}
	return spec, nil
}

// parseLocator reads a locator. The kind is a name or a number.
func parseLocator(v cue.Value, base string) (store.Locator, error) {
	path, err := lookupString(v, "locator")
	if err != nil {
		return store.Locator{}, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}

	kindVal := defaulted(v.LookupPath(cue.ParsePath("kind")))
	var raw string
	switch kindVal.Kind() {
	case cue.IntKind:
		n, err := kindVal.Int64()
		if err != nil {
			return store.Locator{}, formatCUEError(err)
		}
		raw = strconv.FormatInt(n, 10)
	default:
		if raw, err = kindVal.String(); err != nil {
			return store.Locator{}, formatCUEError(err)
		}
	}

	kind, err := store.ParseKind(raw)
	if err != nil {
		return store.Locator{}, &LoadError{Field: "kind", Message: err.Error(), Pos: kindVal.Pos()}
	}
	return store.Locator{Path: path, Kind: kind}, nil
}

func parseRule(v cue.Value, n int) (Rule, error) {
	r := Rule{Name: fmt.Sprintf("rule-%d", n), Pos: v.Pos()}

	if v.Kind() == cue.StringKind {
		text, err := v.String()
		if err != nil {
			return r, formatCUEError(err)
		}
		r.Text = text
		return r, nil
	}

	var err error
	if r.Text, err = lookupString(v, "rule"); err != nil {
		return r, err
	}
	if name := v.LookupPath(cue.ParsePath("name")); name.Exists() {
		if r.Name, err = name.String(); err != nil {
			return r, formatCUEError(err)
		}
	}
	if tv := v.LookupPath(cue.ParsePath("triples")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return r, formatCUEError(err)
		}
		r.Triples = &s
	}
	return r, nil
}

func lookupString(v cue.Value, field string) (string, error) {
	f := defaulted(v.LookupPath(cue.ParsePath(field)))
	if !f.Exists() {
		return "", &LoadError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func defaulted(v cue.Value) cue.Value {
	if d, ok := v.Default(); ok {
		return d
	}
	return v
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Field: "cue", Message: err.Error()}
	}

	// Return first error with position info
	first := errs[0]
	le := &LoadError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Step is one evaluated rule of a run.
type Step struct {
	Rule   Rule
	Result engine.Result
}

// Run evaluates every rule in order with e and stops at the first error.
// The steps completed before the error are returned with it.
func (rs *RuleSet) Run(ctx context.Context, e *engine.Engine) ([]Step, error) {
	ac, err := engine.NewAgentContext(rs.Spec)
	if err != nil {
		return nil, fmt.Errorf("%s: context: %w", rs.Path, err)
	}

	steps := make([]Step, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		rc := ac
		if r.Triples != nil {
			pool, err := triple.Parse(*r.Triples)
			if err != nil {
				return steps, fmt.Errorf("%s: triples: %w", r.Name, err)
			}
			rc = ac.WithPrimary(pool)
		}

		res, err := e.Exec(ctx, r.Text, rc)
		if err != nil {
			return steps, fmt.Errorf("%s: %w", r.Name, err)
		}
		steps = append(steps, Step{Rule: r, Result: res})
	}
	return steps, nil
}
