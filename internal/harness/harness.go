package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/triple"
)

// Harness runs the steps of one scenario.
type Harness struct {
	engine *engine.Engine
	ctx    *engine.AgentContext
	data   *store.Store
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against fresh store files in a temporary directory
// and a fresh engine, so traces are reproducible.
//
// Execution flow:
// 1. Create the metadata and data stores from the setup scripts
// 2. Build the agent context
// 3. Evaluate each step, checking its expect clause
// 4. Evaluate assertions against the data store
func Run(scenario *Scenario, opts ...engine.Option) (*Result, error) {
	dir, err := os.MkdirTemp("", "vsptd-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	meta, err := createStore(ctx, filepath.Join(dir, "metabase.sqlite"), scenario.MetadataSetup)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}
	meta.Close()

	data, err := createStore(ctx, filepath.Join(dir, "base.sqlite"), scenario.StoreSetup)
	if err != nil {
		return nil, fmt.Errorf("failed to create data store: %w", err)
	}
	defer data.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	eng, err := engine.New(append([]engine.Option{engine.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	ac, err := engine.NewAgentContext(engine.AgentSpec{
		Agent:     scenario.Context.Agent,
		Store:     store.Locator{Path: data.Locator(), Kind: store.KindSQLite},
		Metadata:  store.Locator{Path: meta.Locator(), Kind: store.KindSQLite},
		Triples:   scenario.Context.Triples,
		Reference: scenario.Context.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid scenario context: %w", err)
	}

	h := &Harness{engine: eng, ctx: ac, data: data, logger: logger}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: data, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func createStore(ctx context.Context, path, script string) (*store.Store, error) {
	s, err := store.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	if script == "" {
		return s, nil
	}
	if err := s.ExecScript(ctx, script); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// executeStep evaluates one rule and validates its expect clause.
// Rule failures are part of the trace, not harness errors; only a step
// that cannot be set up returns an error.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	ac := h.ctx
	if step.Triples != nil {
		pool, err := triple.Parse(*step.Triples)
		if err != nil {
			return fmt.Errorf("triples: %w", err)
		}
		ac = ac.WithPrimary(pool)
	}

	res, execErr := h.engine.Exec(ctx, step.Rule, ac)

	ev := TraceEvent{Seq: res.Seq, Rule: step.Rule}
	if res.Action != 0 {
		ev.Action = res.Action.String()
	}
	if execErr != nil {
		ev.Error = errorCode(execErr)
	} else {
		ev.Outcome = string(res.Outcome)
		ev.SQL = res.Statement.SQL
		if res.Found != nil {
			ev.Triples = res.Found.String()
		}
	}
	result.AddTrace(ev)

	h.logger.Debug("step evaluated", "step", index, "outcome", ev.Outcome, "error", execErr)

	if step.Expect == nil {
		if execErr != nil {
			result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, execErr))
		}
		return nil
	}
	for _, msg := range checkExpect(step.Expect, res, execErr) {
		result.AddError(fmt.Sprintf("steps[%d]: %s", index, msg))
	}
	return nil
}

func checkExpect(e *Expect, res engine.Result, err error) []string {
	if e.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected error %s, got outcome %s", e.Error, res.Outcome)}
		case errorCode(err) != e.Error:
			return []string{fmt.Sprintf("expected error %s, got %s: %v", e.Error, errorCode(err), err)}
		}
		return nil
	}

	if err != nil {
		return []string{fmt.Sprintf("expected outcome %s, got error: %v", e.Outcome, err)}
	}

	var msgs []string
	if string(res.Outcome) != e.Outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %s, got %s", e.Outcome, res.Outcome))
	}
	if e.Triples != nil {
		want, perr := triple.Parse(*e.Triples)
		if perr != nil {
			return append(msgs, fmt.Sprintf("expect.triples: %v", perr))
		}
		got := ""
		if res.Found != nil {
			got = res.Found.String()
		}
		if got != want.String() {
			msgs = append(msgs, fmt.Sprintf("expected triples %q, got %q", want.String(), got))
		}
	}
	return msgs
}

// errorCode is the taxonomy code of err, or CLOSED / INTERNAL.
func errorCode(err error) string {
	if code := ruleerr.CodeOf(err); code != "" {
		return string(code)
	}
	if errors.Is(err, engine.ErrClosed) {
		return "CLOSED"
	}
	return "INTERNAL"
}
