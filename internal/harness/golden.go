package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Snapshot renders the trace of result as indented JSON. Field order is
// fixed by TraceSnapshot and TraceEvent, and rule text is kept unescaped
// so golden files stay readable.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := result.Trace
	if trace == nil {
		trace = []TraceEvent{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(TraceSnapshot{ScenarioName: name, Trace: trace}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs scenario on fresh stores and checks its trace against
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
//
// A setup failure is returned; a trace mismatch fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden checks an existing result's trace against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snap, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenarioName, snap)
	return nil
}
