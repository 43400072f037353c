package harness

// TraceEvent records one evaluated step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Rule    string `json:"rule"`
	Action  string `json:"action,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	SQL     string `json:"sql,omitempty"`
	Triples string `json:"triples,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
