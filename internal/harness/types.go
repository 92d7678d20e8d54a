package harness

// Trace event types.
const (
	EventSession    = "session"
	EventSet        = "set"
	EventTransition = "transition"
	EventPost       = "post"
	EventOutcome    = "outcome"
)

// TraceEvent is one entry of a scenario trace. Fields not relevant to the
// event type are empty.
type TraceEvent struct {
	Seq       int64    `json:"seq"`
	Type      string   `json:"type"`
	Attribute string   `json:"attribute,omitempty"`
	Values    []string `json:"values,omitempty"`
	Fired     []string `json:"fired,omitempty"`
	Touched   []string `json:"touched,omitempty"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
	Reference string   `json:"reference,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect step matched.
	Pass bool `json:"pass"`

	// Trace holds the recorded events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation mismatches.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends ev with the next sequence number.
func (r *Result) record(ev TraceEvent) {
	r.seq++
	ev.Seq = r.seq
	r.Trace = append(r.Trace, ev)
}
