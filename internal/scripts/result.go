package scripts

import "time"

type Phase int

const (
	PhasePreRequest Phase = iota
	PhasePostResponse
)

func (p Phase) String() string {
	if p == PhasePreRequest {
		return "prerequest"
	}
	return "test"
}

// ConsoleLine is one console.* call from script code. Script output never
// reaches host stdout; it is buffered here in call order.
type ConsoleLine struct {
	Level   string
	Message string
}

// AssertionRecord is one pm.test outcome. A thrown assertion inside the test
// callback records as Passed=false with the failure message; it never
// escapes the script.
type AssertionRecord struct {
	Name    string
	Passed  bool
	Message string
}

// ExecutionResult carries everything one sandbox run produced. Err is the
// script's uncaught top-level error (timeout, cancellation or runtime
// throw); console lines and assertions gathered before the abort survive.
type ExecutionResult struct {
	Console    []ConsoleLine
	Assertions []AssertionRecord
	Err        error
	Duration   time.Duration
}

func (r *ExecutionResult) FailedAssertions() []AssertionRecord {
	var failed []AssertionRecord
	for _, a := range r.Assertions {
		if !a.Passed {
			failed = append(failed, a)
		}
	}
	return failed
}
