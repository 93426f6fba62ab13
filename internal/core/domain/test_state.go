package domain

// TestState describes the expected outcome of an optional stage
// (haddock, tests, benchmarks) as declared by a package's constraints.
type TestState int

const (
	// DontBuild skips the stage entirely.
	DontBuild TestState = iota
	// ExpectSuccess means an unexpected failure is a hard error.
	ExpectSuccess
	// ExpectFailure means an unexpected success produces a warning.
	ExpectFailure
)

// String returns the name of the test state.
func (s TestState) String() string {
	switch s {
	case DontBuild:
		return "dont-build"
	case ExpectSuccess:
		return "expect-success"
	case ExpectFailure:
		return "expect-failure"
	default:
		return "unknown"
	}
}

// ShouldRerun implements the rerun rule from the result ledger's
// design: a stage re-runs unless it already has a recorded success, or
// the constraints say not to build it at all, or it previously failed
// and failure is the expected outcome.
func (s TestState) ShouldRerun(prev StageResult) bool {
	if s == DontBuild {
		return false
	}
	switch prev {
	case NoResult:
		return true
	case Success:
		return false
	case Failure:
		return s == ExpectSuccess
	default:
		return true
	}
}
