// Package verdict defines the closed verdict set and the per-test-case
// resolution and aggregation rules.
package verdict

import "strings"

// Verdict represents the final outcome of one test-case execution.
type Verdict string

const (
	OK  Verdict = "OK"  // accepted
	WA  Verdict = "WA"  // wrong answer
	TLE Verdict = "TLE" // time limit exceeded
	MLE Verdict = "MLE" // memory limit exceeded
	RTE Verdict = "RTE" // runtime error / non-zero exit
	CE  Verdict = "CE"  // compilation error
)

// precedence orders verdicts from worst to best. The overall verdict of a
// submission is the worst verdict present across its test cases.
var precedence = map[Verdict]int{
	CE:  0,
	TLE: 1,
	MLE: 2,
	RTE: 3,
	WA:  4,
	OK:  5,
}

// Valid reports whether v is a member of the closed verdict set.
func (v Verdict) Valid() bool {
	_, ok := precedence[v]
	return ok
}

// Worse returns the worse of two verdicts under CE > TLE > MLE > RTE > WA > OK.
func Worse(a, b Verdict) Verdict {
	ra, aok := precedence[a]
	rb, bok := precedence[b]
	if !aok {
		return b
	}
	if !bok {
		return a
	}
	if ra <= rb {
		return a
	}
	return b
}

// Worst folds Worse over a verdict list. Empty input returns OK.
// The fold is commutative, so evaluation order never changes the result.
func Worst(verdicts []Verdict) Verdict {
	overall := OK
	for _, v := range verdicts {
		overall = Worse(overall, v)
	}
	return overall
}

// Execution is the raw outcome a resolution needs. Failures are data, not
// errors: the aggregation loop never branches on exceptions.
type Execution struct {
	CompileFailed bool
	TimedOut      bool
	MemoryKilled  bool
	ExitCode      int
	Stdout        string
}

// Resolve converts a raw execution outcome plus the expected output into a
// verdict and an awarded score.
//
// Output comparison trims only leading and trailing whitespace; internal
// whitespace and line endings are compared byte-exact. This strictness is
// required for score reproducibility.
func Resolve(exec Execution, expectedOutput string, weight, totalWeight, maxScore float64) (Verdict, float64) {
	switch {
	case exec.CompileFailed:
		return CE, 0
	case exec.TimedOut:
		return TLE, 0
	case exec.MemoryKilled:
		return MLE, 0
	case exec.ExitCode != 0:
		return RTE, 0
	}

	expected := strings.TrimSpace(expectedOutput)
	actual := strings.TrimSpace(exec.Stdout)
	if expected != actual {
		return WA, 0
	}
	if totalWeight <= 0 {
		return OK, 0
	}
	return OK, (weight / totalWeight) * maxScore
}
