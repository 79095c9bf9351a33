package verdict

import (
	"math"
	"testing"
)

func TestResolveOutputComparison(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		expected string
		want     Verdict
	}{
		{"exact match", "4", "4", OK},
		{"trailing newline ignored", "4\n", "4", OK},
		{"leading whitespace ignored", "  4", "4", OK},
		{"internal whitespace is significant", "4  2", "4 2", WA},
		{"internal newline is significant", "4\n2", "4 2", WA},
		{"case sensitive", "Yes", "yes", WA},
		{"empty output vs expected", "", "4", WA},
		{"both empty", "\n", "  ", OK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Resolve(Execution{Stdout: tt.stdout}, tt.expected, 1, 1, 100)
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %s, want %s", tt.stdout, tt.expected, got, tt.want)
			}
		})
	}
}

func TestResolveFailureModes(t *testing.T) {
	tests := []struct {
		name string
		exec Execution
		want Verdict
	}{
		{"compile failure", Execution{CompileFailed: true}, CE},
		{"timeout", Execution{TimedOut: true}, TLE},
		{"memory killed", Execution{MemoryKilled: true}, MLE},
		{"non-zero exit", Execution{ExitCode: 1}, RTE},
		{"timeout wins over exit code", Execution{TimedOut: true, ExitCode: 137}, TLE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, score := Resolve(tt.exec, "anything", 1, 1, 100)
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
			if score != 0 {
				t.Errorf("failed execution awarded score %v, want 0", score)
			}
		})
	}
}

func TestResolveWeightedScore(t *testing.T) {
	// Two cases with weights 1 and 3 against a 100-point question: the
	// weight-1 case is worth exactly a quarter of the maximum.
	_, score := Resolve(Execution{Stdout: "ok"}, "ok", 1, 4, 100)
	if math.Abs(score-25.0) > 1e-9 {
		t.Errorf("score = %v, want 25.0", score)
	}

	_, score = Resolve(Execution{Stdout: "ok"}, "ok", 3, 4, 100)
	if math.Abs(score-75.0) > 1e-9 {
		t.Errorf("score = %v, want 75.0", score)
	}

	// Zero total weight must not divide by zero.
	v, score := Resolve(Execution{Stdout: "ok"}, "ok", 1, 0, 100)
	if v != OK || score != 0 {
		t.Errorf("Resolve with zero total weight = (%s, %v), want (OK, 0)", v, score)
	}
}

func TestWorst(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []Verdict
		want     Verdict
	}{
		{"empty is OK", nil, OK},
		{"all ok", []Verdict{OK, OK, OK}, OK},
		{"single wrong answer", []Verdict{OK, WA, OK}, WA},
		{"timeout beats wrong answer", []Verdict{OK, WA, TLE}, TLE},
		{"compile error beats everything", []Verdict{TLE, MLE, CE, RTE, WA}, CE},
		{"memory beats runtime", []Verdict{RTE, MLE}, MLE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Worst(tt.verdicts); got != tt.want {
				t.Errorf("Worst(%v) = %s, want %s", tt.verdicts, got, tt.want)
			}
		})
	}
}

func TestWorstOrderIndependent(t *testing.T) {
	verdicts := []Verdict{OK, WA, TLE, RTE}
	want := Worst(verdicts)

	// Every rotation must fold to the same overall verdict.
	for i := 1; i < len(verdicts); i++ {
		rotated := append(append([]Verdict{}, verdicts[i:]...), verdicts[:i]...)
		if got := Worst(rotated); got != want {
			t.Errorf("Worst(%v) = %s, want %s", rotated, got, want)
		}
	}
}
