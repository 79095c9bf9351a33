package sandbox

import (
	"context"
	"os"
	"testing"
	"time"

	"gradex/internal/grader/lang"
	"gradex/internal/grader/sandbox/engine"
)

// fakeEngine records specs and replays scripted results.
type fakeEngine struct {
	specs   []engine.Spec
	results []engine.Result
	err     error
}

func (f *fakeEngine) Exec(ctx context.Context, spec engine.Spec) (engine.Result, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return engine.Result{}, f.err
	}
	if len(f.results) == 0 {
		return engine.Result{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func mustSpec(t *testing.T, name string) lang.Spec {
	t.Helper()
	spec, err := lang.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestOpenWritesSourceAndCompiles(t *testing.T) {
	eng := &fakeEngine{}
	runner := NewRunner(eng, Config{WorkspaceRoot: t.TempDir()})

	session, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-1",
		Spec:         mustSpec(t, "cpp"),
		Code:         "int main() { return 0; }",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	if len(eng.specs) != 1 {
		t.Fatalf("compile stage ran %d times, want 1", len(eng.specs))
	}
	compile := eng.specs[0]
	if compile.RunID != "compile" {
		t.Errorf("RunID = %s, want compile", compile.RunID)
	}
	if compile.Argv[0] != "g++" {
		t.Errorf("Argv[0] = %s, want g++", compile.Argv[0])
	}
	if compile.TimeLimit != 30*time.Second {
		t.Errorf("compile time limit = %v, want default 30s", compile.TimeLimit)
	}

	data, err := os.ReadFile(session.Dir() + "/solution.cpp")
	if err != nil {
		t.Fatalf("source not written: %v", err)
	}
	if string(data) != "int main() { return 0; }" {
		t.Errorf("source content = %q", data)
	}
}

func TestInterpretedLanguageSkipsCompile(t *testing.T) {
	eng := &fakeEngine{}
	runner := NewRunner(eng, Config{WorkspaceRoot: t.TempDir()})

	session, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-2",
		Spec:         mustSpec(t, "python"),
		Code:         "print(input())",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	if len(eng.specs) != 0 {
		t.Errorf("compile stage ran for an interpreted language")
	}
	if session.CompileFailed() {
		t.Error("CompileFailed() = true, want false")
	}
}

func TestCompileFailurePropagatesToEveryExecution(t *testing.T) {
	eng := &fakeEngine{results: []engine.Result{{ExitCode: 1, Stderr: "error: expected ';'"}}}
	runner := NewRunner(eng, Config{WorkspaceRoot: t.TempDir()})

	session, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-3",
		Spec:         mustSpec(t, "cpp"),
		Code:         "int main() { return 0 }",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	if !session.CompileFailed() {
		t.Fatal("CompileFailed() = false, want true")
	}
	if session.CompileOutput() != "error: expected ';'" {
		t.Errorf("CompileOutput() = %q", session.CompileOutput())
	}

	// Executions never reach the engine once compilation failed.
	for i := 0; i < 3; i++ {
		outcome, err := session.Execute(context.Background(), "1 2", time.Second, 64)
		if err != nil {
			t.Fatal(err)
		}
		if !outcome.CompileFailed {
			t.Errorf("execution %d: CompileFailed = false", i)
		}
	}
	if len(eng.specs) != 1 {
		t.Errorf("engine ran %d times, want 1 (compile only)", len(eng.specs))
	}
}

func TestExecuteReportsDeadlineOnTimeout(t *testing.T) {
	eng := &fakeEngine{results: []engine.Result{
		{TimedOut: true, ExitCode: -1, WallTimeMs: 2341},
	}}
	runner := NewRunner(eng, Config{WorkspaceRoot: t.TempDir()})

	session, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-4",
		Spec:         mustSpec(t, "python"),
		Code:         "while True: pass",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	outcome, err := session.Execute(context.Background(), "", 2*time.Second, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.TimedOut {
		t.Fatal("TimedOut = false")
	}
	if outcome.TimeMs != 2000 {
		t.Errorf("TimeMs = %d, want the 2000ms deadline", outcome.TimeMs)
	}
}

func TestExecuteDetectsMemoryOverLimit(t *testing.T) {
	eng := &fakeEngine{results: []engine.Result{
		{ExitCode: -1, MemoryKB: 70 * 1024},
	}}
	runner := NewRunner(eng, Config{WorkspaceRoot: t.TempDir()})

	session, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-5",
		Spec:         mustSpec(t, "python"),
		Code:         "x = 'a' * 10**9",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	outcome, err := session.Execute(context.Background(), "", time.Second, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.MemoryKilled {
		t.Error("MemoryKilled = false, want true when peak exceeds the limit")
	}
}

func TestCloseDestroysWorkspace(t *testing.T) {
	runner := NewRunner(&fakeEngine{}, Config{WorkspaceRoot: t.TempDir()})

	session, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-6",
		Spec:         mustSpec(t, "python"),
		Code:         "pass",
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := session.Dir()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("workspace missing before Close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Close")
	}
	// Idempotent.
	if err := session.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenCleansUpOnCompileEngineError(t *testing.T) {
	eng := &fakeEngine{err: os.ErrPermission}
	root := t.TempDir()
	runner := NewRunner(eng, Config{WorkspaceRoot: root})

	_, err := runner.Open(context.Background(), OpenRequest{
		SubmissionID: "sub-7",
		Spec:         mustSpec(t, "cpp"),
		Code:         "int main() {}",
	})
	if err == nil {
		t.Fatal("Open succeeded, want error")
	}

	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind after failed Open: %v", entries)
	}
}
