package service

import (
	"context"
	"math"
	"os"
	"testing"

	"gradex/internal/common/db"
	"gradex/internal/common/mq"
	"gradex/internal/grader/model"
	"gradex/internal/grader/sandbox"
	"gradex/internal/grader/sandbox/engine"
	"gradex/internal/grader/verdict"
	"gradex/pkg/errors"
)

type fakeSubmissions struct {
	submission *model.Submission
	running    bool
	completed  *model.Submission
	results    []model.SubmissionResult
	errored    string
	claimErr   error
}

func (f *fakeSubmissions) Create(ctx context.Context, tx db.Transaction, s *model.Submission) error {
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Submission, error) {
	if f.submission == nil {
		return nil, errors.New(errors.SubmissionNotFound)
	}
	copy := *f.submission
	return &copy, nil
}

func (f *fakeSubmissions) MarkRunning(ctx context.Context, id string, generation int) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.running = true
	return nil
}

func (f *fakeSubmissions) Complete(ctx context.Context, s *model.Submission, results []model.SubmissionResult) error {
	f.completed = s
	f.results = results
	return nil
}

func (f *fakeSubmissions) MarkError(ctx context.Context, id string, generation int, message string) error {
	f.errored = message
	return nil
}

func (f *fakeSubmissions) ListResults(ctx context.Context, id string, generation int) ([]model.SubmissionResult, error) {
	return f.results, nil
}

func (f *fakeSubmissions) BeginRejudge(ctx context.Context, id string) (int, error) {
	return f.submission.Generation + 1, nil
}

type fakeQuestions struct {
	question *model.Question
	cases    []model.TestCase

	lastPublicOnly bool
}

func (f *fakeQuestions) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	if f.question == nil {
		return nil, errors.New(errors.QuestionNotFound)
	}
	return f.question, nil
}

func (f *fakeQuestions) ListTestCases(ctx context.Context, id int64, publicOnly bool) ([]model.TestCase, error) {
	f.lastPublicOnly = publicOnly
	if !publicOnly {
		return f.cases, nil
	}
	var public []model.TestCase
	for _, tc := range f.cases {
		if tc.IsPublic {
			public = append(public, tc)
		}
	}
	return public, nil
}

type fakeProducer struct {
	topics   []string
	messages []*mq.Message
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, message)
	return nil
}

// scriptedEngine replays one result per execution.
type scriptedEngine struct {
	results []engine.Result
	calls   int
	err     error
}

func (e *scriptedEngine) Exec(ctx context.Context, spec engine.Spec) (engine.Result, error) {
	e.calls++
	if e.err != nil {
		return engine.Result{}, e.err
	}
	if len(e.results) == 0 {
		return engine.Result{}, nil
	}
	r := e.results[0]
	e.results = e.results[1:]
	return r, nil
}

func newTestService(t *testing.T, subs *fakeSubmissions, questions *fakeQuestions, eng engine.Engine, producer mq.Producer) *GradeService {
	t.Helper()
	runner := sandbox.NewRunner(eng, sandbox.Config{WorkspaceRoot: t.TempDir()})
	return NewGradeService(subs, questions, runner, producer, nil, Config{})
}

func pythonSubmission(isFinal bool) *model.Submission {
	return &model.Submission{
		SubmissionID: "sub-1",
		CandidateID:  7,
		QuestionID:   42,
		AssessmentID: 3,
		Code:         "print(sum(map(int, input().split())))",
		Language:     "python",
		IsFinal:      isFinal,
		Status:       model.StatusPending,
		Generation:   1,
	}
}

func twoCases() []model.TestCase {
	return []model.TestCase{
		{TestCaseID: 1, QuestionID: 42, Input: "1 3", ExpectedOutput: "4", IsPublic: true, Weight: 1, TimeLimitSeconds: 2, MemoryLimitMB: 64},
		{TestCaseID: 2, QuestionID: 42, Input: "10 20", ExpectedOutput: "30", Weight: 3, TimeLimitSeconds: 2, MemoryLimitMB: 64},
	}
}

func TestGradeAllCorrect(t *testing.T) {
	subs := &fakeSubmissions{submission: pythonSubmission(true)}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	eng := &scriptedEngine{results: []engine.Result{
		{Stdout: "4\n", WallTimeMs: 12, MemoryKB: 2048},
		{Stdout: "30\n", WallTimeMs: 15, MemoryKB: 4096},
	}}
	producer := &fakeProducer{}
	svc := newTestService(t, subs, questions, eng, producer)

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}

	if subs.completed == nil {
		t.Fatal("submission never completed")
	}
	if subs.completed.OverallVerdict != verdict.OK {
		t.Errorf("overall verdict = %s, want OK", subs.completed.OverallVerdict)
	}
	if math.Abs(subs.completed.TotalScore-100) > 1e-9 {
		t.Errorf("total score = %v, want 100", subs.completed.TotalScore)
	}
	if subs.completed.ExecutionTimeMs != 15 {
		t.Errorf("execution time = %d, want max 15", subs.completed.ExecutionTimeMs)
	}
	if subs.completed.MemoryUsedKB != 4096 {
		t.Errorf("memory = %d, want max 4096", subs.completed.MemoryUsedKB)
	}
	if len(subs.results) != 2 {
		t.Fatalf("result rows = %d, want 2", len(subs.results))
	}
	if len(producer.topics) != 1 || producer.topics[0] != "submission.graded" {
		t.Errorf("graded event topics = %v", producer.topics)
	}
}

func TestGradeWeightedPartialScore(t *testing.T) {
	subs := &fakeSubmissions{submission: pythonSubmission(true)}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	// First case correct, second wrong: weights 1 and 3 of 4 total.
	eng := &scriptedEngine{results: []engine.Result{
		{Stdout: "4"},
		{Stdout: "31"},
	}}
	svc := newTestService(t, subs, questions, eng, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if subs.completed.OverallVerdict != verdict.WA {
		t.Errorf("overall verdict = %s, want WA", subs.completed.OverallVerdict)
	}
	if math.Abs(subs.completed.TotalScore-25.0) > 1e-9 {
		t.Errorf("total score = %v, want 25.0", subs.completed.TotalScore)
	}
}

func TestGradeNonFinalUsesPublicCasesOnly(t *testing.T) {
	subs := &fakeSubmissions{submission: pythonSubmission(false)}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	eng := &scriptedEngine{results: []engine.Result{{Stdout: "4"}}}
	svc := newTestService(t, subs, questions, eng, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if !questions.lastPublicOnly {
		t.Error("non-final run requested hidden cases")
	}
	if len(subs.results) != 1 {
		t.Fatalf("result rows = %d, want 1 (public case only)", len(subs.results))
	}
	// The lone public case carries the full denominator of the run.
	if math.Abs(subs.completed.TotalScore-100) > 1e-9 {
		t.Errorf("total score = %v, want 100", subs.completed.TotalScore)
	}
}

func TestGradeUnsupportedLanguageCompletesWithCE(t *testing.T) {
	submission := pythonSubmission(true)
	submission.Language = "rust"
	subs := &fakeSubmissions{submission: submission}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	eng := &scriptedEngine{}
	producer := &fakeProducer{}
	svc := newTestService(t, subs, questions, eng, producer)

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}

	if eng.calls != 0 {
		t.Errorf("engine ran %d times for unsupported language", eng.calls)
	}
	if subs.completed == nil {
		t.Fatal("submission did not complete")
	}
	if subs.completed.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", subs.completed.Status)
	}
	if subs.completed.OverallVerdict != verdict.CE {
		t.Errorf("overall verdict = %s, want CE", subs.completed.OverallVerdict)
	}
	if len(subs.results) != 2 {
		t.Fatalf("result rows = %d, want one per test case", len(subs.results))
	}
	for _, row := range subs.results {
		if row.Verdict != verdict.CE {
			t.Errorf("test case %d verdict = %s, want CE", row.TestCaseID, row.Verdict)
		}
	}
	if len(producer.messages) != 1 {
		t.Errorf("graded events = %d, want 1", len(producer.messages))
	}
}

func TestGradeJavaWithoutPublicClassCompletesWithCE(t *testing.T) {
	submission := pythonSubmission(true)
	submission.Language = "java"
	submission.Code = "class Main { public static void main(String[] a) {} }"
	subs := &fakeSubmissions{submission: submission}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	svc := newTestService(t, subs, questions, &scriptedEngine{}, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if subs.completed == nil || subs.completed.OverallVerdict != verdict.CE {
		t.Fatal("missing public class should complete with CE")
	}
	if subs.completed.CompileError == "" {
		t.Error("compile error message not recorded")
	}
}

func TestGradeAlreadyClaimedIsNoop(t *testing.T) {
	subs := &fakeSubmissions{
		submission: pythonSubmission(true),
		claimErr:   errors.New(errors.JobAlreadyActive),
	}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	eng := &scriptedEngine{}
	svc := newTestService(t, subs, questions, eng, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if eng.calls != 0 {
		t.Error("engine ran for an already-claimed submission")
	}
	if subs.completed != nil {
		t.Error("submission completed twice")
	}
}

func TestGradeSandboxFailureMarksError(t *testing.T) {
	submission := pythonSubmission(true)
	submission.Language = "cpp"
	submission.Code = "int main() {}"
	subs := &fakeSubmissions{submission: submission}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
		cases:    twoCases(),
	}
	eng := &scriptedEngine{err: os.ErrPermission}
	producer := &fakeProducer{}
	svc := newTestService(t, subs, questions, eng, producer)

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if subs.errored == "" {
		t.Fatal("submission not marked errored")
	}
	if subs.completed != nil {
		t.Error("errored submission also completed")
	}
	if len(producer.messages) != 1 {
		t.Errorf("graded events = %d, want 1 for the error state", len(producer.messages))
	}
}

func TestGradeEmptyTestCaseSetMarksError(t *testing.T) {
	subs := &fakeSubmissions{submission: pythonSubmission(true)}
	questions := &fakeQuestions{
		question: &model.Question{QuestionID: 42, MaxScore: 100, IsActive: true},
	}
	svc := newTestService(t, subs, questions, &scriptedEngine{}, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if subs.errored == "" {
		t.Error("empty test case set should mark the submission errored")
	}
	if !subs.running {
		t.Error("submission should fail from running, not from pending")
	}
}

func TestGradeClaimsBeforeResolvingQuestion(t *testing.T) {
	subs := &fakeSubmissions{submission: pythonSubmission(true)}
	// No question behind the submission at all.
	svc := newTestService(t, subs, &fakeQuestions{}, &scriptedEngine{}, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if !subs.running {
		t.Error("submission was never claimed before the question lookup failed")
	}
	if subs.errored == "" {
		t.Error("missing question should mark the submission errored")
	}
}

func TestGradeTerminalSubmissionIsSkipped(t *testing.T) {
	submission := pythonSubmission(true)
	submission.Status = model.StatusCompleted
	subs := &fakeSubmissions{submission: submission}
	eng := &scriptedEngine{}
	svc := newTestService(t, subs, &fakeQuestions{}, eng, &fakeProducer{})

	if err := svc.Grade(context.Background(), "sub-1"); err != nil {
		t.Fatal(err)
	}
	if eng.calls != 0 || subs.running {
		t.Error("terminal submission was re-graded")
	}
}
