// Package model defines the entities owned by the grading pipeline.
package model

import (
	"time"

	"gradex/internal/grader/verdict"
)

// Status represents the lifecycle state of a submission.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Submission identifies one grading attempt. Created by the intake layer,
// owned by the grading pipeline once enqueued.
type Submission struct {
	SubmissionID string
	CandidateID  int64
	QuestionID   int64
	AssessmentID int64 // 0 when the submission is outside an assessment

	Code     string
	Language string
	IsFinal  bool

	Status          Status
	OverallVerdict  verdict.Verdict // empty until a terminal state
	TotalScore      float64
	ExecutionTimeMs int64
	MemoryUsedKB    int64

	CompileError string
	RuntimeError string

	// Generation increments on re-judge; result rows carry the generation
	// they were produced under so old sets are never mutated.
	Generation int

	SubmittedAt time.Time
	ExecutedAt  time.Time // zero until a terminal state
}

// Question holds the grading-relevant view of a question. The orchestrator
// only ever reads questions.
type Question struct {
	QuestionID int64
	Title      string
	MaxScore   float64
	IsActive   bool
}

// TestCase belongs to exactly one question.
type TestCase struct {
	TestCaseID       int64
	QuestionID       int64
	Input            string
	ExpectedOutput   string
	IsPublic         bool
	Weight           float64
	TimeLimitSeconds int
	MemoryLimitMB    int
}

// SubmissionResult is one row per (submission, test case) pair produced
// during judging. Immutable once written; a re-judge writes a new
// generation instead of mutating in place.
type SubmissionResult struct {
	SubmissionID    string
	TestCaseID      int64
	Generation      int
	Verdict         verdict.Verdict
	ExecutionTimeMs int64
	MemoryUsedKB    int64
	Score           float64
	ActualOutput    string
	ErrorMessage    string
	ExecutedAt      time.Time
}

// GradedEvent is published after a submission reaches a terminal state.
// The scoring consumer uses it to recompute candidate totals.
type GradedEvent struct {
	SubmissionID string          `json:"submission_id"`
	CandidateID  int64           `json:"candidate_id"`
	AssessmentID int64           `json:"assessment_id"`
	QuestionID   int64           `json:"question_id"`
	IsFinal      bool            `json:"is_final"`
	Status       Status          `json:"status"`
	Verdict      verdict.Verdict `json:"verdict,omitempty"`
	TotalScore   float64         `json:"total_score"`
	GradedAt     int64           `json:"graded_at"`
}

// AssessmentCandidate carries the aggregate totals the scoring consumer
// recomputes from final submissions.
type AssessmentCandidate struct {
	CandidateID        int64
	AssessmentID       int64
	TotalScore         float64
	QuestionsAttempted int
	QuestionsCorrect   int
	PercentageScore    float64
}
