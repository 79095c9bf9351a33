// Package service contains the judge orchestrator: it drives one submission
// from pending through execution to a terminal state.
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"gradex/internal/common/mq"
	"gradex/internal/grader/lang"
	"gradex/internal/grader/model"
	"gradex/internal/grader/repository"
	"gradex/internal/grader/sandbox"
	"gradex/internal/grader/verdict"
	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

// Config holds orchestrator settings.
type Config struct {
	// GradedTopic is the Kafka topic terminal submissions are announced on.
	GradedTopic string `yaml:"gradedTopic"`

	// DeadlineSlack pads the per-job ceiling beyond the summed test-case
	// limits, covering interpreter startup and IO.
	DeadlineSlack time.Duration `yaml:"deadlineSlack"`

	// Defaults applied when a test case carries no explicit limits.
	DefaultTimeLimitSeconds int `yaml:"defaultTimeLimitSeconds"`
	DefaultMemoryLimitMB    int `yaml:"defaultMemoryLimitMB"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.GradedTopic == "" {
		c.GradedTopic = "submission.graded"
	}
	if c.DeadlineSlack <= 0 {
		c.DeadlineSlack = 30 * time.Second
	}
	if c.DefaultTimeLimitSeconds <= 0 {
		c.DefaultTimeLimitSeconds = 5
	}
	if c.DefaultMemoryLimitMB <= 0 {
		c.DefaultMemoryLimitMB = 256
	}
}

// Archiver stores grading artifacts after completion.
type Archiver interface {
	Archive(ctx context.Context, submission *model.Submission, results []model.SubmissionResult) error
}

// GradeService is the judge orchestrator.
type GradeService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	runner      *sandbox.Runner
	producer    mq.Producer
	archiver    Archiver
	cfg         Config
}

// NewGradeService creates the orchestrator. producer and archiver may be
// nil; grading itself never depends on either.
func NewGradeService(
	submissions repository.SubmissionRepository,
	questions repository.QuestionRepository,
	runner *sandbox.Runner,
	producer mq.Producer,
	archiver Archiver,
	cfg Config,
) *GradeService {
	cfg.SetDefaults()
	return &GradeService{
		submissions: submissions,
		questions:   questions,
		runner:      runner,
		producer:    producer,
		archiver:    archiver,
		cfg:         cfg,
	}
}

// Grade drives one submission to a terminal state. A nil return means the
// submission reached completed or error, or was already taken by another
// worker; a non-nil return means nothing durable happened and the job may
// be retried.
func (s *GradeService) Grade(ctx context.Context, submissionID string) error {
	submission, err := s.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		return err
	}
	if submission.Status.Terminal() {
		logger.Info(ctx, "submission already terminal, skipping",
			zap.String("submission_id", submissionID),
			zap.String("status", string(submission.Status)))
		return nil
	}

	// Claim before any resolution work so a status poll never sees pending
	// once a worker holds the job; failures below transition running→error.
	if err := s.submissions.MarkRunning(ctx, submissionID, submission.Generation); err != nil {
		if errors.Is(err, errors.JobAlreadyActive) {
			logger.Warn(ctx, "submission already claimed by another worker",
				zap.String("submission_id", submissionID))
			return nil
		}
		return err
	}
	submission.Status = model.StatusRunning

	question, err := s.questions.GetQuestion(ctx, submission.QuestionID)
	if err != nil {
		return s.fail(ctx, submission, err)
	}

	// Non-final runs only see the public cases.
	testCases, err := s.questions.ListTestCases(ctx, submission.QuestionID, !submission.IsFinal)
	if err != nil {
		return s.fail(ctx, submission, err)
	}
	if len(testCases) == 0 {
		return s.fail(ctx, submission, errors.New(errors.EmptyTestCaseSet))
	}

	spec, entry, rejectErr := s.resolveLanguage(submission)
	if rejectErr != nil {
		// Rejected code is a grading result, not an infrastructure
		// failure: every test case records CE and the submission
		// completes normally.
		return s.completeRejected(ctx, submission, testCases, rejectErr)
	}

	// The whole job gets one ceiling independent of any single case, so a
	// wedged sandbox cannot hold a worker forever.
	deadline := s.jobDeadline(testCases)
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	session, err := s.runner.Open(runCtx, sandbox.OpenRequest{
		SubmissionID: submission.SubmissionID,
		Spec:         spec,
		Entry:        entry,
		Code:         submission.Code,
	})
	if err != nil {
		return s.fail(ctx, submission, err)
	}
	defer session.Close()

	results, execErr := s.runTestCases(runCtx, submission, question, testCases, session)
	if execErr != nil {
		if runCtx.Err() != nil {
			execErr = errors.Wrap(execErr, errors.GradingDeadline)
		}
		return s.fail(ctx, submission, execErr)
	}

	s.aggregate(submission, session, results)
	if err := s.submissions.Complete(ctx, submission, results); err != nil {
		return err
	}

	s.announce(ctx, submission)
	s.archive(ctx, submission, results)
	return nil
}

// resolveLanguage maps the submission language onto an adapter record and
// extracts the entry point. Both failures surface as CE.
func (s *GradeService) resolveLanguage(submission *model.Submission) (lang.Spec, string, error) {
	spec, err := lang.Lookup(submission.Language)
	if err != nil {
		return lang.Spec{}, "", err
	}
	entry, err := lang.ExtractEntryPoint(spec, submission.Code)
	if err != nil {
		return lang.Spec{}, "", err
	}
	return spec, entry, nil
}

func (s *GradeService) jobDeadline(testCases []model.TestCase) time.Duration {
	total := s.cfg.DeadlineSlack
	for _, tc := range testCases {
		total += s.timeLimit(tc)
	}
	return total
}

func (s *GradeService) timeLimit(tc model.TestCase) time.Duration {
	seconds := tc.TimeLimitSeconds
	if seconds <= 0 {
		seconds = s.cfg.DefaultTimeLimitSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (s *GradeService) memoryLimit(tc model.TestCase) int {
	if tc.MemoryLimitMB > 0 {
		return tc.MemoryLimitMB
	}
	return s.cfg.DefaultMemoryLimitMB
}

func (s *GradeService) runTestCases(
	ctx context.Context,
	submission *model.Submission,
	question *model.Question,
	testCases []model.TestCase,
	session *sandbox.Session,
) ([]model.SubmissionResult, error) {
	var totalWeight float64
	for _, tc := range testCases {
		totalWeight += tc.Weight
	}

	results := make([]model.SubmissionResult, 0, len(testCases))
	for _, tc := range testCases {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.GradingDeadline)
		}
		outcome, err := session.Execute(ctx, tc.Input, s.timeLimit(tc), s.memoryLimit(tc))
		if err != nil {
			return nil, err
		}

		v, score := verdict.Resolve(verdict.Execution{
			CompileFailed: outcome.CompileFailed,
			TimedOut:      outcome.TimedOut,
			MemoryKilled:  outcome.MemoryKilled,
			ExitCode:      outcome.ExitCode,
			Stdout:        outcome.Stdout,
		}, tc.ExpectedOutput, tc.Weight, totalWeight, question.MaxScore)

		results = append(results, model.SubmissionResult{
			SubmissionID:    submission.SubmissionID,
			TestCaseID:      tc.TestCaseID,
			Generation:      submission.Generation,
			Verdict:         v,
			ExecutionTimeMs: outcome.TimeMs,
			MemoryUsedKB:    outcome.MemoryKB,
			Score:           score,
			ActualOutput:    outcome.Stdout,
			ErrorMessage:    errorMessageFor(v, outcome),
			ExecutedAt:      time.Now(),
		})
	}
	return results, nil
}

func errorMessageFor(v verdict.Verdict, outcome sandbox.Outcome) string {
	switch v {
	case verdict.CE:
		return outcome.Stderr
	case verdict.RTE:
		return outcome.Stderr
	default:
		return ""
	}
}

// aggregate folds the result rows into the submission's terminal fields.
func (s *GradeService) aggregate(submission *model.Submission, session *sandbox.Session, results []model.SubmissionResult) {
	verdicts := make([]verdict.Verdict, 0, len(results))
	var totalScore float64
	var maxTimeMs, maxMemKB int64
	for _, row := range results {
		verdicts = append(verdicts, row.Verdict)
		totalScore += row.Score
		if row.ExecutionTimeMs > maxTimeMs {
			maxTimeMs = row.ExecutionTimeMs
		}
		if row.MemoryUsedKB > maxMemKB {
			maxMemKB = row.MemoryUsedKB
		}
	}

	submission.Status = model.StatusCompleted
	submission.OverallVerdict = verdict.Worst(verdicts)
	submission.TotalScore = totalScore
	submission.ExecutionTimeMs = maxTimeMs
	submission.MemoryUsedKB = maxMemKB
	submission.ExecutedAt = time.Now()
	if session != nil && session.CompileFailed() {
		submission.CompileError = session.CompileOutput()
	}
}

// completeRejected finishes a submission whose code never ran: every test
// case records CE with the rejection message.
func (s *GradeService) completeRejected(ctx context.Context, submission *model.Submission, testCases []model.TestCase, cause error) error {
	message := cause.Error()
	now := time.Now()
	results := make([]model.SubmissionResult, 0, len(testCases))
	for _, tc := range testCases {
		results = append(results, model.SubmissionResult{
			SubmissionID: submission.SubmissionID,
			TestCaseID:   tc.TestCaseID,
			Generation:   submission.Generation,
			Verdict:      verdict.CE,
			ErrorMessage: message,
			ExecutedAt:   now,
		})
	}

	submission.Status = model.StatusCompleted
	submission.OverallVerdict = verdict.CE
	submission.TotalScore = 0
	submission.CompileError = message
	submission.ExecutedAt = now

	if err := s.submissions.Complete(ctx, submission, results); err != nil {
		return err
	}
	s.announce(ctx, submission)
	s.archive(ctx, submission, results)
	return nil
}

// fail writes the terminal error state. The original cause is preserved in
// the row; the returned error is nil because the job is durably finished.
func (s *GradeService) fail(ctx context.Context, submission *model.Submission, cause error) error {
	logger.Error(ctx, "grading failed",
		zap.String("submission_id", submission.SubmissionID),
		zap.Error(cause))
	if err := s.submissions.MarkError(ctx, submission.SubmissionID, submission.Generation, cause.Error()); err != nil {
		logger.Error(ctx, "mark error failed",
			zap.String("submission_id", submission.SubmissionID),
			zap.Error(err))
		return err
	}
	submission.Status = model.StatusError
	s.announce(ctx, submission)
	return nil
}

// announce publishes the graded event. Fire and forget: a broker outage
// must never roll back a finished grading run.
func (s *GradeService) announce(ctx context.Context, submission *model.Submission) {
	if s.producer == nil {
		return
	}
	event := model.GradedEvent{
		SubmissionID: submission.SubmissionID,
		CandidateID:  submission.CandidateID,
		AssessmentID: submission.AssessmentID,
		QuestionID:   submission.QuestionID,
		IsFinal:      submission.IsFinal,
		Status:       submission.Status,
		Verdict:      submission.OverallVerdict,
		TotalScore:   submission.TotalScore,
		GradedAt:     time.Now().Unix(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "marshal graded event failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(body)
	message.ID = submission.SubmissionID
	if err := s.producer.Publish(ctx, s.cfg.GradedTopic, message); err != nil {
		logger.Warn(ctx, "publish graded event failed",
			zap.String("submission_id", submission.SubmissionID),
			zap.Error(err))
	}
}

func (s *GradeService) archive(ctx context.Context, submission *model.Submission, results []model.SubmissionResult) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, submission, results); err != nil {
		logger.Warn(ctx, "archive submission failed",
			zap.String("submission_id", submission.SubmissionID),
			zap.Error(err))
	}
}
