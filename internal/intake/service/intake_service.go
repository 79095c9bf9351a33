// Package service implements submission intake: validation, persistence,
// and handoff to the dispatch queue.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradex/internal/dispatch"
	"gradex/internal/grader/model"
	"gradex/internal/grader/repository"
	"gradex/internal/intake/ratelimit"
	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

// Config holds intake settings.
type Config struct {
	// MaxCodeBytes rejects oversized source files.
	MaxCodeBytes int `yaml:"maxCodeBytes"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.MaxCodeBytes <= 0 {
		c.MaxCodeBytes = 64 * 1024
	}
}

// SubmitInput carries one submission request.
type SubmitInput struct {
	CandidateID  int64
	QuestionID   int64
	AssessmentID int64
	Code         string
	Language     string
	IsFinal      bool
}

// StatusOutput is the full grading view of one submission.
type StatusOutput struct {
	Submission *model.Submission
	Results    []model.SubmissionResult
}

// IntakeService accepts submissions and exposes their status.
type IntakeService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	queue       *dispatch.Queue
	limiter     *ratelimit.Limiter
	cfg         Config
}

// NewIntakeService creates the intake service. limiter may be nil.
func NewIntakeService(
	submissions repository.SubmissionRepository,
	questions repository.QuestionRepository,
	queue *dispatch.Queue,
	limiter *ratelimit.Limiter,
	cfg Config,
) *IntakeService {
	cfg.SetDefaults()
	return &IntakeService{
		submissions: submissions,
		questions:   questions,
		queue:       queue,
		limiter:     limiter,
		cfg:         cfg,
	}
}

// Submit validates and persists a submission, then enqueues its grading
// job. The language is deliberately not validated here: unsupported
// languages still grade, completing with a compile-error verdict.
func (s *IntakeService) Submit(ctx context.Context, input SubmitInput) (string, error) {
	if input.CandidateID <= 0 {
		return "", errors.ValidationError("candidate_id", "required")
	}
	if input.QuestionID <= 0 {
		return "", errors.ValidationError("question_id", "required")
	}
	if input.Code == "" {
		return "", errors.ValidationError("code", "required")
	}
	if len(input.Code) > s.cfg.MaxCodeBytes {
		return "", errors.Newf(errors.CodeTooLarge, "source exceeds %d bytes", s.cfg.MaxCodeBytes)
	}
	if input.Language == "" {
		return "", errors.ValidationError("language", "required")
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, input.CandidateID); err != nil {
			return "", err
		}
	}

	// The question must exist and be active before anything is stored.
	if _, err := s.questions.GetQuestion(ctx, input.QuestionID); err != nil {
		return "", err
	}

	submission := &model.Submission{
		SubmissionID: uuid.NewString(),
		CandidateID:  input.CandidateID,
		QuestionID:   input.QuestionID,
		AssessmentID: input.AssessmentID,
		Code:         input.Code,
		Language:     input.Language,
		IsFinal:      input.IsFinal,
		Status:       model.StatusPending,
		Generation:   1,
		SubmittedAt:  time.Now(),
	}
	if err := s.submissions.Create(ctx, nil, submission); err != nil {
		return "", err
	}

	if err := s.queue.Enqueue(ctx, dispatch.Job{
		SubmissionID: submission.SubmissionID,
		Generation:   submission.Generation,
	}); err != nil {
		// The row stays pending; a re-enqueue (or re-judge) can pick it
		// up later.
		logger.Error(ctx, "enqueue failed after create",
			zap.String("submission_id", submission.SubmissionID),
			zap.Error(err))
		return "", err
	}
	return submission.SubmissionID, nil
}

// GetStatus returns the submission with its current generation's result
// rows in evaluation order.
func (s *IntakeService) GetStatus(ctx context.Context, submissionID string) (*StatusOutput, error) {
	submission, err := s.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		return nil, err
	}
	var results []model.SubmissionResult
	if submission.Status.Terminal() {
		results, err = s.submissions.ListResults(ctx, submissionID, submission.Generation)
		if err != nil {
			return nil, err
		}
	}
	return &StatusOutput{Submission: submission, Results: results}, nil
}

// Rejudge bumps the generation and enqueues a fresh grading job. Only
// terminal submissions can be re-judged.
func (s *IntakeService) Rejudge(ctx context.Context, submissionID string) (int, error) {
	generation, err := s.submissions.BeginRejudge(ctx, submissionID)
	if err != nil {
		return 0, err
	}
	if err := s.queue.Enqueue(ctx, dispatch.Job{
		SubmissionID: submissionID,
		Generation:   generation,
	}); err != nil {
		return 0, err
	}
	return generation, nil
}
