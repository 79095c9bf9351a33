// Package scoring consumes graded events and maintains per-candidate
// assessment aggregates.
package scoring

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"gradex/internal/common/mq"
	"gradex/internal/grader/model"
	"gradex/internal/grader/repository"
	"gradex/internal/grader/verdict"
	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

// Config holds consumer settings.
type Config struct {
	GradedTopic   string `yaml:"gradedTopic"`
	ConsumerGroup string `yaml:"consumerGroup"`
	Concurrency   int    `yaml:"concurrency"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.GradedTopic == "" {
		c.GradedTopic = "submission.graded"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "gradex-scoring"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
}

// Consumer recomputes candidate aggregates whenever a final submission
// reaches a terminal state.
type Consumer struct {
	assessments repository.AssessmentRepository
	cfg         Config
}

// NewConsumer creates the scoring consumer.
func NewConsumer(assessments repository.AssessmentRepository, cfg Config) *Consumer {
	cfg.SetDefaults()
	return &Consumer{assessments: assessments, cfg: cfg}
}

// Register subscribes the consumer on the queue. Call before queue.Start.
func (c *Consumer) Register(ctx context.Context, queue mq.Consumer) error {
	return queue.SubscribeWithOptions(ctx, c.cfg.GradedTopic, c.Handle, &mq.SubscribeOptions{
		ConsumerGroup: c.cfg.ConsumerGroup,
		Concurrency:   c.cfg.Concurrency,
	})
}

// Handle processes one graded event. Recomputation is idempotent: the
// aggregate is derived from the database, not from the event payload, so
// duplicate deliveries converge on the same row.
func (c *Consumer) Handle(ctx context.Context, message *mq.Message) error {
	var event model.GradedEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Error(ctx, "malformed graded event", zap.Error(err))
		// Malformed payloads never become valid; do not retry.
		return nil
	}
	if !event.IsFinal || event.AssessmentID <= 0 {
		return nil
	}
	return c.Recompute(ctx, event.AssessmentID, event.CandidateID)
}

// Recompute rebuilds one candidate's aggregate from their latest final
// submissions.
func (c *Consumer) Recompute(ctx context.Context, assessmentID, candidateID int64) error {
	submissions, err := c.assessments.ListFinalSubmissions(ctx, assessmentID, candidateID)
	if err != nil {
		return err
	}
	maxTotal, err := c.assessments.MaxTotalScore(ctx, assessmentID)
	if err != nil {
		return err
	}

	aggregate := Summarize(assessmentID, candidateID, submissions, maxTotal)
	if err := c.assessments.SaveCandidateScore(ctx, aggregate); err != nil {
		return errors.Wrap(err, errors.DatabaseError)
	}
	logger.Info(ctx, "candidate aggregate updated",
		zap.Int64("assessment_id", assessmentID),
		zap.Int64("candidate_id", candidateID),
		zap.Float64("total_score", aggregate.TotalScore),
		zap.Float64("percentage", aggregate.PercentageScore))
	return nil
}

// Summarize folds final submissions into the aggregate row. Errored
// submissions count as attempted with zero score; only a fully accepted
// submission counts as correct.
func Summarize(assessmentID, candidateID int64, submissions []model.Submission, maxTotal float64) *model.AssessmentCandidate {
	aggregate := &model.AssessmentCandidate{
		AssessmentID: assessmentID,
		CandidateID:  candidateID,
	}
	for _, sub := range submissions {
		aggregate.QuestionsAttempted++
		if sub.Status != model.StatusCompleted {
			continue
		}
		aggregate.TotalScore += sub.TotalScore
		if sub.OverallVerdict == verdict.OK {
			aggregate.QuestionsCorrect++
		}
	}
	if maxTotal > 0 {
		aggregate.PercentageScore = (aggregate.TotalScore / maxTotal) * 100
	}
	return aggregate
}
