package repository

import (
	"context"

	"gradex/internal/common/db"
	"gradex/internal/grader/model"
	"gradex/pkg/errors"
)

// AssessmentRepository recomputes and persists per-candidate aggregates.
type AssessmentRepository interface {
	// ListFinalSubmissions returns the latest final submission per question
	// for one candidate in one assessment.
	ListFinalSubmissions(ctx context.Context, assessmentID, candidateID int64) ([]model.Submission, error)

	// CountQuestions returns how many active questions the assessment has.
	CountQuestions(ctx context.Context, assessmentID int64) (int, error)

	// MaxTotalScore sums max_score over the assessment's active questions.
	MaxTotalScore(ctx context.Context, assessmentID int64) (float64, error)

	// SaveCandidateScore upserts the aggregate row.
	SaveCandidateScore(ctx context.Context, candidate *model.AssessmentCandidate) error
}

// MySQLAssessmentRepository implements AssessmentRepository with MySQL.
type MySQLAssessmentRepository struct {
	db db.Database
}

// NewAssessmentRepository creates an assessment repository.
func NewAssessmentRepository(database db.Database) AssessmentRepository {
	return &MySQLAssessmentRepository{db: database}
}

// ListFinalSubmissions picks the newest final submission per question.
func (r *MySQLAssessmentRepository) ListFinalSubmissions(ctx context.Context, assessmentID, candidateID int64) ([]model.Submission, error) {
	if assessmentID <= 0 || candidateID <= 0 {
		return nil, errors.ValidationError("assessment_id/candidate_id", "required")
	}
	query := `
		SELECT s.submission_id, s.question_id, s.status, s.overall_verdict, s.total_score
		FROM submissions s
		INNER JOIN (
			SELECT question_id, MAX(submitted_at) AS latest
			FROM submissions
			WHERE assessment_id = ? AND candidate_id = ? AND is_final = 1
			GROUP BY question_id
		) latest ON s.question_id = latest.question_id AND s.submitted_at = latest.latest
		WHERE s.assessment_id = ? AND s.candidate_id = ? AND s.is_final = 1
	`
	rows, err := r.db.Query(ctx, query, assessmentID, candidateID, assessmentID, candidateID)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	defer rows.Close()

	var submissions []model.Submission
	for rows.Next() {
		var (
			sub     model.Submission
			status  string
			verdict string
		)
		if err := rows.Scan(&sub.SubmissionID, &sub.QuestionID, &status, &verdict, &sub.TotalScore); err != nil {
			return nil, errors.Wrap(err, errors.DatabaseError)
		}
		sub.AssessmentID = assessmentID
		sub.CandidateID = candidateID
		sub.IsFinal = true
		sub.Status = model.Status(status)
		sub.OverallVerdict = verdictFromString(verdict)
		submissions = append(submissions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	return submissions, nil
}

// CountQuestions counts the assessment's active questions.
func (r *MySQLAssessmentRepository) CountQuestions(ctx context.Context, assessmentID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM assessment_questions aq
		INNER JOIN questions q ON q.question_id = aq.question_id
		WHERE aq.assessment_id = ? AND q.is_active = 1
	`
	var count int
	if err := r.db.QueryRow(ctx, query, assessmentID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.DatabaseError)
	}
	return count, nil
}

// MaxTotalScore sums the maximum attainable score.
func (r *MySQLAssessmentRepository) MaxTotalScore(ctx context.Context, assessmentID int64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(q.max_score), 0)
		FROM assessment_questions aq
		INNER JOIN questions q ON q.question_id = aq.question_id
		WHERE aq.assessment_id = ? AND q.is_active = 1
	`
	var total float64
	if err := r.db.QueryRow(ctx, query, assessmentID).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.DatabaseError)
	}
	return total, nil
}

// SaveCandidateScore upserts the aggregate totals.
func (r *MySQLAssessmentRepository) SaveCandidateScore(ctx context.Context, candidate *model.AssessmentCandidate) error {
	if candidate == nil {
		return errors.ValidationError("candidate", "required")
	}
	query := `
		INSERT INTO assessment_candidates
		(assessment_id, candidate_id, total_score, questions_attempted, questions_correct, percentage_score)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total_score = VALUES(total_score),
			questions_attempted = VALUES(questions_attempted),
			questions_correct = VALUES(questions_correct),
			percentage_score = VALUES(percentage_score)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		candidate.AssessmentID,
		candidate.CandidateID,
		candidate.TotalScore,
		candidate.QuestionsAttempted,
		candidate.QuestionsCorrect,
		candidate.PercentageScore,
	)
	if err != nil {
		return errors.Wrap(err, errors.DatabaseError)
	}
	return nil
}
