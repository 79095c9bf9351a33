package repository

import (
	"context"
	"database/sql"
	"time"

	"gradex/internal/common/db"
	"gradex/internal/grader/model"
	"gradex/pkg/errors"
)

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)

	// MarkRunning transitions pending -> running. It fails when the
	// submission is not pending, which makes duplicate deliveries of the
	// same job a no-op for every worker but the first.
	MarkRunning(ctx context.Context, submissionID string, generation int) error

	// Complete writes the terminal completed state and the per-test-case
	// result rows in evaluation order, atomically.
	Complete(ctx context.Context, submission *model.Submission, results []model.SubmissionResult) error

	// MarkError writes the terminal error state for infrastructure
	// failures.
	MarkError(ctx context.Context, submissionID string, generation int, message string) error

	// ListResults returns the result rows of one generation in evaluation
	// order.
	ListResults(ctx context.Context, submissionID string, generation int) ([]model.SubmissionResult, error)

	// BeginRejudge bumps the generation and resets the submission to
	// pending. Returns the new generation.
	BeginRejudge(ctx context.Context, submissionID string) (int, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "submission_id, candidate_id, question_id, assessment_id, code, language, is_final, status, overall_verdict, total_score, execution_time_ms, memory_used_kb, compile_error, runtime_error, generation, submitted_at, executed_at"

// Create inserts a submission in the pending state.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.ValidationError("submission", "required")
	}
	if submission.SubmissionID == "" {
		return errors.ValidationError("submission_id", "required")
	}
	if submission.QuestionID <= 0 {
		return errors.ValidationError("question_id", "required")
	}
	if submission.Code == "" {
		return errors.ValidationError("code", "required")
	}

	query := `
		INSERT INTO submissions
		(submission_id, candidate_id, question_id, assessment_id, code, language, is_final, status, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.CandidateID,
		submission.QuestionID,
		submission.AssessmentID,
		submission.Code,
		submission.Language,
		submission.IsFinal,
		string(model.StatusPending),
		submission.Generation,
	)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return errors.Wrap(err, errors.SubmissionCreateFailed)
		}
		return errors.Wrap(err, errors.DatabaseError)
	}
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.ValidationError("submission_id", "required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)

	submission := &model.Submission{}
	var (
		verdict      sql.NullString
		compileErr   sql.NullString
		runtimeErr   sql.NullString
		executedAt   sql.NullTime
		statusString string
	)
	if err := row.Scan(
		&submission.SubmissionID,
		&submission.CandidateID,
		&submission.QuestionID,
		&submission.AssessmentID,
		&submission.Code,
		&submission.Language,
		&submission.IsFinal,
		&statusString,
		&verdict,
		&submission.TotalScore,
		&submission.ExecutionTimeMs,
		&submission.MemoryUsedKB,
		&compileErr,
		&runtimeErr,
		&submission.Generation,
		&submission.SubmittedAt,
		&executedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, errors.New(errors.SubmissionNotFound)
		}
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	submission.Status = model.Status(statusString)
	if verdict.Valid {
		submission.OverallVerdict = verdictFromString(verdict.String)
	}
	if compileErr.Valid {
		submission.CompileError = compileErr.String
	}
	if runtimeErr.Valid {
		submission.RuntimeError = runtimeErr.String
	}
	if executedAt.Valid {
		submission.ExecutedAt = executedAt.Time
	}
	return submission, nil
}

// MarkRunning transitions pending -> running for one generation.
func (r *MySQLSubmissionRepository) MarkRunning(ctx context.Context, submissionID string, generation int) error {
	query := `
		UPDATE submissions
		SET status = ?
		WHERE submission_id = ? AND generation = ? AND status = ?
	`
	result, err := r.db.Exec(ctx, query, string(model.StatusRunning), submissionID, generation, string(model.StatusPending))
	if err != nil {
		return errors.Wrap(err, errors.DatabaseError)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.DatabaseError)
	}
	if affected == 0 {
		return errors.New(errors.JobAlreadyActive)
	}
	return nil
}

// Complete writes the terminal state and the result rows in one transaction.
// Result rows are inserted in slice order, which is evaluation order.
func (r *MySQLSubmissionRepository) Complete(ctx context.Context, submission *model.Submission, results []model.SubmissionResult) error {
	if submission == nil {
		return errors.ValidationError("submission", "required")
	}
	return r.db.Transaction(ctx, func(tx db.Transaction) error {
		update := `
			UPDATE submissions
			SET status = ?, overall_verdict = ?, total_score = ?,
			    execution_time_ms = ?, memory_used_kb = ?,
			    compile_error = ?, runtime_error = ?, executed_at = ?
			WHERE submission_id = ? AND generation = ? AND status = ?
		`
		result, err := tx.Exec(
			ctx,
			update,
			string(model.StatusCompleted),
			string(submission.OverallVerdict),
			submission.TotalScore,
			submission.ExecutionTimeMs,
			submission.MemoryUsedKB,
			nullableString(submission.CompileError),
			nullableString(submission.RuntimeError),
			submission.ExecutedAt,
			submission.SubmissionID,
			submission.Generation,
			string(model.StatusRunning),
		)
		if err != nil {
			return errors.Wrap(err, errors.DatabaseError)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, errors.DatabaseError)
		}
		if affected == 0 {
			return errors.New(errors.SubmissionNotFound).WithMessage("submission is not running")
		}

		insert := `
			INSERT INTO submission_results
			(submission_id, test_case_id, generation, seq, verdict, execution_time_ms, memory_used_kb, score, actual_output, error_message, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for seq, row := range results {
			if _, err := tx.Exec(
				ctx,
				insert,
				row.SubmissionID,
				row.TestCaseID,
				row.Generation,
				seq,
				string(row.Verdict),
				row.ExecutionTimeMs,
				row.MemoryUsedKB,
				row.Score,
				row.ActualOutput,
				nullableString(row.ErrorMessage),
				row.ExecutedAt,
			); err != nil {
				return errors.Wrap(err, errors.DatabaseError)
			}
		}
		return nil
	})
}

// MarkError writes the terminal error state.
func (r *MySQLSubmissionRepository) MarkError(ctx context.Context, submissionID string, generation int, message string) error {
	query := `
		UPDATE submissions
		SET status = ?, runtime_error = ?, executed_at = ?
		WHERE submission_id = ? AND generation = ? AND status IN (?, ?)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		string(model.StatusError),
		message,
		time.Now(),
		submissionID,
		generation,
		string(model.StatusPending),
		string(model.StatusRunning),
	)
	if err != nil {
		return errors.Wrap(err, errors.DatabaseError)
	}
	return nil
}

// ListResults returns one generation's rows in evaluation order.
func (r *MySQLSubmissionRepository) ListResults(ctx context.Context, submissionID string, generation int) ([]model.SubmissionResult, error) {
	query := `
		SELECT submission_id, test_case_id, generation, verdict, execution_time_ms, memory_used_kb, score, actual_output, error_message, executed_at
		FROM submission_results
		WHERE submission_id = ? AND generation = ?
		ORDER BY seq ASC
	`
	rows, err := r.db.Query(ctx, query, submissionID, generation)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	defer rows.Close()

	var results []model.SubmissionResult
	for rows.Next() {
		var (
			row      model.SubmissionResult
			verdict  string
			errorMsg sql.NullString
		)
		if err := rows.Scan(
			&row.SubmissionID,
			&row.TestCaseID,
			&row.Generation,
			&verdict,
			&row.ExecutionTimeMs,
			&row.MemoryUsedKB,
			&row.Score,
			&row.ActualOutput,
			&errorMsg,
			&row.ExecutedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.DatabaseError)
		}
		row.Verdict = verdictFromString(verdict)
		if errorMsg.Valid {
			row.ErrorMessage = errorMsg.String
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	return results, nil
}

// BeginRejudge resets a terminal submission to pending under a new
// generation. Old result rows keep their generation and stay untouched.
func (r *MySQLSubmissionRepository) BeginRejudge(ctx context.Context, submissionID string) (int, error) {
	var newGeneration int
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		row := tx.QueryRow(ctx, "SELECT generation, status FROM submissions WHERE submission_id = ? FOR UPDATE", submissionID)
		var (
			generation int
			status     string
		)
		if err := row.Scan(&generation, &status); err != nil {
			if db.IsNoRows(err) {
				return errors.New(errors.SubmissionNotFound)
			}
			return errors.Wrap(err, errors.DatabaseError)
		}
		if !model.Status(status).Terminal() {
			return errors.New(errors.JobAlreadyActive).WithMessage("submission is still being graded")
		}
		newGeneration = generation + 1
		update := `
			UPDATE submissions
			SET generation = ?, status = ?, overall_verdict = NULL, total_score = 0,
			    execution_time_ms = 0, memory_used_kb = 0, compile_error = NULL, runtime_error = NULL
			WHERE submission_id = ?
		`
		if _, err := tx.Exec(ctx, update, newGeneration, string(model.StatusPending), submissionID); err != nil {
			return errors.Wrap(err, errors.DatabaseError)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newGeneration, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
