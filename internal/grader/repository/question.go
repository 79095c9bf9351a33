package repository

import (
	"context"
	"encoding/json"
	"time"

	"gradex/internal/common/cache"
	"gradex/internal/common/db"
	"gradex/internal/grader/model"
	"gradex/pkg/errors"
)

const (
	questionCacheKeyPrefix  = "question:"
	testCaseCacheKeyPrefix  = "testcases:"
	defaultQuestionCacheTTL = 10 * time.Minute
)

// QuestionRepository reads questions and their test cases. The grading
// pipeline never writes either.
type QuestionRepository interface {
	GetQuestion(ctx context.Context, questionID int64) (*model.Question, error)

	// ListTestCases returns all test cases of a question in stored order.
	// publicOnly restricts the set to publicly visible cases.
	ListTestCases(ctx context.Context, questionID int64, publicOnly bool) ([]model.TestCase, error)
}

// MySQLQuestionRepository implements QuestionRepository with MySQL and a
// Redis read-through cache. Test case sets change rarely and are read on
// every grading run.
type MySQLQuestionRepository struct {
	db    db.Database
	cache cache.Cache
	ttl   time.Duration
}

// NewQuestionRepository creates a question repository. cacheClient may be
// nil to disable caching.
func NewQuestionRepository(database db.Database, cacheClient cache.Cache) QuestionRepository {
	return &MySQLQuestionRepository{
		db:    database,
		cache: cacheClient,
		ttl:   defaultQuestionCacheTTL,
	}
}

// GetQuestion retrieves one active question.
func (r *MySQLQuestionRepository) GetQuestion(ctx context.Context, questionID int64) (*model.Question, error) {
	if questionID <= 0 {
		return nil, errors.ValidationError("question_id", "required")
	}
	if cached, ok := r.fromCache(ctx, questionCacheKey(questionID), &model.Question{}); ok {
		return cached.(*model.Question), nil
	}

	query := "SELECT question_id, title, max_score, is_active FROM questions WHERE question_id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, questionID)
	question := &model.Question{}
	if err := row.Scan(&question.QuestionID, &question.Title, &question.MaxScore, &question.IsActive); err != nil {
		if db.IsNoRows(err) {
			return nil, errors.New(errors.QuestionNotFound)
		}
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	if !question.IsActive {
		return nil, errors.New(errors.QuestionNotFound).WithMessage("question is inactive")
	}
	r.toCache(ctx, questionCacheKey(questionID), question)
	return question, nil
}

// ListTestCases returns the ordered test cases of a question.
func (r *MySQLQuestionRepository) ListTestCases(ctx context.Context, questionID int64, publicOnly bool) ([]model.TestCase, error) {
	if questionID <= 0 {
		return nil, errors.ValidationError("question_id", "required")
	}

	all, err := r.listAllTestCases(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !publicOnly {
		return all, nil
	}
	public := make([]model.TestCase, 0, len(all))
	for _, tc := range all {
		if tc.IsPublic {
			public = append(public, tc)
		}
	}
	return public, nil
}

func (r *MySQLQuestionRepository) listAllTestCases(ctx context.Context, questionID int64) ([]model.TestCase, error) {
	key := testCaseCacheKey(questionID)
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, key); err == nil && data != "" {
			var cases []model.TestCase
			if err := json.Unmarshal([]byte(data), &cases); err == nil {
				return cases, nil
			}
		}
	}

	query := `
		SELECT test_case_id, question_id, input, expected_output, is_public, weight, time_limit_seconds, memory_limit_mb
		FROM test_cases
		WHERE question_id = ?
		ORDER BY test_case_id ASC
	`
	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(
			&tc.TestCaseID,
			&tc.QuestionID,
			&tc.Input,
			&tc.ExpectedOutput,
			&tc.IsPublic,
			&tc.Weight,
			&tc.TimeLimitSeconds,
			&tc.MemoryLimitMB,
		); err != nil {
			return nil, errors.Wrap(err, errors.DatabaseError)
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.DatabaseError)
	}

	if r.cache != nil && len(cases) > 0 {
		if data, err := json.Marshal(cases); err == nil {
			_ = r.cache.Set(ctx, key, string(data), r.ttl)
		}
	}
	return cases, nil
}

func (r *MySQLQuestionRepository) fromCache(ctx context.Context, key string, target interface{}) (interface{}, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, key)
	if err != nil || data == "" {
		return nil, false
	}
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return nil, false
	}
	return target, true
}

func (r *MySQLQuestionRepository) toCache(ctx context.Context, key string, value interface{}) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, key, string(data), r.ttl)
}

func questionCacheKey(questionID int64) string {
	return questionCacheKeyPrefix + formatID(questionID)
}

func testCaseCacheKey(questionID int64) string {
	return testCaseCacheKeyPrefix + formatID(questionID)
}
