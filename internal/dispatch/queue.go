// Package dispatch moves accepted submissions to grading workers through a
// durable Redis-backed queue with per-job leases.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"gradex/internal/common/cache"
	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

const (
	queueKey      = "grading:queue"
	processingKey = "grading:processing"
	leaseKey      = "grading:leases"
	activePrefix  = "grading:active:"
	reapLockKey   = "grading:reaper:lock"

	// reapLockTTL bounds how long a crashed sweeper can block the others.
	reapLockTTL = 30 * time.Second
)

// Job is one unit of grading work. The payload is small on purpose: the
// worker reloads everything else from the database.
type Job struct {
	SubmissionID string    `json:"submission_id"`
	Generation   int       `json:"generation"`
	Attempt      int       `json:"attempt"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Config holds queue settings.
type Config struct {
	// MaxQueueLength rejects enqueues past this depth. 0 disables the cap.
	MaxQueueLength int64 `yaml:"maxQueueLength"`

	// LeaseTTL is how long a worker may hold a job before the reaper
	// considers it crashed. Must exceed the grading job ceiling.
	LeaseTTL time.Duration `yaml:"leaseTTL"`

	// MaxAttempts bounds redeliveries of one job.
	MaxAttempts int `yaml:"maxAttempts"`

	// ActiveGuardTTL bounds the at-most-one-active marker so a lost Ack
	// can never block a submission forever.
	ActiveGuardTTL time.Duration `yaml:"activeGuardTTL"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ActiveGuardTTL <= 0 {
		c.ActiveGuardTTL = 30 * time.Minute
	}
}

// Queue is the durable dispatch queue. Pending jobs live in a Redis list;
// claimed jobs move to a processing list with a lease entry whose score is
// the expiry time.
type Queue struct {
	cache cache.Cache
	cfg   Config

	// now is swappable for lease tests.
	now func() time.Time
}

// NewQueue creates a dispatch queue.
func NewQueue(cacheClient cache.Cache, cfg Config) *Queue {
	cfg.SetDefaults()
	return &Queue{cache: cacheClient, cfg: cfg, now: time.Now}
}

// Enqueue adds a job. At most one job per submission may be pending or
// claimed at a time; a duplicate enqueue returns JobAlreadyActive.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmissionID == "" {
		return errors.ValidationError("submission_id", "required")
	}
	if q.cfg.MaxQueueLength > 0 {
		depth, err := q.cache.LLen(ctx, queueKey)
		if err != nil {
			return errors.Wrap(err, errors.CacheError)
		}
		if depth >= q.cfg.MaxQueueLength {
			return errors.New(errors.QueueFull)
		}
	}

	acquired, err := q.cache.SetNX(ctx, activeKey(job.SubmissionID), job.Generation, q.cfg.ActiveGuardTTL)
	if err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	if !acquired {
		return errors.New(errors.JobAlreadyActive)
	}

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, errors.InternalServerError)
	}
	if err := q.cache.LPush(ctx, queueKey, string(payload)); err != nil {
		// Roll the guard back so the submission is not stuck active with
		// no job behind it.
		_ = q.cache.Del(ctx, activeKey(job.SubmissionID))
		return errors.Wrap(err, errors.CacheError)
	}
	return nil
}

// Claim blocks up to timeout for the next job, moves it to the processing
// list, and records a lease. Returns (nil, nil) on timeout.
func (q *Queue) Claim(ctx context.Context, timeout time.Duration) (*Job, string, error) {
	payload, err := q.cache.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CacheError)
	}
	if payload == "" {
		return nil, "", nil
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Poison payload: drop it rather than loop on it.
		_ = q.cache.LRem(ctx, processingKey, 1, payload)
		logger.Error(ctx, "dropping malformed job payload", zap.String("payload", payload))
		return nil, "", errors.Wrap(err, errors.InternalServerError)
	}

	deadline := float64(q.now().Add(q.cfg.LeaseTTL).Unix())
	if err := q.cache.ZAdd(ctx, leaseKey, cache.ZMember{Member: payload, Score: deadline}); err != nil {
		return nil, "", errors.Wrap(err, errors.CacheError)
	}
	return &job, payload, nil
}

// Ack removes a finished job from the processing list, drops its lease,
// and releases the active guard.
func (q *Queue) Ack(ctx context.Context, job *Job, payload string) error {
	if err := q.cache.LRem(ctx, processingKey, 1, payload); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	if err := q.cache.ZRem(ctx, leaseKey, payload); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	if err := q.cache.Del(ctx, activeKey(job.SubmissionID)); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	return nil
}

// Retry puts a failed job back on the queue under a fresh attempt, or
// drops it with RetriesExhausted once attempts are spent.
func (q *Queue) Retry(ctx context.Context, job *Job, payload string) error {
	if err := q.cache.LRem(ctx, processingKey, 1, payload); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	if err := q.cache.ZRem(ctx, leaseKey, payload); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}

	if job.Attempt+1 >= q.cfg.MaxAttempts {
		_ = q.cache.Del(ctx, activeKey(job.SubmissionID))
		return errors.Newf(errors.RetriesExhausted, "job for submission %s dropped after %d attempts", job.SubmissionID, job.Attempt+1)
	}

	retry := *job
	retry.Attempt++
	next, err := json.Marshal(retry)
	if err != nil {
		return errors.Wrap(err, errors.InternalServerError)
	}
	if err := q.cache.LPush(ctx, queueKey, string(next)); err != nil {
		return errors.Wrap(err, errors.CacheError)
	}
	return nil
}

// ReapExpired requeues jobs whose lease has lapsed, which recovers work
// claimed by crashed workers. A SETNX lock keeps concurrent sweepers (other
// pool members, other grader instances) from requeueing the same payload
// twice; losing the lock returns (0, nil). Returns how many jobs were
// requeued.
func (q *Queue) ReapExpired(ctx context.Context) (int, error) {
	acquired, err := q.cache.SetNX(ctx, reapLockKey, q.now().Unix(), reapLockTTL)
	if err != nil {
		return 0, errors.Wrap(err, errors.CacheError)
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		_ = q.cache.Del(ctx, reapLockKey)
	}()

	expired, err := q.cache.ZRangeByScore(ctx, leaseKey, 0, float64(q.now().Unix()))
	if err != nil {
		return 0, errors.Wrap(err, errors.CacheError)
	}

	requeued := 0
	for _, payload := range expired {
		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			_ = q.cache.ZRem(ctx, leaseKey, payload)
			_ = q.cache.LRem(ctx, processingKey, 1, payload)
			continue
		}
		logger.Warn(ctx, "requeueing job with expired lease",
			zap.String("submission_id", job.SubmissionID),
			zap.Int("attempt", job.Attempt))
		if err := q.Retry(ctx, &job, payload); err != nil {
			if errors.Is(err, errors.RetriesExhausted) {
				logger.Error(ctx, "job dropped after lease expiries",
					zap.String("submission_id", job.SubmissionID))
				continue
			}
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.cache.LLen(ctx, queueKey)
}

// InFlight returns the number of claimed, unacknowledged jobs.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	return q.cache.ZCard(ctx, leaseKey)
}

func activeKey(submissionID string) string {
	return activePrefix + submissionID
}
