package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gradex/pkg/utils/logger"
)

// Handler grades one job. A nil return acknowledges the job; an error
// sends it back through Retry.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	// Concurrency is the number of claim loops.
	Concurrency int `yaml:"concurrency"`

	// ClaimTimeout is the blocking-pop window per poll.
	ClaimTimeout time.Duration `yaml:"claimTimeout"`

	// ReapInterval is how often expired leases are swept. The queue's
	// sweep lock keeps concurrent sweepers from requeueing a job twice.
	ReapInterval time.Duration `yaml:"reapInterval"`
}

// SetDefaults fills zero values with defaults.
func (c *WorkerConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.ClaimTimeout <= 0 {
		c.ClaimTimeout = 5 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
}

// WorkerPool claims jobs from the queue and runs the handler. Exactly one
// worker processes any claimed job; crashed workers are covered by the
// lease reaper.
type WorkerPool struct {
	queue   *Queue
	handler Handler
	cfg     WorkerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(queue *Queue, handler Handler, cfg WorkerConfig) *WorkerPool {
	cfg.SetDefaults()
	return &WorkerPool{queue: queue, handler: handler, cfg: cfg}
}

// Start launches the claim loops and the lease reaper.
func (p *WorkerPool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.claimLoop(runCtx, worker)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reapLoop(runCtx)
	}()
}

// Stop halts the pool and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) claimLoop(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, payload, err := p.queue.Claim(ctx, p.cfg.ClaimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "claim failed", zap.Int("worker", worker), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		jobCtx := logger.WithSubmissionID(ctx, job.SubmissionID)
		logger.Info(jobCtx, "job claimed",
			zap.Int("worker", worker),
			zap.Int("attempt", job.Attempt))

		if err := p.handler(jobCtx, job); err != nil {
			logger.Error(jobCtx, "job failed", zap.Error(err))
			if retryErr := p.queue.Retry(jobCtx, job, payload); retryErr != nil {
				logger.Error(jobCtx, "retry failed", zap.Error(retryErr))
			}
			continue
		}
		if err := p.queue.Ack(jobCtx, job, payload); err != nil {
			logger.Error(jobCtx, "ack failed", zap.Error(err))
		}
	}
}

func (p *WorkerPool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.queue.ReapExpired(ctx); err != nil {
				logger.Warn(ctx, "lease sweep failed", zap.Error(err))
			} else if n > 0 {
				logger.Info(ctx, "requeued expired leases", zap.Int("count", n))
			}
		}
	}
}
