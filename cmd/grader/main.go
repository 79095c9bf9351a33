package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gradex/internal/common/cache"
	"gradex/internal/common/db"
	"gradex/internal/common/mq"
	"gradex/internal/common/storage"
	"gradex/internal/dispatch"
	"gradex/internal/grader/archive"
	"gradex/internal/grader/repository"
	"gradex/internal/grader/sandbox"
	"gradex/internal/grader/sandbox/engine"
	gradesvc "gradex/internal/grader/service"
	"gradex/internal/intake"
	"gradex/internal/intake/ratelimit"
	intakesvc "gradex/internal/intake/service"
	"gradex/internal/scoring"
	"gradex/pkg/utils/logger"
)

const defaultConfigPath = "configs/grader.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(ctx, "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	var archiver *archive.Archiver
	if appCfg.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		archiver, err = archive.NewArchiver(ctx, objStorage, appCfg.Archive)
		if err != nil {
			logger.Error(ctx, "init archiver failed", zap.Error(err))
			return
		}
	}

	sandboxEngine, err := engine.NewEngine(appCfg.Engine)
	if err != nil {
		logger.Error(ctx, "init sandbox engine failed", zap.Error(err))
		return
	}
	runner := sandbox.NewRunner(sandboxEngine, appCfg.Sandbox)

	submissionRepo := repository.NewSubmissionRepository(mysqlDB)
	questionRepo := repository.NewQuestionRepository(mysqlDB, redisCache)
	assessmentRepo := repository.NewAssessmentRepository(mysqlDB)

	gradeService := gradesvc.NewGradeService(
		submissionRepo, questionRepo, runner, mqClient, archiverOrNil(archiver), appCfg.Grading)

	queue := dispatch.NewQueue(redisCache, appCfg.Queue)
	pool := dispatch.NewWorkerPool(queue, func(jobCtx context.Context, job *dispatch.Job) error {
		return gradeService.Grade(jobCtx, job.SubmissionID)
	}, appCfg.Worker)
	pool.Start(ctx)
	defer pool.Stop()

	scoringConsumer := scoring.NewConsumer(assessmentRepo, appCfg.Scoring)
	if err := scoringConsumer.Register(ctx, mqClient); err != nil {
		logger.Error(ctx, "register scoring consumer failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
		return
	}

	limiter := ratelimit.NewLimiter(redisCache, appCfg.RateLimit)
	intakeService := intakesvc.NewIntakeService(submissionRepo, questionRepo, queue, limiter, appCfg.Intake)

	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      intake.NewRouter(intakeService),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grader http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

// archiverOrNil keeps the orchestrator's archiver interface nil when
// archiving is disabled, instead of a typed-nil pointer.
func archiverOrNil(a *archive.Archiver) gradesvc.Archiver {
	if a == nil {
		return nil
	}
	return a
}
