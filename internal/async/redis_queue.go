package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ocreceipt/ocreceipt/internal/common"
)

const blpopWait = 2 * time.Second

// RedisQueue pushes job ids onto a Redis list and runs a BLPOP worker pool.
// Multiple processes may share the list; the database claim decides which
// worker actually runs a job that was delivered twice.
type RedisQueue struct {
	client  *redis.Client
	key     string
	process ProcessFunc
	logger  *slog.Logger
	timeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisQueue(cfg common.QueueConfig, workers int, timeout time.Duration, process ProcessFunc, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		key:     cfg.RedisKey,
		process: process,
		logger:  logger,
		timeout: timeout,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i+1)
	}
	return q
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	if err := q.client.RPush(ctx, q.key, jobID.String()).Err(); err != nil {
		return common.WrapError(err, "enqueue job")
	}
	q.logger.Debug("queued job", "job_id", jobID)
	return nil
}

func (q *RedisQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	q.logger.Info("worker started", "worker_id", workerID)

	for {
		res, err := q.client.BLPop(ctx, blpopWait, q.key).Result()
		if ctx.Err() != nil {
			q.logger.Info("worker stopped", "worker_id", workerID)
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			q.logger.Error("blpop failed", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}

		jobID, err := uuid.Parse(res[1])
		if err != nil {
			q.logger.Warn("discarding malformed job id", "raw", res[1])
			continue
		}

		jobCtx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err = q.process(jobCtx, jobID)
		cancel()

		if err != nil {
			q.logger.Error("job processing failed", "worker_id", workerID, "job_id", jobID, "error", err)
		} else {
			q.logger.Info("job processed", "worker_id", workerID, "job_id", jobID)
		}
	}
}

func (q *RedisQueue) Shutdown(ctx context.Context) {
	q.cancel()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("redis workers drained")
	}

	if err := q.client.Close(); err != nil {
		q.logger.Error("failed to close redis client", "error", err)
	}
}
