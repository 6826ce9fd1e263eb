package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleyai/parley-platform/internal/nlp"
	"github.com/parleyai/parley-platform/internal/observability/metrics"
	"github.com/parleyai/parley-platform/pkg/logging"
)

const (
	defaultWorkers        = 2
	defaultReceiveWait    = 2 // seconds
	defaultReceiveMax     = 5 // messages
	maxReceiveWaitSeconds = 20
)

// Trainer retrains one bot's model and reports the run's metrics.
type Trainer interface {
	TrainBot(ctx context.Context) (nlp.TrainingMetrics, error)
}

// TrainerFactory builds a Trainer for the given bot. The worker calls it per
// job so each run sees the bot's current catalog.
type TrainerFactory func(ctx context.Context, botID uuid.UUID) (Trainer, error)

// Notifier receives the outcome of each training run.
type Notifier interface {
	TrainingCompleted(ctx context.Context, botID uuid.UUID, result nlp.TrainingMetrics)
	TrainingFailed(ctx context.Context, botID uuid.UUID, cause error)
}

type workerConfig struct {
	workers         int
	receiveWaitSecs int
	receiveBatch    int
	notifier        Notifier
	metrics         *metrics.TrainingMetrics
}

// WorkerOption configures the training worker.
type WorkerOption func(*workerConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) WorkerOption {
	return func(cfg *workerConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for queue receives.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithNotifier delivers run outcomes to the given notifier.
func WithNotifier(n Notifier) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.notifier = n
	}
}

// WithMetrics records run counts and durations.
func WithMetrics(m *metrics.TrainingMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// Worker consumes training jobs from the queue and runs them. At most one
// training runs per bot at a time; a job that arrives while its bot is
// already training fails immediately rather than queueing behind it.
type Worker struct {
	factory TrainerFactory
	queue   queueClient
	jobs    JobUpdater
	logger  *logging.Logger
	cfg     workerConfig

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker wires a queue consumer around the trainer factory.
func NewWorker(factory TrainerFactory, queue queueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if factory == nil {
		panic("training: trainer factory cannot be nil")
	}
	if queue == nil {
		panic("training: queue cannot be nil")
	}
	if jobs == nil {
		panic("training: job updater cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:         defaultWorkers,
		receiveWaitSecs: defaultReceiveWait,
		receiveBatch:    defaultReceiveMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		factory:  factory,
		queue:    queue,
		jobs:     jobs,
		logger:   logger,
		cfg:      cfg,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Start launches the polling goroutines. They run until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all polling goroutines have stopped.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Shutdown cancels polling and waits for in-flight jobs to finish or ctx to
// expire.
func (w *Worker) Shutdown(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("training worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("training worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatch, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive training jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	defer w.deleteMessage(msg.ReceiptHandle)

	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode training job", "error", err, "message_id", msg.ID)
		return
	}

	if !w.claim(payload.BotID) {
		err := fmt.Errorf("training: bot %s is already training", payload.BotID)
		w.logger.Warn("training job rejected", "job_id", payload.JobID, "bot_id", payload.BotID, "error", err)
		w.fail(ctx, payload, err)
		return
	}
	defer w.release(payload.BotID)

	if err := w.jobs.MarkRunning(ctx, payload.JobID); err != nil {
		w.logger.Error("failed to mark training job running", "job_id", payload.JobID, "error", err)
	}

	started := time.Now()
	result, err := w.train(ctx, payload.BotID)
	w.cfg.metrics.ObserveDuration(payload.BotID.String(), time.Since(started).Seconds())
	if err != nil {
		w.logger.Error("training run failed", "job_id", payload.JobID, "bot_id", payload.BotID, "error", err)
		w.fail(ctx, payload, err)
		return
	}

	w.cfg.metrics.ObserveRun(payload.BotID.String(), string(JobStatusCompleted))
	if err := w.jobs.MarkCompleted(ctx, payload.JobID, result); err != nil {
		w.logger.Error("failed to mark training job completed", "job_id", payload.JobID, "error", err)
	}
	if w.cfg.notifier != nil {
		w.cfg.notifier.TrainingCompleted(ctx, payload.BotID, result)
	}
	w.logger.Info("training run completed",
		"job_id", payload.JobID,
		"bot_id", payload.BotID,
		"model_version", result.Version,
		"accuracy", result.Accuracy,
	)
}

func (w *Worker) train(ctx context.Context, botID uuid.UUID) (result nlp.TrainingMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training: run panicked: %v", r)
		}
	}()

	trainer, err := w.factory(ctx, botID)
	if err != nil {
		return nlp.TrainingMetrics{}, err
	}
	return trainer.TrainBot(ctx)
}

func (w *Worker) fail(ctx context.Context, payload queuePayload, cause error) {
	w.cfg.metrics.ObserveRun(payload.BotID.String(), string(JobStatusFailed))
	if err := w.jobs.MarkFailed(ctx, payload.JobID, cause.Error()); err != nil {
		w.logger.Error("failed to mark training job failed", "job_id", payload.JobID, "error", err)
	}
	if w.cfg.notifier != nil {
		w.cfg.notifier.TrainingFailed(ctx, payload.BotID, cause)
	}
}

func (w *Worker) claim(botID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[botID]; busy {
		return false
	}
	w.inFlight[botID] = struct{}{}
	return true
}

func (w *Worker) release(botID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, botID)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete training job message", "error", err)
	}
}
