package training

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/parleyai/parley-platform/pkg/logging"
)

// Publisher records a pending job and enqueues it for a worker to pick up.
type Publisher struct {
	queue  queueClient
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("training: queue cannot be nil")
	}
	if jobs == nil {
		panic("training: job recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
	}
}

// EnqueueTraining publishes a training job for the bot and returns its job
// ID.
func (p *Publisher) EnqueueTraining(ctx context.Context, botID uuid.UUID) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if botID == uuid.Nil {
		return "", fmt.Errorf("training: botID required")
	}

	payload, body, err := encodePayload(queuePayload{BotID: botID})
	if err != nil {
		return "", err
	}

	if err := p.jobs.PutPending(ctx, &JobRecord{
		JobID: payload.JobID,
		BotID: botID.String(),
	}); err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("training: enqueue job: %w", err)
	}

	p.logger.Debug("training job enqueued", "job_id", payload.JobID, "bot_id", botID)
	return payload.JobID, nil
}
