package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parleyai/parley-platform/internal/chatbot"
	"github.com/parleyai/parley-platform/internal/observability/metrics"
	"github.com/parleyai/parley-platform/internal/training"
	"github.com/parleyai/parley-platform/pkg/logging"
)

// TrainingPublisher enqueues a training run for a bot.
type TrainingPublisher interface {
	EnqueueTraining(ctx context.Context, botID uuid.UUID) (string, error)
}

// JobReader fetches training job records.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*training.JobRecord, error)
}

// Invalidator drops a bot's cached chat service.
type Invalidator interface {
	Invalidate(botID uuid.UUID)
}

// AdminHandler serves the operator endpoints for bot lifecycle and training.
type AdminHandler struct {
	catalog     chatbot.CatalogStore
	publisher   TrainingPublisher
	jobs        JobReader
	invalidator Invalidator
	gatherer    prometheus.Gatherer
	logger      *logging.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(catalog chatbot.CatalogStore, publisher TrainingPublisher, jobs JobReader, invalidator Invalidator, gatherer prometheus.Gatherer, logger *logging.Logger) *AdminHandler {
	if catalog == nil {
		panic("handlers: catalog store cannot be nil")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		catalog:     catalog,
		publisher:   publisher,
		jobs:        jobs,
		invalidator: invalidator,
		gatherer:    gatherer,
		logger:      logger,
	}
}

// BotStatusResponse reports a bot's lifecycle state.
type BotStatusResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Status              string  `json:"status"`
	ModelVersion        string  `json:"model_version,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// TrainResponse acknowledges an enqueued training run.
type TrainResponse struct {
	JobID  string `json:"job_id"`
	BotID  string `json:"bot_id"`
	Status string `json:"status"`
}

// GetBot reports the bot's current status and model version.
func (h *AdminHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return
	}

	bot, err := h.catalog.GetBot(r.Context(), botID)
	if errors.Is(err, chatbot.ErrBotNotFound) {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load bot", "error", err, "bot_id", botID)
		writeError(w, http.StatusInternalServerError, "failed to load bot")
		return
	}

	writeJSON(w, http.StatusOK, BotStatusResponse{
		ID:                  bot.ID.String(),
		Name:                bot.Name,
		Status:              string(bot.Status),
		ModelVersion:        bot.ModelVersion,
		ConfidenceThreshold: bot.ConfidenceThreshold,
	})
}

// TrainBot enqueues an asynchronous training run. The bot sits in the
// training status until the worker finishes; success flips it to active,
// failure to inactive.
func (h *AdminHandler) TrainBot(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "training is not configured")
		return
	}

	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return
	}

	bot, err := h.catalog.GetBot(r.Context(), botID)
	if errors.Is(err, chatbot.ErrBotNotFound) {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load bot", "error", err, "bot_id", botID)
		writeError(w, http.StatusInternalServerError, "failed to load bot")
		return
	}
	if bot.Status == chatbot.BotStatusTraining {
		writeError(w, http.StatusConflict, "bot is already training")
		return
	}

	if err := h.catalog.UpdateBotStatus(r.Context(), botID, chatbot.BotStatusTraining, ""); err != nil {
		h.logger.Error("failed to mark bot training", "error", err, "bot_id", botID)
		writeError(w, http.StatusInternalServerError, "failed to start training")
		return
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(botID)
	}

	jobID, err := h.publisher.EnqueueTraining(r.Context(), botID)
	if err != nil {
		h.logger.Error("failed to enqueue training", "error", err, "bot_id", botID)
		// Leave the bot usable rather than stuck in training.
		if revertErr := h.catalog.UpdateBotStatus(r.Context(), botID, bot.Status, ""); revertErr != nil {
			h.logger.Error("failed to revert bot status", "error", revertErr, "bot_id", botID)
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue training")
		return
	}

	writeJSON(w, http.StatusAccepted, TrainResponse{
		JobID:  jobID,
		BotID:  botID.String(),
		Status: string(training.JobStatusPending),
	})
}

// GetTrainingJob reports the state of one training run.
func (h *AdminHandler) GetTrainingJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "training is not configured")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, training.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load training job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// StatsResponse summarizes runtime latency from the process-local registry.
type StatsResponse struct {
	ChatLatency     metrics.LatencySnapshot `json:"chat_latency"`
	TrainingLatency metrics.LatencySnapshot `json:"training_latency"`
}

// GetStats reports chat and training latency percentiles since process start.
func (h *AdminHandler) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		ChatLatency:     metrics.SnapshotLatency(h.gatherer, "parley_chat_process_latency_seconds"),
		TrainingLatency: metrics.SnapshotLatency(h.gatherer, "parley_training_run_latency_seconds"),
	})
}
