package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parleyai/parley-platform/internal/nlp"
	"github.com/parleyai/parley-platform/pkg/logging"
)

// Contact identifies who should hear about a bot's training runs.
type Contact struct {
	Email   string
	Name    string
	BotName string
}

// BotDirectory resolves a bot to its organization's admin contact.
type BotDirectory interface {
	AdminContact(ctx context.Context, botID uuid.UUID) (Contact, error)
}

// Service emails organization admins about training run outcomes.
type Service struct {
	email     EmailSender
	directory BotDirectory
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, directory BotDirectory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:     email,
		directory: directory,
		logger:    logger,
	}
}

// TrainingCompleted notifies the bot's admin that a training run succeeded.
func (s *Service) TrainingCompleted(ctx context.Context, botID uuid.UUID, result nlp.TrainingMetrics) {
	contact, ok := s.lookup(ctx, botID)
	if !ok {
		return
	}

	subject := fmt.Sprintf("Training complete for %s", contact.BotName)
	body := fmt.Sprintf(
		"Training for %s finished at %s.\n\nModel version: %s\nAccuracy: %.1f%%\nIntents: %d\nTraining examples: %d\n",
		contact.BotName,
		time.Now().Format("January 2, 2006 at 3:04 PM"),
		result.Version,
		result.Accuracy*100,
		result.NumIntents,
		result.NumExamples,
	)
	s.send(ctx, botID, contact, subject, body)
}

// TrainingFailed notifies the bot's admin that a training run failed.
func (s *Service) TrainingFailed(ctx context.Context, botID uuid.UUID, cause error) {
	contact, ok := s.lookup(ctx, botID)
	if !ok {
		return
	}

	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	subject := fmt.Sprintf("Training failed for %s", contact.BotName)
	body := fmt.Sprintf(
		"Training for %s failed at %s.\n\nReason: %s\n\nThe bot keeps serving its previous model until a later run succeeds.\n",
		contact.BotName,
		time.Now().Format("January 2, 2006 at 3:04 PM"),
		reason,
	)
	s.send(ctx, botID, contact, subject, body)
}

func (s *Service) lookup(ctx context.Context, botID uuid.UUID) (Contact, bool) {
	if s.email == nil || s.directory == nil {
		s.logger.Debug("notify: email or directory not configured, skipping notification", "bot_id", botID)
		return Contact{}, false
	}

	contact, err := s.directory.AdminContact(ctx, botID)
	if err != nil {
		s.logger.Error("notify: failed to resolve admin contact", "error", err, "bot_id", botID)
		return Contact{}, false
	}
	if contact.Email == "" {
		s.logger.Debug("notify: no admin email configured", "bot_id", botID)
		return Contact{}, false
	}
	return contact, true
}

func (s *Service) send(ctx context.Context, botID uuid.UUID, contact Contact, subject, body string) {
	err := s.email.Send(ctx, EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.logger.Error("notify: failed to send training email", "error", err, "bot_id", botID, "to", contact.Email)
		return
	}
	s.logger.Info("training notification sent", "bot_id", botID, "to", contact.Email, "subject", subject)
}
