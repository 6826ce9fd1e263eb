package chatbot

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ServiceFactory builds a Service for one bot, loading its catalog and any
// persisted model.
type ServiceFactory func(ctx context.Context, botID uuid.UUID) (*Service, error)

// Registry caches one Service per bot so each request reuses the bot's
// loaded model and extractor. Invalidate drops a bot after retraining or a
// catalog change so the next request rebuilds it.
type Registry struct {
	factory ServiceFactory

	mu       sync.Mutex
	services map[uuid.UUID]*Service
}

// NewRegistry creates a registry around the factory.
func NewRegistry(factory ServiceFactory) *Registry {
	if factory == nil {
		panic("chatbot: service factory cannot be nil")
	}
	return &Registry{
		factory:  factory,
		services: make(map[uuid.UUID]*Service),
	}
}

// ServiceFor returns the bot's cached Service, building it on first use.
func (r *Registry) ServiceFor(ctx context.Context, botID uuid.UUID) (*Service, error) {
	r.mu.Lock()
	if svc, ok := r.services[botID]; ok {
		r.mu.Unlock()
		return svc, nil
	}
	r.mu.Unlock()

	// Build outside the lock; catalog and model loads can be slow.
	svc, err := r.factory(ctx, botID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.services[botID]; ok {
		// Another request built it first.
		return existing, nil
	}
	r.services[botID] = svc
	return svc, nil
}

// Invalidate drops the bot's cached Service.
func (r *Registry) Invalidate(botID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, botID)
}
