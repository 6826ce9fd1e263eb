package training

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type queuePayload struct {
	JobID string    `json:"job_id"`
	BotID uuid.UUID `json:"bot_id"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("training: encode payload: %w", err)
	}
	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("training: decode payload: %w", err)
	}
	if payload.BotID == uuid.Nil {
		return queuePayload{}, fmt.Errorf("training: payload is missing bot_id")
	}
	return payload, nil
}
