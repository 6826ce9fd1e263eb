package chatbot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/parleyai/parley-platform/internal/nlp"
)

// maxHistoryTurns bounds the rolling history so the persisted context blob
// cannot grow without limit.
const maxHistoryTurns = 10

// Turn is one entry in the rolling conversation history.
type Turn struct {
	UserMessage string                `json:"user_message"`
	Intent      string                `json:"intent,omitempty"`
	Entities    []nlp.ExtractedEntity `json:"entities,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// ConversationContext is the in-memory session state carried between turns:
// named variables, the last ten turns, and an optional flow marker. It does
// no I/O; callers rehydrate it from and flush it back to the conversation
// row each turn.
type ConversationContext struct {
	Variables   map[string]any `json:"variables"`
	History     []Turn         `json:"history"`
	CurrentFlow string         `json:"current_flow,omitempty"`
}

// NewConversationContext returns an empty context.
func NewConversationContext() *ConversationContext {
	return &ConversationContext{
		Variables: make(map[string]any),
	}
}

// SetVariable stores or overwrites a variable.
func (c *ConversationContext) SetVariable(key string, value any) {
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	c.Variables[key] = value
}

// GetVariable returns the variable's value, or def when unset.
func (c *ConversationContext) GetVariable(key string, def any) any {
	if v, ok := c.Variables[key]; ok {
		return v
	}
	return def
}

// AddToHistory appends a turn, dropping the oldest entries beyond the
// ten-turn window.
func (c *ConversationContext) AddToHistory(turn Turn) {
	c.History = append(c.History, turn)
	if len(c.History) > maxHistoryTurns {
		c.History = c.History[len(c.History)-maxHistoryTurns:]
	}
}

// Clear resets the context to empty.
func (c *ConversationContext) Clear() {
	c.Variables = make(map[string]any)
	c.History = nil
	c.CurrentFlow = ""
}

// Serialize renders the context to its persisted JSON form.
func (c *ConversationContext) Serialize() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("chatbot: serialize context: %w", err)
	}
	return data, nil
}

// DeserializeContext rebuilds a context from its persisted form. Empty or
// nil input yields a fresh context rather than an error.
func DeserializeContext(data []byte) (*ConversationContext, error) {
	if len(data) == 0 {
		return NewConversationContext(), nil
	}
	ctx := NewConversationContext()
	if err := json.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("chatbot: deserialize context: %w", err)
	}
	if ctx.Variables == nil {
		ctx.Variables = make(map[string]any)
	}
	if len(ctx.History) > maxHistoryTurns {
		ctx.History = ctx.History[len(ctx.History)-maxHistoryTurns:]
	}
	return ctx, nil
}
