package webchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyai/parley-platform/internal/chatbot"
)

type fakeChat struct {
	history  []chatbot.Message
	received []string
}

func (f *fakeChat) ProcessMessage(_ context.Context, text, sessionID, _ string, _ []byte) *chatbot.Reply {
	f.received = append(f.received, text)
	return &chatbot.Reply{
		Text:       "Happy to help!",
		Intent:     "greeting",
		Confidence: 0.91,
		SessionID:  sessionID,
	}
}

func (f *fakeChat) GetConversationHistory(context.Context, string, int) ([]chatbot.Message, error) {
	return f.history, nil
}

func newTestHandler(botID uuid.UUID, chat *fakeChat) *Handler {
	return NewHandler(func(_ context.Context, id uuid.UUID) (ChatService, error) {
		if id != botID {
			return nil, errors.New("bot not found")
		}
		return chat, nil
	}, nil)
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	var frame OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketConversation(t *testing.T) {
	botID := uuid.New()
	chat := &fakeChat{}
	srv := httptest.NewServer(http.HandlerFunc(newTestHandler(botID, chat).HandleWebSocket))
	defer srv.Close()

	conn := dialWS(t, srv, "?bot="+botID.String())

	session := readFrame(t, conn)
	require.Equal(t, "session", session.Type)
	assert.NotEmpty(t, session.SessionID)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "message", Text: "hello"}))

	typing := readFrame(t, conn)
	assert.Equal(t, "typing", typing.Type)

	reply := readFrame(t, conn)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "assistant", reply.Role)
	assert.Equal(t, "Happy to help!", reply.Text)
	assert.Equal(t, "greeting", reply.Intent)
	assert.Equal(t, session.SessionID, reply.SessionID)

	assert.Equal(t, []string{"hello"}, chat.received)
}

func TestWebSocketPingPong(t *testing.T) {
	botID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(newTestHandler(botID, &fakeChat{}).HandleWebSocket))
	defer srv.Close()

	conn := dialWS(t, srv, "?bot="+botID.String())
	readFrame(t, conn) // session

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestWebSocketReplaysHistory(t *testing.T) {
	botID := uuid.New()
	chat := &fakeChat{history: []chatbot.Message{{
		UserMessage: "what are your hours?",
		BotResponse: "We are open 9 to 5.",
		CreatedAt:   time.Now(),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(newTestHandler(botID, chat).HandleWebSocket))
	defer srv.Close()

	conn := dialWS(t, srv, "?bot="+botID.String()+"&session=sess-old")

	session := readFrame(t, conn)
	assert.Equal(t, "sess-old", session.SessionID)

	history := readFrame(t, conn)
	require.Equal(t, "history", history.Type)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "what are your hours?", history.Messages[0].Text)
	assert.Equal(t, "assistant", history.Messages[1].Role)
}

func TestWebSocketUnknownBot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(newTestHandler(uuid.New(), &fakeChat{}).HandleWebSocket))
	defer srv.Close()

	conn := dialWS(t, srv, "?bot="+uuid.NewString())
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
}

func TestWebSocketRequiresBotParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(newTestHandler(uuid.New(), &fakeChat{}).HandleWebSocket))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleMessageFallback(t *testing.T) {
	botID := uuid.New()
	chat := &fakeChat{}
	h := newTestHandler(botID, chat)

	rec := httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/webchat/message",
		strings.NewReader(`{"bot_id": "`+botID.String()+`", "text": "hi"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Happy to help!")
	assert.Equal(t, []string{"hi"}, chat.received)

	t.Run("missing text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/webchat/message",
			strings.NewReader(`{"bot_id": "`+botID.String()+`"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown bot", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/webchat/message",
			strings.NewReader(`{"bot_id": "`+uuid.NewString()+`", "text": "hi"}`)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleHistory(t *testing.T) {
	botID := uuid.New()
	chat := &fakeChat{history: []chatbot.Message{{
		UserMessage: "hi",
		BotResponse: "hello",
		CreatedAt:   time.Now(),
	}}}
	h := newTestHandler(botID, chat)

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet,
		"/webchat/history?bot="+botID.String()+"&session=s1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"user"`)
	assert.Contains(t, rec.Body.String(), `"role":"assistant"`)

	t.Run("missing session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleHistory(rec, httptest.NewRequest(http.MethodGet,
			"/webchat/history?bot="+botID.String(), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleWidgetJS(t *testing.T) {
	h := newTestHandler(uuid.New(), &fakeChat{})
	rec := httptest.NewRecorder()
	h.HandleWidgetJS(rec, httptest.NewRequest(http.MethodGet, "/widget.js", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "parley")
}
