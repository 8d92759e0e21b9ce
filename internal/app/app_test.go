package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medbot/internal/conversation"
	"medbot/internal/session"
	"medbot/internal/storage/stubs"
)

type recordingHandler struct {
	updates chan tgbotapi.Update
}

func (h *recordingHandler) HandleWebhookUpdate(update tgbotapi.Update) {
	h.updates <- update
}

func TestMux_HealthAndStatus(t *testing.T) {
	mux := newMux(conversation.SearchBot, "polling", &recordingHandler{}, zap.NewNop())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "search bot is running (mode: polling)")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMux_Webhook(t *testing.T) {
	handler := &recordingHandler{updates: make(chan tgbotapi.Update, 1)}
	mux := newMux(conversation.AdminBot, "webhook", handler, zap.NewNop())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram-webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"update_id":42,"message":{"message_id":1,"date":0,"chat":{"id":7,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"T"},"text":"/start"}}`
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case update := <-handler.updates:
		assert.Equal(t, 42, update.UpdateID)
		require.NotNil(t, update.Message)
		assert.Equal(t, "/start", update.Message.Text)
	case <-time.After(time.Second):
		t.Fatal("Expected update to be dispatched")
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestCloseAll_SharedMock(t *testing.T) {
	db := stubs.NewMockDB()
	a := &App{
		logger:   zap.NewNop(),
		repo:     db,
		activity: db,
		sessions: session.NewMemoryStore(),
	}
	assert.NoError(t, a.closeAll())
}
