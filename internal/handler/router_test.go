package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	middlewarePkg "github.com/zhouzirui/ambermind/backend/internal/middleware"
	"github.com/zhouzirui/ambermind/backend/internal/service/ai"
	chatService "github.com/zhouzirui/ambermind/backend/internal/service/chat"
)

type fixedCompleter string

func (f fixedCompleter) Complete(context.Context, ai.Request) (string, error) {
	return string(f), nil
}

func newTestRouter(t *testing.T) http.Handler {
	logger := zaptest.NewLogger(t)
	manager := chatService.NewManager(chatService.NewMemoryStore(time.Hour, logger), fixedCompleter("ok"), chatService.Options{}, logger)
	sessions := middlewarePkg.NewSessions(middlewarePkg.SessionOptions{CookieName: "sid", Secret: "s"}, logger)
	return NewRouter(manager, sessions, logger)
}

func TestHealthzSkipsSession(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())
}

func TestRouterMountsChatRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/abc", strings.NewReader(`{"prompt":"hi"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"response":"ok"`)
	assert.Len(t, rec.Result().Cookies(), 1)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signup", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
