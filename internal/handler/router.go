package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/ambermind/backend/internal/handler/chat"
	"github.com/zhouzirui/ambermind/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/ambermind/backend/internal/middleware"
	chatService "github.com/zhouzirui/ambermind/backend/internal/service/chat"
	"github.com/zhouzirui/ambermind/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(manager *chatService.Manager, sessions *middlewarePkg.Sessions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(api chi.Router) {
		api.Use(sessions.Handler)

		chat.New(manager, logger.Named("chat")).RegisterRoutes(api)
		ws.New(manager, logger.Named("ws")).RegisterRoutes(api)
	})

	return r
}
