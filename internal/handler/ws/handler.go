package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatHandler "github.com/zhouzirui/ambermind/backend/internal/handler/chat"
	"github.com/zhouzirui/ambermind/backend/internal/middleware"
	chatService "github.com/zhouzirui/ambermind/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler WebSocket对话处理器：每条入站消息执行一轮对话
type Handler struct {
	manager  *chatService.Manager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New 创建WebSocket处理器
func New(manager *chatService.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat/{chatID}", h.handleWebSocket)
}

type inboundMessage struct {
	Prompt string `json:"prompt"`
}

type resultMessage struct {
	Type string `json:"type"`
	chatService.TurnResult
}

type errorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r.Context())
	chatID := chi.URLParam(r, "chatID")

	// A cookie issued by the session middleware must ride on the upgrade response.
	responseHeader := http.Header{}
	for _, cookie := range w.Header().Values("Set-Cookie") {
		responseHeader.Add("Set-Cookie", cookie)
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		result, err := h.manager.HandleTurn(ctx, token, chatID, msg.Prompt)
		if err != nil {
			status, body := chatHandler.Classify(err)
			if status >= http.StatusInternalServerError {
				h.logger.Error("turn failed", zap.Error(err))
			}
			h.send(conn, errorMessage{Type: "error", Error: body.Error, Details: body.Details})
			continue
		}

		h.send(conn, resultMessage{Type: "result", TurnResult: result})
	}
}

func (h *Handler) send(conn *websocket.Conn, msg any) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn("write failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
