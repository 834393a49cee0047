package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/ambermind/backend/internal/middleware"
	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
	"github.com/zhouzirui/ambermind/backend/internal/service/ai"
	chatService "github.com/zhouzirui/ambermind/backend/internal/service/chat"
	"github.com/zhouzirui/ambermind/backend/pkg/utils"
)

// QuotaMessage tells the user how to get out of an exhausted conversation.
const QuotaMessage = "You have reached the message limit for this conversation. Clear your cookies or session data to start a new chat."

// maxBodyBytes bounds the prompt request body.
const maxBodyBytes = 1 << 20

// Handler 聊天服务的HTTP处理器
type Handler struct {
	manager *chatService.Manager
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(manager *chatService.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats", h.handleListChats)
	r.Get("/history/{chatID}", h.handleHistory)
	r.Post("/chat/{chatID}", h.handleChat)
}

// PromptRequest is the body of POST /chat/{chatID}.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// handleListChats 确保会话存在并返回唯一的对话
func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.manager.Chats(r.Context(), middleware.SessionToken(r.Context()))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]chat.Summary{"chats": chats})
}

// handleHistory 返回当前会话的历史记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.History(r.Context(), middleware.SessionToken(r.Context()), chi.URLParam(r, "chatID"))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]chat.Turn{"history": session.History})
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload PromptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.manager.HandleTurn(r.Context(), middleware.SessionToken(r.Context()), chi.URLParam(r, "chatID"), payload.Prompt)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	status, body := Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	utils.RespondJSON(w, status, body)
}

// Classify maps a conversation error onto an HTTP status and error body.
func Classify(err error) (int, utils.ErrorBody) {
	switch {
	case errors.Is(err, chatService.ErrQuotaExceeded):
		return http.StatusForbidden, utils.ErrorBody{Error: QuotaMessage}
	case errors.Is(err, chatService.ErrIdentityMismatch):
		return http.StatusForbidden, utils.ErrorBody{Error: "Unauthorized access to chat"}
	case errors.Is(err, ai.ErrMissingCredential):
		return http.StatusInternalServerError, utils.ErrorBody{Error: "Completion service is not configured"}
	case errors.Is(err, ai.ErrCompletionFormat):
		return http.StatusInternalServerError, utils.ErrorBody{Error: "Unexpected response from the completion service", Details: err.Error()}
	case errors.Is(err, ai.ErrCompletionUnavailable):
		return http.StatusInternalServerError, utils.ErrorBody{Error: "Failed to get a response from the completion service", Details: err.Error()}
	default:
		return http.StatusInternalServerError, utils.ErrorBody{Error: "internal error"}
	}
}
