package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/campus-assistant/backend/internal/handler/httperror"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	chatService "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/campus-assistant/backend/pkg/utils"
)

// Handler 聊天会话与消息记录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话与消息相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleGetOrCreateSession)
	r.Patch("/session/{token}", h.handleUpdateSession)
	r.Get("/messages/{token}", h.handleListMessages)
	r.Post("/messages", h.handleAppendMessage)
}

type sessionRequest struct {
	SessionToken string `json:"sessionToken"`
	// 旧版组件发送的是 sessionId
	SessionID string `json:"sessionId"`
}

func (p sessionRequest) token() string {
	if p.SessionToken != "" {
		return p.SessionToken
	}
	return p.SessionID
}

func (h *Handler) handleGetOrCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload sessionRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.chatSvc.GetOrCreateSession(r.Context(), payload.token())
	if err != nil {
		httperror.Respond(w, r, err, "Failed to handle chat session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var patch chat.SessionPatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.chatSvc.UpdateSession(r.Context(), chi.URLParam(r, "token"), patch)
	if err != nil {
		httperror.Respond(w, r, err, "Failed to update session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.ListMessages(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httperror.Respond(w, r, err, "Failed to get messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		sessionRequest
		Type    chat.MessageType       `json:"type"`
		Content string                 `json:"content"`
		Options []knowledge.MenuOption `json:"options"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stored, err := h.chatSvc.AppendMessage(r.Context(), chat.Message{
		SessionToken: payload.token(),
		Type:         payload.Type,
		Content:      payload.Content,
		Options:      payload.Options,
	})
	if err != nil {
		httperror.Respond(w, r, err, "Failed to add message")
		return
	}

	utils.RespondJSON(w, http.StatusOK, stored)
}
