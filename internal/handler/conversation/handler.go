package conversation

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/campus-assistant/backend/internal/handler/httperror"
	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	conversationService "github.com/zhouzirui/campus-assistant/backend/internal/service/conversation"
	"github.com/zhouzirui/campus-assistant/backend/pkg/utils"
)

// Options 机器人回复的展示配置
type Options struct {
	// TypingDelay 每条流式机器人消息前的“正在输入”时长
	TypingDelay time.Duration
	// AllowedOrigins 限制 WebSocket 升级的来源，为空或 "*" 时不限制
	AllowedOrigins []string
}

// Handler 通过 JSON、SSE 和 WebSocket 处理访客操作
type Handler struct {
	svc         *conversationService.Service
	typingDelay time.Duration
	upgrader    websocket.Upgrader
}

// New 创建对话处理器
func New(svc *conversationService.Service, opts Options) *Handler {
	return &Handler{
		svc:         svc,
		typingDelay: opts.TypingDelay,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(opts.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/converse/{token}/start", h.handleStart)
	r.Post("/converse/{token}", h.handleConverse)
	r.Get("/ws/{token}", h.handleWebSocket)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	turn, err := h.svc.Start(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httperror.Respond(w, r, err, "Failed to start conversation")
		return
	}

	utils.RespondJSON(w, http.StatusOK, turn)
}

func (h *Handler) handleConverse(w http.ResponseWriter, r *http.Request) {
	var action conversationService.Action
	if err := utils.DecodeJSON(r, &action); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	turn, err := h.svc.Handle(r.Context(), chi.URLParam(r, "token"), action)
	if err != nil {
		httperror.Respond(w, r, err, "Failed to handle action")
		return
	}

	if !wantsEventStream(r) {
		utils.RespondJSON(w, http.StatusOK, turn)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	if err := h.streamTurn(r.Context(), w, flusher, turn); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Debug().Err(err).Msg("event stream ended early")
	}
}

type donePayload struct {
	Session    chat.Session `json:"session"`
	Breadcrumb []string     `json:"breadcrumb"`
}

// streamTurn 将已保存的一轮对话按 user、typing、bot、done 事件推送
func (h *Handler) streamTurn(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, turn conversationService.Turn) error {
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	for _, msg := range turn.Messages {
		if msg.Type == chat.MessageTypeBot {
			if err := utils.SendSSEEvent(w, flusher, "typing", map[string]bool{"typing": true}); err != nil {
				return err
			}
			if err := pause(ctx, h.typingDelay); err != nil {
				return err
			}
		}
		if err := utils.SendSSEEvent(w, flusher, string(msg.Type), msg); err != nil {
			return err
		}
	}

	return utils.SendSSEEvent(w, flusher, "done", donePayload{Session: turn.Session, Breadcrumb: turn.Breadcrumb})
}

// pause 等待 d，ctx 结束时提前返回
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
