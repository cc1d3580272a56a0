package conversation

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/campus-assistant/backend/internal/handler/httperror"
	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	chatService "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	conversationService "github.com/zhouzirui/campus-assistant/backend/internal/service/conversation"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

type outgoingMessage struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken,omitempty"`
	Data         any    `json:"data,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type connectedPayload struct {
	Session    chat.Session   `json:"session"`
	Messages   []chat.Message `json:"messages"`
	Breadcrumb []string       `json:"breadcrumb"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	// 升级前先开启对话，失败时仍返回普通 HTTP 状态码
	start, err := h.svc.Start(r.Context(), token)
	if err != nil {
		httperror.Respond(w, r, err, "Failed to start conversation")
		return
	}

	logger := logging.Ctx(r.Context()).With().Str(logging.FieldSession, token).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(logging.WithLogger(r.Context(), logger))
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, conn)

	h.send(conn, &logger, token, "connected", connectedPayload{
		Session:    start.Session,
		Messages:   start.Messages,
		Breadcrumb: start.Breadcrumb,
	})

	for {
		var action conversationService.Action
		if err := conn.ReadJSON(&action); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := h.handleAction(ctx, conn, &logger, token, action); err != nil {
			return
		}
	}
}

// handleAction 处理一次操作并写回消息，返回错误表示连接已不可用
func (h *Handler) handleAction(ctx context.Context, conn *websocket.Conn, logger *zerolog.Logger, token string, action conversationService.Action) error {
	turn, err := h.svc.Handle(ctx, token, action)
	if err != nil {
		if chatService.IsValidation(err) {
			return h.sendError(conn, logger, err.Error())
		}
		logger.Error().Err(err).Msg("failed to handle websocket action")
		return h.sendError(conn, logger, "failed to handle action")
	}

	for _, msg := range turn.Messages {
		if msg.Type == chat.MessageTypeBot {
			if err := h.send(conn, logger, token, "typing", map[string]bool{"typing": true}); err != nil {
				return err
			}
			if err := pause(ctx, h.typingDelay); err != nil {
				return err
			}
		}
		if err := h.send(conn, logger, token, string(msg.Type), msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) send(conn *websocket.Conn, logger *zerolog.Logger, token, kind string, data any) error {
	msg := outgoingMessage{
		Type:         kind,
		SessionToken: token,
		Data:         data,
		Timestamp:    time.Now().Unix(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		logger.Debug().Err(err).Str("type", kind).Msg("websocket write failed")
		return err
	}
	return nil
}

func (h *Handler) sendError(conn *websocket.Conn, logger *zerolog.Logger, message string) error {
	return h.send(conn, logger, "", "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息，WriteControl 可与 WriteJSON 并发调用
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
