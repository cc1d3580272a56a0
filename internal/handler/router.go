package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/campus-assistant/backend/internal/analysis/search"
	"github.com/zhouzirui/campus-assistant/backend/internal/handler/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/handler/conversation"
	knowledgeHandler "github.com/zhouzirui/campus-assistant/backend/internal/handler/knowledge"
	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/campus-assistant/backend/internal/middleware"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	chatService "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	conversationService "github.com/zhouzirui/campus-assistant/backend/internal/service/conversation"
	"github.com/zhouzirui/campus-assistant/backend/pkg/utils"
)

// Options HTTP 层的展示配置
type Options struct {
	TypingDelay    time.Duration
	AllowedOrigins []string
}

// NewRouter 将 HTTP 路由绑定到核心服务
func NewRouter(
	logger zerolog.Logger,
	kb *knowledge.Base,
	matcher *search.Matcher,
	chatSvc *chatService.Service,
	conversationSvc *conversationService.Service,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.HTTPMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.AllowedOrigins))

	chatHandler := chat.New(chatSvc)
	kbHandler := knowledgeHandler.New(kb, matcher)
	conversationHandler := conversation.New(conversationSvc, conversation.Options{
		TypingDelay:    opts.TypingDelay,
		AllowedOrigins: opts.AllowedOrigins,
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/chat", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		kbHandler.RegisterRoutes(api)
		conversationHandler.RegisterRoutes(api)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not found")
	})
	// 方法不匹配按未知路由处理，接口只返回 400、404 和 500
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not found")
	})

	return r
}
