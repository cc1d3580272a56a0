// Package httperror 将服务层错误映射为 HTTP 响应，供各处理器共用。
package httperror

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	chatService "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/campus-assistant/backend/pkg/utils"
)

// Respond 将服务错误映射为 400、404 或 500。内部错误记录日志，
// 并以 fallback 代替原始错误返回。
func Respond(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var validation *chatService.ValidationError
	switch {
	case errors.As(err, &validation):
		utils.RespondError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	default:
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg(fallback)
		utils.RespondError(w, http.StatusInternalServerError, fallback)
	}
}
