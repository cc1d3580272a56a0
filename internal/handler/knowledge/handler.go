package knowledge

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	"github.com/zhouzirui/campus-assistant/backend/pkg/utils"
)

// Searcher 将自由文本解析为回复键
type Searcher interface {
	Search(text string) (string, bool)
}

// Handler 只读知识库的HTTP处理器
type Handler struct {
	kb       *knowledge.Base
	searcher Searcher
}

// New 创建知识库处理器
func New(kb *knowledge.Base, searcher Searcher) *Handler {
	return &Handler{
		kb:       kb,
		searcher: searcher,
	}
}

// RegisterRoutes 注册菜单与搜索路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/menus", h.handleListMenus)
	r.Get("/menus/{id}", h.handleGetMenu)
	r.Get("/search", h.handleSearch)
}

type menuResponse struct {
	knowledge.Menu
	Breadcrumb []string `json:"breadcrumb"`
}

type searchResponse struct {
	Query    string  `json:"query"`
	Key      *string `json:"key"`
	Response *string `json:"response,omitempty"`
}

func (h *Handler) handleListMenus(w http.ResponseWriter, r *http.Request) {
	ids := h.kb.MenuIDs()
	menus := make([]knowledge.Menu, 0, len(ids))
	for _, id := range ids {
		if menu, ok := h.kb.Menu(id); ok {
			menus = append(menus, menu)
		}
	}
	utils.RespondJSON(w, http.StatusOK, menus)
}

func (h *Handler) handleGetMenu(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	menu, ok := h.kb.Menu(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Menu not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, menuResponse{
		Menu:       menu,
		Breadcrumb: h.kb.Breadcrumb(id),
	})
}

// handleSearch 不会失败，未命中时 key 为 null
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	resp := searchResponse{Query: query}

	if key, ok := h.searcher.Search(query); ok {
		resp.Key = &key
		if text, ok := h.kb.Response(key); ok {
			resp.Response = &text
		}
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}
