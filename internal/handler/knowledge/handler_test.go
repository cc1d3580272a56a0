package knowledge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/campus-assistant/backend/internal/analysis/search"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
)

func setupRouter() *chi.Mux {
	kb := knowledge.Default()
	r := chi.NewRouter()
	New(kb, search.FromKnowledge(kb)).RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestGetMenu(t *testing.T) {
	resp := get(setupRouter(), "/menus/admissions")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		ID         string                 `json:"id"`
		Parent     string                 `json:"parent"`
		Options    []knowledge.MenuOption `json:"options"`
		Breadcrumb []string               `json:"breadcrumb"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ID != "admissions" || body.Parent != "main" {
		t.Fatalf("unexpected menu %+v", body)
	}
	if len(body.Options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(body.Options))
	}
	if len(body.Breadcrumb) != 2 || body.Breadcrumb[0] != "Main Menu" {
		t.Fatalf("unexpected breadcrumb %v", body.Breadcrumb)
	}
}

func TestGetMenuUnknown(t *testing.T) {
	resp := get(setupRouter(), "/menus/library")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListMenus(t *testing.T) {
	resp := get(setupRouter(), "/menus")

	var menus []knowledge.Menu
	if err := json.NewDecoder(resp.Body).Decode(&menus); err != nil {
		t.Fatal(err)
	}
	if len(menus) != 5 || menus[0].ID != knowledge.RootMenuID {
		t.Fatalf("unexpected menus %+v", menus)
	}
}

func TestSearch(t *testing.T) {
	r := setupRouter()

	cases := map[string]string{
		"I want to know the fee structure": "showFees",
		"how do I apply":                   "showApplication",
		"asdkjasd":                         "",
	}
	for q, want := range cases {
		resp := get(r, "/search?q="+url.QueryEscape(q))
		if resp.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", q, resp.Code)
		}

		var body struct {
			Key      *string `json:"key"`
			Response *string `json:"response"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}

		if want == "" {
			if body.Key != nil {
				t.Fatalf("%q: expected null key, got %q", q, *body.Key)
			}
			continue
		}
		if body.Key == nil || *body.Key != want {
			t.Fatalf("%q: expected key %q, got %v", q, want, body.Key)
		}
		if body.Response == nil || *body.Response == "" {
			t.Fatalf("%q: expected response text", q)
		}
	}
}
