package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	chatservice "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/store"
)

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(store.NewMemoryStore(), knowledge.Default())
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, resp.Body.String())
	}
	return out
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	r, _ := setupRouter()

	first := doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionToken": "abc"})
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionToken": "abc"})

	a := decodeBody[chat.Session](t, first)
	b := decodeBody[chat.Session](t, second)
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("expected identical ids, got %q and %q", a.ID, b.ID)
	}
	if a.CurrentMenu != knowledge.RootMenuID {
		t.Fatalf("expected currentMenu main, got %q", a.CurrentMenu)
	}
}

func TestCreateSessionAcceptsSessionID(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionId": "legacy"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if s := decodeBody[chat.Session](t, resp); s.SessionToken != "legacy" {
		t.Fatalf("expected token legacy, got %q", s.SessionToken)
	}
}

func TestCreateSessionMissingToken(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/session", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["message"] == "" {
		t.Fatalf("expected message in error body, got %v", body)
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/session", `{"sessionToken":`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUpdateSession(t *testing.T) {
	r, _ := setupRouter()
	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionToken": "abc"})

	resp := doJSON(t, r, http.MethodPatch, "/session/abc", map[string]any{
		"currentMenu": "academics",
		"menuStack":   []string{"admissions"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeBody[chat.Session](t, resp)
	if s.CurrentMenu != "academics" || len(s.MenuStack) != 1 || s.MenuStack[0] != "admissions" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestUpdateSessionUnknownToken(t *testing.T) {
	r, svc := setupRouter()

	resp := doJSON(t, r, http.MethodPatch, "/session/ghost", map[string]string{"currentMenu": "main"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if _, err := svc.GetSession(context.Background(), "ghost"); err == nil {
		t.Fatal("update must not create a session")
	}
}

func TestUpdateSessionUnknownMenu(t *testing.T) {
	r, _ := setupRouter()
	doJSON(t, r, http.MethodPost, "/session", map[string]string{"sessionToken": "abc"})

	resp := doJSON(t, r, http.MethodPatch, "/session/abc", map[string]string{"currentMenu": "library"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	r, _ := setupRouter()

	empty := doJSON(t, r, http.MethodGet, "/messages/abc", nil)
	if empty.Code != http.StatusOK || bytes.TrimSpace(empty.Body.Bytes())[0] != '[' {
		t.Fatalf("expected empty array, got %d %q", empty.Code, empty.Body.String())
	}

	for _, m := range []map[string]string{
		{"sessionToken": "abc", "type": "user", "content": "hello"},
		{"sessionToken": "abc", "type": "bot", "content": "hi there"},
		{"sessionId": "abc", "type": "user", "content": "fees?"},
	} {
		resp := doJSON(t, r, http.MethodPost, "/messages", m)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		stored := decodeBody[chat.Message](t, resp)
		if stored.ID == "" || stored.Timestamp.IsZero() {
			t.Fatalf("expected generated id and timestamp, got %+v", stored)
		}
	}

	resp := doJSON(t, r, http.MethodGet, "/messages/abc", nil)
	messages := decodeBody[[]chat.Message](t, resp)
	want := []string{"hello", "hi there", "fees?"}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i, m := range messages {
		if m.Content != want[i] {
			t.Fatalf("message %d: expected %q, got %q", i, want[i], m.Content)
		}
	}
}

func TestAppendMessageValidation(t *testing.T) {
	r, _ := setupRouter()

	cases := map[string]map[string]string{
		"missing token": {"type": "user", "content": "hi"},
		"bad type":      {"sessionToken": "abc", "type": "admin", "content": "hi"},
		"empty content": {"sessionToken": "abc", "type": "user", "content": ""},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doJSON(t, r, http.MethodPost, "/messages", body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}
}

func TestStoreFailureIsInternalError(t *testing.T) {
	st := store.NewMemoryStore()
	_ = st.Close()
	r := chi.NewRouter()
	New(chatservice.NewService(st, nil)).RegisterRoutes(r)

	resp := doJSON(t, r, http.MethodGet, "/messages/abc", nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if body := decodeBody[map[string]string](t, resp); body["message"] != "Failed to get messages" {
		t.Fatalf("unexpected body %v", body)
	}
}
