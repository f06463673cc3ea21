package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
	"github.com/githaohao/xzxz-lm-chat/internal/config"
	"github.com/githaohao/xzxz-lm-chat/internal/db"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one connection, one in-memory database
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := chat.NewService(chat.NewRepo(gdb), nil, nil, zap.NewNop())
	cfg := config.Config{CORSOrigins: []string{"*"}}
	r := NewRouter(cfg, Deps{
		DB:      gdb,
		ChatSvc: svc,
		Log:     zap.NewNop(),
	})
	return r, gdb
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, userID int64) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("user_id", fmt.Sprintf("%d", userID))
		req.Header.Set("username", "tester")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope %q: %v", w.Body.String(), err)
		}
	}
	return w, envelope
}

func TestHealthIsPublic(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/chat/health", nil, 0)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	data := env["data"].(map[string]any)
	if data["status"] != "ok" || data["db"] != "up" {
		t.Fatalf("unexpected health payload: %v", data)
	}
}

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/chat/sessions", nil, 0)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if env["code"].(float64) != 40101 {
		t.Fatalf("code = %v, want 40101", env["code"])
	}
}

func TestSessionMessageFlowWithCamelCaseWire(t *testing.T) {
	r, _ := newTestRouter(t)

	// Create: response keys must come back camelCase.
	w, env := doJSON(t, r, http.MethodPost, "/chat/sessions",
		map[string]any{"title": "Trip planning"}, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	session := env["data"].(map[string]any)
	sid, _ := session["id"].(string)
	if sid == "" {
		t.Fatalf("missing session id in %v", session)
	}
	if _, ok := session["messageCount"]; !ok {
		t.Fatalf("response not camelCased: %v", session)
	}
	if _, ok := session["message_count"]; ok {
		t.Fatalf("snake_case leaked to the wire: %v", session)
	}

	// Add a message with a camelCase request body.
	w, env = doJSON(t, r, http.MethodPost, "/chat/sessions/"+sid+"/messages",
		map[string]any{"role": "user", "content": "hello", "messageType": "text"}, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("add message status = %d body=%s", w.Code, w.Body.String())
	}
	msg := env["data"].(map[string]any)
	if msg["sequenceNumber"].(float64) != 1 {
		t.Fatalf("sequenceNumber = %v, want 1", msg["sequenceNumber"])
	}

	// List messages: paginated envelope.
	w, env = doJSON(t, r, http.MethodGet, "/chat/sessions/"+sid+"/messages", nil, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	page := env["pagination"].(map[string]any)
	if page["total"].(float64) != 1 {
		t.Fatalf("total = %v, want 1", page["total"])
	}
}

func TestCrossUserSessionHidden(t *testing.T) {
	r, _ := newTestRouter(t)

	_, env := doJSON(t, r, http.MethodPost, "/chat/sessions",
		map[string]any{"title": "mine"}, 7)
	sid := env["data"].(map[string]any)["id"].(string)

	w, env := doJSON(t, r, http.MethodGet, "/chat/sessions/"+sid, nil, 8)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if env["code"].(float64) != 40400 {
		t.Fatalf("code = %v, want 40400", env["code"])
	}
}

func TestArchiveRestoreEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	_, env := doJSON(t, r, http.MethodPost, "/chat/sessions",
		map[string]any{"title": "mine"}, 7)
	sid := env["data"].(map[string]any)["id"].(string)

	w, env := doJSON(t, r, http.MethodPut, "/chat/sessions/"+sid+"/archive", nil, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("archive status = %d body=%s", w.Code, w.Body.String())
	}
	if env["data"].(map[string]any)["status"] != "archived" {
		t.Fatalf("status not archived: %v", env["data"])
	}

	w, env = doJSON(t, r, http.MethodPut, "/chat/sessions/"+sid+"/restore", nil, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("restore status = %d", w.Code)
	}
	if env["data"].(map[string]any)["status"] != "active" {
		t.Fatalf("status not active: %v", env["data"])
	}
}

func TestBatchMessages(t *testing.T) {
	r, _ := newTestRouter(t)

	_, env := doJSON(t, r, http.MethodPost, "/chat/sessions", nil, 7)
	sid := env["data"].(map[string]any)["id"].(string)

	batch := []map[string]any{
		{"sessionId": sid, "role": "user", "content": "one"},
		{"sessionId": sid, "role": "assistant", "content": "two"},
	}
	w, env := doJSON(t, r, http.MethodPost, "/chat/messages/batch", batch, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("batch status = %d body=%s", w.Code, w.Body.String())
	}
	msgs := env["data"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("inserted %d messages, want 2", len(msgs))
	}
	second := msgs[1].(map[string]any)
	if second["sequenceNumber"].(float64) != 2 {
		t.Fatalf("second sequenceNumber = %v, want 2", second["sequenceNumber"])
	}
}

func TestDeleteMessageUpdatesCounter(t *testing.T) {
	r, gdb := newTestRouter(t)

	_, env := doJSON(t, r, http.MethodPost, "/chat/sessions", nil, 7)
	sid := env["data"].(map[string]any)["id"].(string)

	_, env = doJSON(t, r, http.MethodPost, "/chat/sessions/"+sid+"/messages",
		map[string]any{"content": "bye"}, 7)
	mid := env["data"].(map[string]any)["id"].(string)

	w, _ := doJSON(t, r, http.MethodDelete, "/chat/messages/"+mid, nil, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	var count int64
	if err := gdb.Model(&chat.Session{}).Where("id = ? AND message_count = 0", sid).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("message_count was not decremented to 0")
	}
}

func TestStatsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	_, env := doJSON(t, r, http.MethodPost, "/chat/sessions", nil, 7)
	sid := env["data"].(map[string]any)["id"].(string)
	doJSON(t, r, http.MethodPost, "/chat/sessions/"+sid+"/messages",
		map[string]any{"content": "hi"}, 7)

	w, env := doJSON(t, r, http.MethodGet, "/chat/stats", nil, 7)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	stats := env["data"].(map[string]any)
	if stats["activeSessions"].(float64) != 1 || stats["totalMessages"].(float64) != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestTestAuthEchoesIdentity(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/chat/test-auth", nil)
	req.Header.Set("user-id", "42")
	req.Header.Set("username", "walt")
	req.Header.Set("roles", "admin,editor")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var env map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := env["data"].(map[string]any)
	if data["userId"].(float64) != 42 || data["username"] != "walt" {
		t.Fatalf("unexpected identity echo: %v", data)
	}
	roles := data["roles"].([]any)
	if len(roles) != 2 || roles[0] != "admin" {
		t.Fatalf("roles = %v", roles)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/nope", nil, 0)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if env["code"].(float64) != 40400 {
		t.Fatalf("code = %v, want 40400", env["code"])
	}
}
