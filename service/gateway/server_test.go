package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"PulseChat/global"
	"PulseChat/service/auth"
	"PulseChat/service/hub"
	"PulseChat/service/router"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := global.Load("")
	if err != nil {
		t.Fatal(err)
	}
	h := hub.New(hub.Conf{GatewayID: cfg.Gateway.ID, SendQueue: 8})
	t.Cleanup(h.Close)
	rt := router.New(router.Conf{Hub: h})
	verifier := auth.NewVerifier([]byte("test-secret"), time.Hour)
	return NewServer(cfg, h, rt, nil, nil, verifier)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["relay"] != false {
		t.Fatalf("body: %v", body)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"userId":"u1","username":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Token    string `json:"token"`
		ExpireAt int64  `json:"expireAt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	ident, err := s.verifier.Verify(body.Token)
	if err != nil {
		t.Fatal(err)
	}
	if ident.UserID != "u1" || ident.Username != "alice" {
		t.Fatalf("identity: %+v", ident)
	}
	if body.ExpireAt <= time.Now().UnixMilli() {
		t.Fatalf("expireAt in the past: %d", body.ExpireAt)
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"userId":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWSRejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil)
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}
