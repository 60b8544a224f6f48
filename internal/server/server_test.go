package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/config"
	"github.com/magpiebot/magpie/internal/dispatch"
)

type fakeStats struct{ stats dispatch.Stats }

func (f *fakeStats) Stats() dispatch.Stats { return f.stats }

func newTestServer(apiKey string) *Server {
	cfg := config.DefaultConfig()
	cfg.Server.APIKey = apiKey
	stats := &fakeStats{stats: dispatch.Stats{Queued: 7, Delivered: 5, Failed: 1, Dropped: 1}}
	return New(cfg, stats, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, newTestServer(""), "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != 200 {
		t.Errorf("code = %d", resp.Code)
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	w := get(t, newTestServer("secret"), "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health behind auth: status = %d", w.Code)
	}
}

func TestStatsRequiresKey(t *testing.T) {
	s := newTestServer("secret")

	if w := get(t, s, "/api/stats", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}
	if w := get(t, s, "/api/stats", map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	w := get(t, s, "/api/stats", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("right key: status = %d", w.Code)
	}
	var resp struct {
		Data dispatch.Stats `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Queued != 7 || resp.Data.Delivered != 5 {
		t.Errorf("stats = %+v", resp.Data)
	}
}

func TestStatsOpenWithoutConfiguredKey(t *testing.T) {
	if w := get(t, newTestServer(""), "/api/stats", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want open access with no key configured", w.Code)
	}
}

func TestConfigRedactsAPIKey(t *testing.T) {
	s := newTestServer("supersecret")
	w := get(t, s, "/api/config", map[string]string{"X-API-Key": "supersecret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "supersecret") {
		t.Error("API key leaked into config response")
	}
	if !strings.Contains(body, "[redacted]") {
		t.Error("config response missing redaction marker")
	}
}
