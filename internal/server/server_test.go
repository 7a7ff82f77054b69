package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/midway-labs/midway/internal/compiler"
	"github.com/midway-labs/midway/internal/middleware"
)

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	comp := compiler.New(compiler.Config{}, logger)
	return New(0, logger, comp)
}

// counting builds a unit that increments n each time it runs.
func counting(token string, n *int) middleware.Unit {
	return middleware.Named(token, func(req *middleware.Request, res *middleware.Response, next func() error) error {
		*n++
		return next()
	})
}

func TestRouteGroup_ExecutesPipeline(t *testing.T) {
	s := newTestServer()

	var ran int
	g := s.RouteGroup("/api", []middleware.Unit{counting("custom_step", &ran)})
	g.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "pong" {
		t.Errorf("body = %q, want pong", w.Body.String())
	}
	if ran != 1 {
		t.Errorf("middleware ran %d times, want 1", ran)
	}
}

func TestRouteGroup_SecondRequestIsCacheHit(t *testing.T) {
	s := newTestServer()

	var ran int
	g := s.RouteGroup("/api", []middleware.Unit{counting("custom_step", &ran)})
	g.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}

	stats := s.compiler.Stats()
	if stats.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", stats.CacheMisses)
	}
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if ran != 2 {
		t.Errorf("middleware ran %d times, want 2", ran)
	}
}

func TestRouteGroup_HaltStopsBeforeHandler(t *testing.T) {
	s := newTestServer()

	var handlerRan bool
	g := s.RouteGroup("/api", []middleware.Unit{
		middleware.AuthBearer(func(token string) bool { return token == "secret" }),
	})
	g.Get("/private", func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
	})

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/private", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if handlerRan {
		t.Error("terminal handler ran after an auth halt")
	}

	// With the right token the request flows through.
	handlerRan = false
	req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("authorized status = %d, want 200", w.Code)
	}
	if !handlerRan {
		t.Error("terminal handler did not run for an authorized request")
	}
}

func TestRouteGroup_PipelineErrorIs500(t *testing.T) {
	s := newTestServer()

	broken := middleware.Unit{}
	g := s.RouteGroup("/api", []middleware.Unit{broken})
	g.Get("/ping", func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestAdmin_Stats(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		Compiler struct {
			CacheEntries int `json:"cache_entries"`
		} `json:"compiler"`
		Runtime struct {
			GoVersion string `json:"go_version"`
		} `json:"runtime"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if body.Runtime.GoVersion == "" {
		t.Error("runtime.go_version is empty")
	}
}

func TestAdmin_WarmUpAndClear(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/warmup", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("warmup status = %d, want 200", w.Code)
	}

	var warmed map[string]int
	if err := json.NewDecoder(w.Body).Decode(&warmed); err != nil {
		t.Fatalf("decode warmup: %v", err)
	}
	if warmed["patterns_warmed"] == 0 {
		t.Error("patterns_warmed = 0, want built-ins precompiled")
	}
	if s.compiler.Stats().CacheEntries == 0 {
		t.Error("cache is empty after warmup")
	}

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/clear", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", w.Code)
	}
	if got := s.compiler.Stats().CacheEntries; got != 0 {
		t.Errorf("CacheEntries after clear = %d, want 0", got)
	}
}

func TestAdmin_Reclaim(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/reclaim", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("reclaim status = %d, want 200", w.Code)
	}

	var result struct {
		PipelinesRemoved int `json:"pipelines_removed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode reclaim: %v", err)
	}
	if result.PipelinesRemoved != 0 {
		t.Errorf("pipelines_removed = %d, want 0 on an empty cache", result.PipelinesRemoved)
	}
}
