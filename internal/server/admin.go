package server

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
)

func (s *Server) adminRoutes() {
	s.Router.Route("/admin", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/reclaim", s.handleReclaim)
		r.Post("/warmup", s.handleWarmUp)
		r.Post("/clear", s.handleClear)
	})
}

type statsResponse struct {
	Compiler any          `json:"compiler"`
	Runtime  runtimeStats `json:"runtime"`
}

type runtimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	NumGC        uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, statsResponse{
		Compiler: s.compiler.Stats(),
		Runtime: runtimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			HeapAlloc:    m.HeapAlloc,
			NumGC:        m.NumGC,
		},
	})
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.compiler.Reclaim())
}

func (s *Server) handleWarmUp(w http.ResponseWriter, r *http.Request) {
	warmed := s.compiler.WarmUp()
	writeJSON(w, http.StatusOK, map[string]int{"patterns_warmed": warmed})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.compiler.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
