// Package server is the HTTP surface of the gateway: route groups whose
// middleware lists are compiled once and reused per request, plus the
// admin endpoints for compiler statistics and maintenance.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/midway-labs/midway/internal/compiler"
	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/signature"
)

type Server struct {
	Router *chi.Mux
	Port   int

	logger   *slog.Logger
	compiler *compiler.Compiler
	httpSrv  *http.Server
}

// New creates a server around a compiler instance. Chi's RealIP and
// Recoverer run in front of every route; everything else is per-group
// middleware compiled through the pipeline compiler.
func New(port int, logger *slog.Logger, comp *compiler.Compiler) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "midway")
	})

	s := &Server{
		Router:   r,
		Port:     port,
		logger:   logger,
		compiler: comp,
	}
	s.adminRoutes()
	return s
}

// Group is a set of routes sharing one middleware list. The group
// prefix doubles as the stable cache key, so per-request compiles are
// cache hits after the first request.
type Group struct {
	srv    *Server
	prefix string
	units  []middleware.Unit
	key    signature.Digest
}

// RouteGroup declares a route group under prefix with the given
// middleware list.
func (s *Server) RouteGroup(prefix string, units []middleware.Unit) *Group {
	return &Group{
		srv:    s,
		prefix: prefix,
		units:  units,
		key:    signature.OfString(prefix),
	}
}

func (g *Group) Get(path string, h http.HandlerFunc)    { g.srv.Router.Get(g.prefix+path, g.wrap(h)) }
func (g *Group) Post(path string, h http.HandlerFunc)   { g.srv.Router.Post(g.prefix+path, g.wrap(h)) }
func (g *Group) Put(path string, h http.HandlerFunc)    { g.srv.Router.Put(g.prefix+path, g.wrap(h)) }
func (g *Group) Delete(path string, h http.HandlerFunc) { g.srv.Router.Delete(g.prefix+path, g.wrap(h)) }

// wrap executes the group's compiled pipeline ahead of the terminal
// handler. Pipeline errors that already wrote a response (halts) end the
// request quietly; anything else is a 500.
func (g *Group) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pipe := g.srv.compiler.CompileKeyed(g.units, g.key)

		req := middleware.NewRequest(r)
		res := &middleware.Response{Writer: w}

		err := pipe.Execute(req, res, func() error {
			h(w, req.HTTP)
			if res.Status == 0 {
				res.Status = http.StatusOK
			}
			return nil
		})
		if err != nil {
			if middleware.IsHalted(err) {
				return
			}
			g.srv.logger.Error("pipeline execution failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			if res.Status == 0 {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}
	}
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
