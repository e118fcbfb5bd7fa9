// Package server exposes a nestedset.Tree as a small JSON API over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bluesky-social/nestedset/nestedset"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	tree   *nestedset.Tree
	echo   *echo.Echo
	logger *slog.Logger

	lk     sync.Mutex
	httpd  *http.Server
	closed bool
}

type Options struct {
	Logger *slog.Logger

	// Registry receives the HTTP request metrics and is what /metrics
	// serves. nil means the prometheus default registry.
	Registry *prometheus.Registry
}

func New(tree *nestedset.Tree, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		tree:   tree,
		echo:   e,
		logger: logger.With("system", "server"),
	}

	mcfg := echoprometheus.MiddlewareConfig{
		Subsystem: "nestree",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/_health"
		},
	}
	metricsHandler := promhttp.Handler()
	if opts.Registry != nil {
		mcfg.Registerer = opts.Registry
		metricsHandler = promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
	}

	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(mcfg))

	e.GET("/_health", s.handleHealthcheck)
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	e.GET("/tree", s.handleGetTree)
	e.POST("/nodes", s.handleInsert)
	e.GET("/nodes/:id", s.handleGetNode)
	e.DELETE("/nodes/:id", s.handleDelete)
	e.GET("/nodes/:id/subtree", s.handleGetSubtree)
	e.GET("/nodes/:id/children", s.handleGetChildren)
	e.GET("/nodes/:id/ancestors", s.handleGetAncestors)
	e.POST("/nodes/:id/move", s.handleMove)

	return s
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.echo.ServeHTTP(rw, req)
}

// Start serves on addr until Shutdown is called. It returns nil right away
// once the server has been shut down.
func (s *Server) Start(addr string) error {
	httpd := &http.Server{
		Handler:        otelhttp.NewHandler(s, "nestree"),
		Addr:           addr,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}
	s.lk.Lock()
	if s.closed {
		s.lk.Unlock()
		return nil
	}
	s.httpd = httpd
	s.lk.Unlock()

	s.logger.Info("starting server", "bind", addr)
	if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.lk.Lock()
	s.closed = true
	httpd := s.httpd
	s.lk.Unlock()
	if httpd == nil {
		return nil
	}
	s.logger.Info("shutting down")
	return httpd.Shutdown(ctx)
}

// treeError maps engine errors onto HTTP errors. Anything that is not the
// caller's fault is logged and reported as a bare 500.
func (s *Server) treeError(err error) error {
	switch {
	case errors.Is(err, nestedset.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, nestedset.ErrInvalidMove), errors.Is(err, nestedset.ErrInvalidPosition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.logger.Error("tree operation failed", "err", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
