// Package ops serves the operational HTTP surface (liveness, readiness,
// metrics) while a pipeline run is in flight. It is off unless an address
// is configured; plain CLI runs need none of it.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fillmorejl/async-transaction-engine/libs/health"
	"github.com/fillmorejl/async-transaction-engine/libs/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"log/slog"
)

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func New(addr string, ready *health.Manager, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
