package httpapp

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/ringgate/ringgate/internal/governance"
	"github.com/ringgate/ringgate/internal/metrics"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	svc *governance.Service
	e   *echo.Echo

	mu  sync.Mutex
	srv *http.Server
}

// NewEchoServer creates a new HTTP server for svc.
func NewEchoServer(svc *governance.Service, logger *slog.Logger) *EchoServer {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.Logger = logger
	es := &EchoServer{svc: svc, e: e}
	e.HTTPErrorHandler = es.httpErrorHandler
	e.Use(middleware.Recover())
	e.Use(correlationID)
	es.registerRoutes()
	return es
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.handleHealthz)

	v1 := es.e.Group("/v1")
	v1.GET("/models", es.handleModels)
	v1.POST("/evidence", es.handleSubmitEvidence)
	v1.GET("/evidence/:id", es.handleGetEvidence)
	v1.GET("/candidates/:id/audit", es.handleAuditTrail)
	v1.POST("/candidates/:id/evaluate", es.handleEvaluate)
	v1.POST("/evaluations", es.handleEvaluateMany)
	v1.POST("/requests", es.handleSubmitRequest)
	v1.GET("/requests/:id", es.handleGetRequest)
	v1.POST("/requests/:id/approve", es.handleApprove)
	v1.POST("/requests/:id/reject", es.handleReject)
	v1.POST("/requests/:id/exceptions", es.handleCreateException)
	v1.GET("/exceptions/:id", es.handleGetException)
	v1.POST("/exceptions/:id/approve", es.handleApproveException)
	v1.POST("/exceptions/:id/reject", es.handleRejectException)
}

// MountMetrics serves the Prometheus collectors at /metrics on the API
// listener.
func (es *EchoServer) MountMetrics() {
	es.e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// Handler returns the routed echo instance.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}

// StartServer serves on server until Shutdown is called. server.Handler is
// replaced with the echo router.
func (es *EchoServer) StartServer(server *http.Server) error {
	server.Handler = es.e
	es.mu.Lock()
	es.srv = server
	es.mu.Unlock()
	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	es.mu.Lock()
	srv := es.srv
	es.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
