package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
	"go.uber.org/zap"
)

// Server is the operator surface: risk status, the trade ledger, and the kill switch.
type Server struct {
	router     *mux.Router
	server     *http.Server
	gate       *usecase.Gatekeeper
	dispatcher *usecase.Dispatcher
	ledger     domain.LedgerRepository
	kill       domain.KillSwitchWriter
	metrics    http.Handler
	logger     *zap.Logger
	timeNow    func() time.Time
}

// NewServer wires the routes. kill and metrics may be nil.
func NewServer(
	port int,
	gate *usecase.Gatekeeper,
	dispatcher *usecase.Dispatcher,
	ledger domain.LedgerRepository,
	kill domain.KillSwitchWriter,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:     mux.NewRouter(),
		gate:       gate,
		dispatcher: dispatcher,
		ledger:     ledger,
		kill:       kill,
		metrics:    metrics,
		logger:     logger,
		timeNow:    time.Now,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestLogging)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/cooldowns/{broker}/{instrument:.+}", s.handleCooldown).Methods(http.MethodGet)

	s.router.HandleFunc("/kill", s.handleKill).Methods(http.MethodPost)
	s.router.HandleFunc("/resume", s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/mode", s.handleMode).Methods(http.MethodPost)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("took", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
