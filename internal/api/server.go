// Package api is the ambient HTTP surface: a JSON status endpoint, a
// Prometheus /metrics endpoint, and a WebSocket upgrade point that hands
// connections off to the notify Hub.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// StatusProvider is the orchestrator's status-snapshot dependency.
type StatusProvider interface {
	Snapshot(ctx context.Context) notify.StatusUpdate
}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_http_requests_total",
		Help: "Total HTTP requests served by the ambient API surface, by route.",
	}, []string{"route"})
	balanceGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_balance_sol",
		Help: "Wallet balance in SOL as of the last /status read.",
	})
	openPositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_open_positions",
		Help: "Number of open positions as of the last /status read.",
	})
)

// Server is the ambient HTTP/WebSocket server.
type Server struct {
	logger     *zap.Logger
	cfg        types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *notify.Hub
	status     StatusProvider
}

// NewServer constructs a Server. hub may be nil to disable the /ws route.
func NewServer(logger *zap.Logger, cfg types.ServerConfig, hub *notify.Hub, status StatusProvider) *Server {
	s := &Server{
		logger: logger.Named("api"),
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    hub,
		status: status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

// Handler returns the server's routed HTTP handler, useful for tests that
// want to exercise routes without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.cfg.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	if s.hub != nil {
		path := s.cfg.WebSocketPath
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.handleWebSocket)
	}
}

// Start runs the HTTP server until it is shut down or fails to bind.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting ambient API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("status").Inc()
	snapshot := s.status.Snapshot(r.Context())
	balanceF, _ := snapshot.BalanceSOL.Float64()
	balanceGauge.Set(balanceF)
	openPositionsGauge.Set(float64(snapshot.OpenPositions))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Warn("failed to encode status response", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("ws").Inc()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := notify.NewClient(uuid.New().String(), s.hub, conn)
	s.hub.Register(client)
	go client.ReadPump()
	go client.WritePump()
}
