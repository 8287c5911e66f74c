package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teusbenschop/cryptobot-sub002/internal/bot"
	"github.com/teusbenschop/cryptobot-sub002/internal/config"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
	"github.com/teusbenschop/cryptobot-sub002/internal/repository"
	"github.com/teusbenschop/cryptobot-sub002/internal/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server - мониторинговый HTTP сервер движка.
//
// Торговое ядро им не управляется: сервер отдаёт только состояние
// (здоровье, активные паузы, планы, метрики) и WebSocket поток
// блоков обратной связи.
type Server struct {
	srv        *http.Server
	pauses     *bot.PauseTable
	multipaths *repository.MultipathRepository
	hub        *websocket.Hub
	startedAt  time.Time
	logger     *zap.Logger
}

// NewServer создает мониторинговый сервер
func NewServer(
	cfg config.WebConfig,
	pauses *bot.PauseTable,
	multipaths *repository.MultipathRepository,
	hub *websocket.Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pauses:     pauses,
		multipaths: multipaths,
		hub:        hub,
		startedAt:  time.Now(),
		logger:     logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.ServeWS)

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start запускает сервер; блокируется до остановки
func (s *Server) Start() error {
	s.logger.Info("monitoring server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown останавливает сервер с ожиданием активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusResponse - снимок состояния движка
type statusResponse struct {
	UptimeSeconds    float64             `json:"uptime_seconds"`
	ActivePauses     []models.PauseEntry `json:"active_pauses"`
	MultipathCounts  map[string]int      `json:"multipath_counts"`
	WebsocketClients int                 `json:"websocket_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	resp := statusResponse{
		UptimeSeconds:    now.Sub(s.startedAt).Seconds(),
		ActivePauses:     []models.PauseEntry{},
		WebsocketClients: s.hub.ClientCount(),
	}

	for _, entry := range s.pauses.Entries() {
		if entry.Active(now) {
			resp.ActivePauses = append(resp.ActivePauses, entry)
		}
	}

	counts, err := s.multipaths.CountByStatus(r.Context())
	if err != nil {
		s.logger.Warn("failed to count multipath plans", zap.Error(err))
		counts = map[string]int{}
	}
	resp.MultipathCounts = counts

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode status response", zap.Error(err))
	}
}
