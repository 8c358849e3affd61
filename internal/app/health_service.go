package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/ledger"
)

const defaultRecentActions = 50

// Status is the daemon snapshot served on /status
type Status struct {
	Page            string `json:"page"`
	StackDepth      int    `json:"stack_depth"`
	DeviceConnected bool   `json:"device_connected"`
	Pages           int    `json:"pages"`
	Buttons         int    `json:"buttons"`
	CachedEntities  int    `json:"cached_entities"`
	RunningTasks    int    `json:"running_tasks"`
	MQTTConnected   *bool  `json:"mqtt_connected,omitempty"`
}

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg    *config.Config
	status func() Status
	ledger *ledger.Ledger // nil when the database is disabled
	server *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, status func() Status, l *ledger.Ledger) *HealthService {
	return &HealthService{
		cfg:    cfg,
		status: status,
		ledger: l,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Router builds the endpoint tree
func (s *HealthService) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready means a device is attached and buttons are live
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.status().DeviceConnected {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for device"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.status())
	})

	r.Get("/actions", s.handleActions)

	return r
}

func (s *HealthService) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "action ledger disabled"})
		return
	}

	limit := defaultRecentActions
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := s.ledger.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read action ledger")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
