// Package api exposes the daemon's REST surface: health, cities, booking
// attempts, pending waits, and the in-memory log tail.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/contrabot-io/contrabot/internal/booking"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/dispatch"
	"github.com/contrabot-io/contrabot/internal/history"
	"github.com/contrabot-io/contrabot/internal/logbuf"
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf
// directly.
type LogQuerier interface {
	Recent(minLevel slog.Level, limit int) []logbuf.Entry
}

// BotService is the interface the API server needs from the daemon.
type BotService interface {
	Cities(ctx context.Context) []directory.City
	Pending() []dispatch.PendingInfo
	CancelPending(identity string) bool
	ListAttempts(identity string, limit int) ([]history.Attempt, error)
	InjectBooking(ctx context.Context, identity string, fromID, toID uint32, travelDate string) error
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the contrabot REST API server.
type Server struct {
	svc    BotService
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates a new API server. logs may be nil.
func NewServer(svc BotService, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/cities", s.requireAuth(s.handleListCities))
	mux.HandleFunc("GET /api/bookings", s.requireAuth(s.handleListBookings))
	mux.HandleFunc("POST /api/bookings", s.requireAuth(s.handlePostBooking))
	mux.HandleFunc("GET /api/pending", s.requireAuth(s.handleListPending))
	mux.HandleFunc("DELETE /api/pending/{identity}", s.requireAuth(s.handleCancelPending))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Cities(r.Context()))
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	attempts, err := s.svc.ListAttempts(identity, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

type postBookingRequest struct {
	Identity   string `json:"identity"`
	FromID     uint32 `json:"from_id"`
	ToID       uint32 `json:"to_id"`
	TravelDate string `json:"travel_date"`
}

// handlePostBooking accepts a booking request and hands it to the command
// queue. The attempt itself runs asynchronously; its outcome lands in
// /api/bookings.
func (s *Server) handlePostBooking(w http.ResponseWriter, r *http.Request) {
	var req postBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identity is required"})
		return
	}
	if req.FromID == 0 || req.ToID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from_id and to_id are required"})
		return
	}
	if _, err := booking.ParseDate(req.TravelDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "travel_date must be YYYY-MM-DD"})
		return
	}

	if err := s.svc.InjectBooking(r.Context(), req.Identity, req.FromID, req.ToID, req.TravelDate); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleListPending(w http.ResponseWriter, _ *http.Request) {
	pending := s.svc.Pending()
	if pending == nil {
		pending = []dispatch.PendingInfo{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if !s.svc.CancelPending(identity) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending booking for identity"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	entries := s.logs.Recent(minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
