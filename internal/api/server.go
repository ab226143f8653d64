// Package api provides the REST surface over the live trackers, the
// hub, the source manager, and persistence.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"skysignal/internal/hfgcs"
	"skysignal/internal/hub"
	"skysignal/internal/sources"
	"skysignal/internal/storage"
	"skysignal/internal/tracker"
)

// Config holds server configuration.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string
}

// Server wires the HTTP routes to the running components.
type Server struct {
	cfg     Config
	store   storage.Store
	tracks  *tracker.Tracker
	watch   *hfgcs.Tracker
	hub     *hub.Hub
	sources *sources.Manager
	logger  *log.Logger

	apiKeys map[string]bool
	httpSrv *http.Server
	started time.Time
}

// New builds the server.
func New(cfg Config, store storage.Store, tracks *tracker.Tracker,
	watch *hfgcs.Tracker, h *hub.Hub, mgr *sources.Manager, logger *log.Logger) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		tracks:  tracks,
		watch:   watch,
		hub:     h,
		sources: mgr,
		logger:  logger.WithPrefix("api"),
		apiKeys: keys,
		started: time.Now().UTC(),
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	// The push channel sits outside auth; admission has its own policy.
	r.Get("/ws", s.hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if s.cfg.AuthEnabled {
			r = r.With(s.authMiddleware)
		}

		r.Get("/aircraft", s.handleAircraft)
		r.Get("/aircraft/{hex}", s.handleAircraftByHex)
		r.Get("/positions", s.handlePositions)

		r.Get("/hfgcs", s.handleHFGCSActive)
		r.Get("/hfgcs/stats", s.handleHFGCSStats)

		r.Get("/eams", s.handleEAMs)
		r.Get("/eams/search", s.handleEAMSearch)
		r.Delete("/eams", s.handleEAMClear)

		r.Get("/recordings", s.handleRecordings)

		r.Get("/settings", s.handleSettingsByCategory)
		r.Get("/settings/{key}", s.handleGetSetting)
		r.Put("/settings/{key}", s.handlePutSetting)

		r.Get("/sources", s.handleSources)
		r.Post("/sources/{name}/start", s.handleSourceStart)
		r.Post("/sources/{name}/stop", s.handleSourceStop)
	})

	return r
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:    ":" + strconv.Itoa(s.cfg.Port),
		Handler: s.Router(),
	}
	s.logger.Info("listening", "addr", s.httpSrv.Addr, "auth", s.cfg.AuthEnabled)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication. Keys arrive via
// X-API-Key, Authorization: Bearer, or ?api_key= in that order.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"time":          time.Now().UTC().Format(time.RFC3339),
		"uptime_s":      int64(time.Since(s.started).Seconds()),
		"sources":       s.sources.Status(),
		"hub":           s.hub.Stats(),
		"tracked":       s.tracks.Count(),
		"hfgcs_tracked": len(s.watch.Active()),
	})
}

func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracks.Snapshot())
}

func (s *Server) handleAircraftByHex(w http.ResponseWriter, r *http.Request) {
	hex := strings.ToLower(chi.URLParam(r, "hex"))
	if tr := s.tracks.Get(hex); tr != nil {
		writeJSON(w, http.StatusOK, tr)
		return
	}

	// Fall back to persisted state for aircraft no longer live.
	tr, err := s.store.GetAircraftByIdentifier(r.Context(), hex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "aircraft not found")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracks.Positions(r.Context()))
}

func (s *Server) handleHFGCSActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watch.Active())
}

func (s *Server) handleHFGCSStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetHFGCSStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEAMs(w http.ResponseWriter, r *http.Request) {
	q := storage.EAMQuery{
		MessageType: r.URL.Query().Get("type"),
		Limit:       intParam(r, "limit", 100),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since (use RFC3339)")
			return
		}
		q.Since = t
	}

	msgs, err := s.store.GetEAMMessages(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEAMSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	msgs, err := s.store.SearchEAMs(r.Context(), query, intParam(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEAMClear(w http.ResponseWriter, r *http.Request) {
	olderDays := intParam(r, "older_days", 30)
	n, err := s.store.ClearEAMs(r.Context(), olderDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.GetRecordings(r.Context(),
		r.URL.Query().Get("feed_id"), intParam(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSettingsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	settings, err := s.store.GetSettingsByCategory(r.Context(), category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	val, err := s.store.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if val == "" {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": val})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.SetSetting(r.Context(), key, body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sources.Status())
}

func (s *Server) handleSourceStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.sources.Start(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source": name, "state": "started"})
}

func (s *Server) handleSourceStop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.sources.Stop(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source": name, "state": "stopped"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}
