// Command opsapi serves fleet-wide reads from the central PostgreSQL
// store that hubs sync into. It runs standalone, away from any single
// hub, so operators can query every site's HFGCS sightings and EAMs in
// one place.
//
// Usage:
//
//	opsapi [options]
//
// Options:
//
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: skysignal, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: skysignal, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (env: POSTGRES_PASSWORD)
//	-port N             HTTP port (default: 8081)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys
//
// Endpoints:
//
//	GET /api/v1/health
//	GET /api/v1/eams?type=&limit=
//	GET /api/v1/eams/search?q=&limit=
//	GET /api/v1/hfgcs?limit=&hours=
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"skysignal/internal/storage"
)

func main() {
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "skysignal"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", ""), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "skysignal"), "PostgreSQL database")

	port := flag.Int("port", 8081, "HTTP port")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated valid API keys (when auth enabled)")

	flag.Parse()

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "opsapi",
	})

	ctx := context.Background()
	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "opsapi: postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "opsapi: schema: %v\n", err)
		os.Exit(1)
	}

	s := &server{pg: pg, keys: map[string]bool{}}
	if *authEnabled {
		for _, k := range strings.Split(*apiKeys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				s.keys[k] = true
			}
		}
		s.auth = true
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		if s.auth {
			r = r.With(s.authMiddleware)
		}
		r.Get("/eams", s.handleEAMs)
		r.Get("/eams/search", s.handleSearch)
		r.Get("/hfgcs", s.handleHFGCS)
	})

	addr := ":" + strconv.Itoa(*port)
	logger.Info("listening", "addr", addr, "auth", s.auth)
	if err := http.ListenAndServe(addr, r); err != nil {
		fmt.Fprintf(os.Stderr, "opsapi: %v\n", err)
		os.Exit(1)
	}
}

type server struct {
	pg   *storage.PostgresDB
	auth bool
	keys map[string]bool
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.keys[key] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleEAMs(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.pg.GetEAMMessages(r.Context(),
		r.URL.Query().Get("type"), intParam(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	msgs, err := s.pg.SearchEAMs(r.Context(), q, intParam(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *server) handleHFGCS(w http.ResponseWriter, r *http.Request) {
	aircraft, err := s.pg.GetActiveHFGCSAircraft(r.Context(),
		intParam(r, "limit", 100), intParam(r, "hours", 24))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, aircraft)
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

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
