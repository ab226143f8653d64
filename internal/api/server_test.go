package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"skysignal/internal/hfgcs"
	"skysignal/internal/hub"
	"skysignal/internal/signal"
	"skysignal/internal/sources"
	"skysignal/internal/storage"
	"skysignal/internal/tracker"
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *storage.StateDB, *tracker.Tracker) {
	t.Helper()

	logger := log.New(io.Discard)
	db, err := storage.OpenState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tracks := tracker.New(tracker.Config{}, db, nil, logger)
	watch := hfgcs.NewTracker(hfgcs.TrackerConfig{}, hfgcs.DefaultConfig(), db, nil, logger)
	h := hub.New(hub.Config{}, logger)
	mgr := sources.NewManager(logger)

	s := New(cfg, db, tracks, watch, h, mgr, logger)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, db, tracks
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/health", &body))
	require.Equal(t, "ok", body["status"])
	require.Contains(t, body, "sources")
	require.Contains(t, body, "hub")
}

func TestAuthGate(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{AuthEnabled: true, APIKeys: []string{"good-key"}})

	// Health stays open.
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/health", nil))

	// Everything else requires a key.
	require.Equal(t, http.StatusUnauthorized, getJSON(t, srv, "/api/v1/aircraft", nil))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/aircraft", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, set := range []func(r *http.Request){
		func(r *http.Request) { r.Header.Set("X-API-Key", "good-key") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer good-key") },
		func(r *http.Request) { r.URL.RawQuery = "api_key=good-key" },
	} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/aircraft", nil)
		set(req)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestAircraftLookup(t *testing.T) {
	srv, _, tracks := newTestServer(t, Config{})

	tracks.Upsert(&signal.Message{
		ID:        "adsb_abc123_1",
		Timestamp: time.Now().UTC(),
		Source:    signal.Source{Type: signal.SourceADSB},
		Hex:       "abc123",
		Flight:    "UAL100",
		Position:  &signal.Position{Lat: 40.0, Lon: -75.0, AltitudeFt: 30000},
	})

	var list []signal.Track
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/aircraft", &list))
	require.Len(t, list, 1)

	var tr signal.Track
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/aircraft/ABC123", &tr))
	require.Equal(t, "UAL100", tr.Flight)

	require.Equal(t, http.StatusNotFound, getJSON(t, srv, "/api/v1/aircraft/ffffff", nil))

	var positions []signal.PositionReport
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/positions", &positions))
	require.Len(t, positions, 1)
}

func TestEAMEndpoints(t *testing.T) {
	srv, db, _ := newTestServer(t, Config{})

	e := &signal.EAMMessage{
		ID:            "e1",
		MessageType:   signal.EAMTypeEAM,
		Header:        "K9X2B",
		MessageBody:   "ABCDE FGHIJ",
		FirstDetected: time.Now().UTC(),
		LastDetected:  time.Now().UTC(),
		RepeatCount:   1,
	}
	require.NoError(t, db.SaveEAMMessage(t.Context(), e))

	var msgs []signal.EAMMessage
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/eams", &msgs))
	require.Len(t, msgs, 1)

	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/eams?type=EAM", &msgs))
	require.Len(t, msgs, 1)

	require.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/v1/eams?since=yesterday", nil))

	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/eams/search?q=fghij", &msgs))
	require.Len(t, msgs, 1)

	require.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/v1/eams/search", nil))

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/eams?older_days=1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var deleted map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deleted))
	_ = resp.Body.Close()
	require.Equal(t, int64(0), deleted["deleted"], "recent EAMs survive the purge")
}

func TestSettingsRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	require.Equal(t, http.StatusNotFound, getJSON(t, srv, "/api/v1/settings/adsb.api_key", nil))

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/settings/adsb.api_key",
		strings.NewReader(`{"value": "abc"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var setting map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/settings/adsb.api_key", &setting))
	require.Equal(t, "abc", setting["value"])

	var byCat map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/settings?category=adsb", &byCat))
	require.Equal(t, map[string]string{"api_key": "abc"}, byCat)

	require.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/v1/settings", nil))
}

func TestSourceToggleErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	var status map[string]sources.Status
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/v1/sources", &status))
	require.Empty(t, status)

	resp, err := http.Post(srv.URL+"/api/v1/sources/ghost/start", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{AuthEnabled: true, APIKeys: []string{"k"}})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/aircraft", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "preflight bypasses auth")
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
