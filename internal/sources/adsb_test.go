package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"skysignal/internal/signal"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type capture struct {
	srcs     []signal.Source
	payloads []any
}

func (c *capture) raw(src signal.Source, payload any) {
	c.srcs = append(c.srcs, src)
	c.payloads = append(c.payloads, payload)
}

func newADSBTest(t *testing.T, handler http.HandlerFunc) (*ADSBPoller, *capture) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var c capture
	p := NewADSBPoller(ADSBConfig{
		BaseURL:      srv.URL,
		APIKey:       "api-auth:2b1f0a64-9c3e-4a1f-8f52-aa10a21d7c55",
		Lat:          40.0,
		Lon:          -75.0,
		DistNM:       100,
		PollInterval: 5 * time.Second,
		StationID:    "test-station",
	}, c.raw, testLogger())
	return p, &c
}

func TestADSBPollerSnapshot(t *testing.T) {
	var gotAuth string
	p, c := newADSBTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("api-auth")
		if r.URL.Path != "/lat/40/lon/-75/dist/100" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"now": 1756000000,
			"aircraft": [
				{"hex": "abc123", "flight": "UAL100 ", "lat": 40.1, "lon": -75.2, "alt_baro": 30000, "gs": 420},
				{"hex": "def456", "lat": null, "lon": -75.0},
				{"hex": "aab bcc", "lon": -75.0},
				{"hex": "fed987", "lat": 95.0, "lon": -75.0}
			]
		}`))
	})

	p.pollOnce(context.Background())

	if gotAuth != "2b1f0a64-9c3e-4a1f-8f52-aa10a21d7c55" {
		t.Errorf("api-auth header = %q, want prefix stripped", gotAuth)
	}

	// Only the record with a usable position is emitted.
	if len(c.payloads) != 1 {
		t.Fatalf("emitted %d records, want 1", len(c.payloads))
	}
	rec := c.payloads[0].(signal.ADSBRecord)
	if rec.Hex != "abc123" {
		t.Errorf("hex = %s", rec.Hex)
	}
	if c.srcs[0].Type != signal.SourceADSB || c.srcs[0].StationID != "test-station" {
		t.Errorf("source = %+v", c.srcs[0])
	}

	st := p.Status()
	if !st.Connected || st.Messages != 1 {
		t.Errorf("status = %+v", st)
	}
	if !p.Known("ABC123") {
		t.Error("Known must be case-insensitive")
	}
}

func TestADSBPollerRemovalMap(t *testing.T) {
	snapshots := []string{
		`{"aircraft": [{"hex": "abc123", "lat": 40.0, "lon": -75.0}, {"hex": "def456", "lat": 41.0, "lon": -74.0}]}`,
		`{"aircraft": [{"hex": "def456", "lat": 41.1, "lon": -74.0}]}`,
	}
	i := 0
	p, _ := newADSBTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(snapshots[i]))
		if i < len(snapshots)-1 {
			i++
		}
	})

	p.pollOnce(context.Background())
	if !p.Known("abc123") || !p.Known("def456") {
		t.Fatal("both aircraft should be known after the first snapshot")
	}

	p.pollOnce(context.Background())
	if p.Known("abc123") {
		t.Error("aircraft missing from the snapshot must be forgotten")
	}
	if !p.Known("def456") {
		t.Error("still-present aircraft must stay known")
	}
}

func TestADSBPollerRateLimitBackoff(t *testing.T) {
	status := http.StatusTooManyRequests
	p, _ := newADSBTest(t, func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"aircraft": []}`))
	})

	p.pollOnce(context.Background())
	p.mu.Lock()
	got := p.interval
	p.mu.Unlock()
	if got != 15*time.Second {
		t.Fatalf("interval after 429 = %v, want 15s", got)
	}

	// One clean poll is not enough to restore the base cadence.
	status = http.StatusOK
	p.pollOnce(context.Background())
	p.mu.Lock()
	got = p.interval
	p.mu.Unlock()
	if got != 15*time.Second {
		t.Fatalf("interval after one clean poll = %v, want 15s", got)
	}

	// The second clean poll restores it.
	p.pollOnce(context.Background())
	p.mu.Lock()
	got = p.interval
	p.mu.Unlock()
	if got != 5*time.Second {
		t.Fatalf("interval after two clean polls = %v, want 5s", got)
	}
}

func TestADSBPollerAuthRejectionSuspends(t *testing.T) {
	p, _ := newADSBTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	p.pollOnce(context.Background())

	p.mu.Lock()
	suspended := p.suspended
	p.mu.Unlock()
	if !suspended {
		t.Error("401 must suspend the source")
	}
	if st := p.Status(); st.LastError != ErrAuthRejected.Error() {
		t.Errorf("LastError = %q", st.LastError)
	}
}

func TestADSBPollerLegacySnapshotShape(t *testing.T) {
	p, c := newADSBTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ac": [{"hex": "abc123", "lat": 40.0, "lon": -75.0, "spd": 250, "trak": 90}]}`))
	})

	p.pollOnce(context.Background())
	if len(c.payloads) != 1 {
		t.Fatalf("emitted %d records, want 1", len(c.payloads))
	}
	rec := c.payloads[0].(signal.ADSBRecord)
	if !rec.Spd.Set || rec.Spd.Value != 250 {
		t.Errorf("spd = %+v", rec.Spd)
	}
}
