package sources

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"skysignal/internal/signal"
)

func TestACARSWSClientReadsFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		frames := []string{
			`{"airframe": {"tail": "N123AB", "icao": "A1B2C3"}, "message": {"id": 1, "label": "H1", "text": "wrapped"}}`,
			`this is not json`,
			`{"id": 2, "tail": "N456CD", "label": "Q0", "text": "flat"}`,
		}
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// Hold the socket open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []signal.ACARSEnvelope
	c := NewACARSWSClient(ACARSWSConfig{
		Endpoints: []string{"ws" + strings.TrimPrefix(srv.URL, "http")},
		StationID: "test-station",
	}, func(src signal.Source, payload any) {
		mu.Lock()
		got = append(got, payload.(signal.ACARSEnvelope))
		mu.Unlock()
	}, testLogger())

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Stop() }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d frames, want 2", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Inner().Text != "wrapped" {
		t.Errorf("first frame text = %q", got[0].Inner().Text)
	}
	if got[1].Inner().Tail != "N456CD" {
		t.Errorf("flat frame tail = %q", got[1].Inner().Tail)
	}
	if c.Malformed() != 1 {
		t.Errorf("malformed = %d, want 1", c.Malformed())
	}
	if st := c.Status(); st.Messages != 2 {
		t.Errorf("messages = %d", st.Messages)
	}
}

func TestACARSWSClientStartIdempotent(t *testing.T) {
	c := NewACARSWSClient(ACARSWSConfig{Endpoints: []string{"ws://127.0.0.1:1/feed"}}, func(signal.Source, any) {}, testLogger())
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestNATSFeedHandleMsg(t *testing.T) {
	var c capture
	f := NewNATSFeed(NATSFeedConfig{URL: nats.DefaultURL}, c.raw, testLogger())

	f.handleMsg(&nats.Msg{Data: []byte(`{
		"station": {"ident": "KE5ZZZ-1"},
		"airframe": {"tail": "N123AB", "icao": "A1B2C3", "military": false},
		"message": {"id": 42, "label": "H1", "text": "relay"}
	}`)})
	f.handleMsg(&nats.Msg{Data: []byte(`garbage`)})
	f.handleMsg(&nats.Msg{Data: []byte(`{}`)})

	if len(c.payloads) != 1 {
		t.Fatalf("emitted %d, want 1", len(c.payloads))
	}
	if c.srcs[0].StationID != "KE5ZZZ-1" {
		t.Errorf("station = %q", c.srcs[0].StationID)
	}
	env := c.payloads[0].(signal.ACARSEnvelope)
	if env.Inner().Text != "relay" {
		t.Errorf("text = %q", env.Inner().Text)
	}

	f.mu.Lock()
	malformed := f.malformed
	f.mu.Unlock()
	if malformed != 2 {
		t.Errorf("malformed = %d, want 2", malformed)
	}
}
