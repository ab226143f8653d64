package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the subscriber lifecycle.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Subscriber is one push connection. Frames are queued on send and
// written by a single writer goroutine; bufferedBytes estimates the
// unwritten backlog for the backpressure check.
type Subscriber struct {
	ID    string
	Token string // recorded for audit, never gates admission

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	state         atomic.Int32
	bufferedBytes atomic.Int64
	missedProbes  atomic.Int32
	skipped       atomic.Int64

	closeOnce sync.Once
}

func newSubscriber(id, token string, conn *websocket.Conn, h *Hub) *Subscriber {
	s := &Subscriber{
		ID:    id,
		Token: token,
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendQueueSize),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current lifecycle state.
func (s *Subscriber) State() ConnState { return ConnState(s.state.Load()) }

// Buffered returns the estimated unwritten bytes.
func (s *Subscriber) Buffered() int64 { return s.bufferedBytes.Load() }

// Skipped returns frames dropped for this subscriber by backpressure.
func (s *Subscriber) Skipped() int64 { return s.skipped.Load() }

// enqueue offers a frame, applying the backpressure policy: a
// subscriber buffering strictly more than the threshold is skipped,
// never disconnected.
func (s *Subscriber) enqueue(frame []byte) {
	if s.State() != StateOpen {
		return
	}
	if s.bufferedBytes.Load() > s.hub.cfg.BackpressureBytes {
		s.skipped.Add(1)
		s.hub.slowSends.Add(1)
		return
	}

	select {
	case s.send <- frame:
		s.bufferedBytes.Add(int64(len(frame)))
	default:
		// Queue full counts as backpressure too.
		s.skipped.Add(1)
		s.hub.slowSends.Add(1)
	}
}

// writePump owns all writes to the connection.
func (s *Subscriber) writePump() {
	defer s.terminate("")

	s.conn.SetPongHandler(func(string) error {
		s.missedProbes.Store(0)
		return nil
	})

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			s.bufferedBytes.Add(-int64(len(frame)))
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-s.hub.stop:
			s.terminate("server shutting down")
			return
		}
	}
}

// readPump drains client frames so control messages are processed; the
// hub itself consumes nothing from subscribers.
func (s *Subscriber) readPump() {
	defer s.terminate("")
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// probe sends a liveness ping and reports whether the subscriber has
// missed too many consecutive probes.
func (s *Subscriber) probe(maxMissed int32) bool {
	if s.missedProbes.Add(1) > maxMissed {
		return false
	}
	// Control frames are the only writes allowed outside writePump.
	_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	return true
}

// terminate closes the connection once, optionally with a close reason.
func (s *Subscriber) terminate(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		if reason != "" {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		s.hub.unregister(s)
	})
}
