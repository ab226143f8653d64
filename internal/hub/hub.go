// Package hub fans events out to push subscribers over WebSocket.
// ADS-B traffic rides a batched path on a fixed cadence; everything
// else is dispatched directly. Slow subscribers are skipped, not
// dropped.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"skysignal/internal/events"
	"skysignal/internal/signal"
)

// Config tunes the hub.
type Config struct {
	BroadcastInterval time.Duration
	BatchLimit        int
	QueueWarn         int
	QueueHardLimit    int
	BackpressureBytes int64
	HeartbeatInterval time.Duration
	MaxMissedProbes   int32

	// AllowedOrigins restricts admission when non-empty. "*" admits
	// any origin.
	AllowedOrigins []string
}

// Hub owns the subscriber set and both dispatch paths.
type Hub struct {
	cfg    Config
	logger *log.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber

	queueMu   sync.Mutex
	adsbQueue []*signal.Message

	queueWarns   atomic.Int64
	queueDrops   atomic.Int64
	slowSends    atomic.Int64
	rejectedConn atomic.Int64

	upgrader websocket.Upgrader

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Stats is a point-in-time hub summary for the ops surface.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	QueueDepth  int   `json:"queue_depth"`
	QueueWarns  int64 `json:"queue_warns"`
	QueueDrops  int64 `json:"queue_drops"`
	SlowSends   int64 `json:"slow_sends"`
	Rejected    int64 `json:"rejected_connections"`
}

// New builds a hub with defaults filled in.
func New(cfg Config, logger *log.Logger) *Hub {
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 500 * time.Millisecond
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.QueueWarn <= 0 {
		cfg.QueueWarn = 100
	}
	if cfg.QueueHardLimit <= 0 {
		cfg.QueueHardLimit = 10000
	}
	if cfg.BackpressureBytes <= 0 {
		cfg.BackpressureBytes = 100 * 1024
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MaxMissedProbes <= 0 {
		cfg.MaxMissedProbes = 2
	}

	h := &Hub{
		cfg:    cfg,
		logger: logger.WithPrefix("hub"),
		subs:   make(map[string]*Subscriber),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// Start launches the batch and heartbeat loops.
func (h *Hub) Start() {
	go h.run()
}

// Stop closes every subscriber with a shutdown reason and halts the
// loops.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done

	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.terminate("server shutting down")
	}
}

// PublishADSB queues one normalized ADS-B message for the batched path.
func (h *Hub) PublishADSB(msg *signal.Message) {
	h.queueMu.Lock()
	h.adsbQueue = append(h.adsbQueue, msg)
	depth := len(h.adsbQueue)
	if depth > h.cfg.QueueHardLimit {
		// Drop oldest to stay at the limit.
		over := depth - h.cfg.QueueHardLimit
		h.adsbQueue = h.adsbQueue[over:]
		h.queueDrops.Add(int64(over))
	}
	h.queueMu.Unlock()

	if depth > h.cfg.QueueWarn {
		if h.queueWarns.Add(1)%100 == 1 {
			h.logger.Warn("adsb queue backlog", "depth", depth)
		}
	}
}

// Publish dispatches one event immediately on the direct path.
func (h *Hub) Publish(e events.Event) {
	frame, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("event marshal failed", "type", e.Type, "err", err)
		return
	}
	h.broadcast(frame)
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	h.queueMu.Lock()
	depth := len(h.adsbQueue)
	h.queueMu.Unlock()
	return Stats{
		Subscribers: n,
		QueueDepth:  depth,
		QueueWarns:  h.queueWarns.Load(),
		QueueDrops:  h.queueDrops.Load(),
		SlowSends:   h.slowSends.Load(),
		Rejected:    h.rejectedConn.Load(),
	}
}

// SubscriberCount returns the live subscriber count.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeWS upgrades one HTTP request into a subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		h.rejectedConn.Add(1)
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	sub := newSubscriber(uuid.NewString(), r.URL.Query().Get("token"), conn, h)
	h.register(sub)

	go sub.writePump()
	go sub.readPump()

	sub.state.Store(int32(StateOpen))
	h.logger.Info("subscriber connected", "id", sub.ID, "remote", r.RemoteAddr)

	// Greeting so clients can confirm the channel end to end.
	if frame, err := json.Marshal(events.New(events.TypeConnection, map[string]string{
		"status": "connected", "subscriber_id": sub.ID,
	})); err == nil {
		sub.enqueue(frame)
	}
}

func (h *Hub) originAllowed(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser client
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Hub) register(s *Subscriber) {
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
}

func (h *Hub) unregister(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s.ID]; ok {
		delete(h.subs, s.ID)
		h.mu.Unlock()
		h.logger.Info("subscriber disconnected", "id", s.ID)
		return
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		s.enqueue(frame)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	batch := time.NewTicker(h.cfg.BroadcastInterval)
	defer batch.Stop()
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-batch.C:
			h.flushBatch()
		case <-heartbeat.C:
			h.probeAll()
		}
	}
}

// flushBatch drains up to BatchLimit queued ADS-B messages into one
// adsb_batch event.
func (h *Hub) flushBatch() {
	h.queueMu.Lock()
	if len(h.adsbQueue) == 0 {
		h.queueMu.Unlock()
		return
	}
	n := len(h.adsbQueue)
	if n > h.cfg.BatchLimit {
		n = h.cfg.BatchLimit
	}
	drained := h.adsbQueue[:n]
	h.adsbQueue = append([]*signal.Message(nil), h.adsbQueue[n:]...)
	h.queueMu.Unlock()

	frame, err := json.Marshal(events.NewBatch(events.TypeADSBBatch, drained, len(drained)))
	if err != nil {
		h.logger.Error("batch marshal failed", "err", err)
		return
	}
	h.broadcast(frame)
}

func (h *Hub) probeAll() {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if !s.probe(h.cfg.MaxMissedProbes) {
			h.logger.Warn("subscriber unresponsive", "id", s.ID)
			s.terminate("heartbeat timeout")
		}
	}
}
