package hfgcs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"skysignal/internal/events"
	"skysignal/internal/signal"
	"skysignal/internal/storage"
)

// Match is a positive classification result.
type Match struct {
	TypeID   string
	TypeName string
	Method   signal.DetectionMethod
}

// EventFunc receives lifecycle events for dispatch to subscribers.
type EventFunc func(e events.Event)

// TrackerConfig tunes the watch tracker.
type TrackerConfig struct {
	TTL           time.Duration
	EvictInterval time.Duration
}

// Tracker runs the detected → updated → lost lifecycle for watched
// aircraft.
type Tracker struct {
	cfg     TrackerConfig
	watch   *WatchConfig
	store   storage.Store
	onEvent EventFunc
	logger  *log.Logger

	mu       sync.Mutex
	aircraft map[string]*signal.HFGCSAircraft

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewTracker builds the tracker with defaults filled in.
func NewTracker(cfg TrackerConfig, watch *WatchConfig, store storage.Store,
	onEvent EventFunc, logger *log.Logger) *Tracker {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.EvictInterval <= 0 {
		cfg.EvictInterval = 30 * time.Second
	}
	if onEvent == nil {
		onEvent = func(events.Event) {}
	}
	return &Tracker{
		cfg:      cfg,
		watch:    watch,
		store:    store,
		onEvent:  onEvent,
		logger:   logger.WithPrefix("hfgcs"),
		aircraft: make(map[string]*signal.HFGCSAircraft),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Classify returns the first matching watched type for a message, in
// hex-range, callsign-prefix, explicit-type order. Nil means no match.
func (t *Tracker) Classify(msg *signal.Message) *Match {
	if msg.Hex != "" {
		if v, err := parseHex24(msg.Hex); err == nil {
			for i := range t.watch.Types {
				ty := &t.watch.Types[i]
				for _, r := range ty.HexRanges {
					if v >= r.lo && v <= r.hi {
						return &Match{TypeID: ty.ID, TypeName: ty.Name, Method: signal.DetectByHexRange}
					}
				}
			}
		}
	}

	call := strings.ToUpper(strings.TrimSpace(msg.Flight))
	if call != "" {
		for i := range t.watch.Types {
			ty := &t.watch.Types[i]
			for _, p := range ty.CallsignPrefixes {
				if strings.HasPrefix(call, p) {
					return &Match{TypeID: ty.ID, TypeName: ty.Name, Method: signal.DetectByCallsignPrefix}
				}
			}
		}
	}

	if at := strings.ToUpper(strings.TrimSpace(msg.AircraftType)); at != "" {
		for i := range t.watch.Types {
			ty := &t.watch.Types[i]
			if strings.EqualFold(ty.ID, at) || strings.Contains(strings.ToUpper(ty.Name), at) {
				return &Match{TypeID: ty.ID, TypeName: ty.Name, Method: signal.DetectByExplicitType}
			}
		}
	}

	return nil
}

// HandleMessage classifies one normalized message and advances the
// lifecycle of the matched aircraft, if any.
func (t *Tracker) HandleMessage(msg *signal.Message) {
	m := t.Classify(msg)
	if m == nil {
		return
	}

	id := msg.Hex
	if id == "" {
		id = strings.ToUpper(strings.TrimSpace(msg.Flight))
	}
	if id == "" {
		return
	}

	now := msg.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	t.mu.Lock()
	a, known := t.aircraft[id]
	if !known {
		a = &signal.HFGCSAircraft{
			AircraftID:      id,
			AircraftType:    m.TypeID,
			Hex:             msg.Hex,
			FirstDetected:   now,
			DetectionMethod: m.Method,
		}
		t.aircraft[id] = a
	}
	if msg.Flight != "" {
		a.Callsign = strings.ToUpper(strings.TrimSpace(msg.Flight))
	}
	if msg.Tail != "" {
		a.Tail = msg.Tail
	}
	if msg.Hex != "" {
		a.Hex = msg.Hex
	}
	a.LastSeen = now
	a.TotalMessages++
	snapshot := *a
	t.mu.Unlock()

	t.persist(&snapshot)

	if known {
		t.onEvent(events.New(events.TypeHFGCSUpdated, snapshot))
	} else {
		t.logger.Info("watched aircraft detected",
			"id", id, "type", m.TypeID, "method", m.Method)
		t.onEvent(events.New(events.TypeHFGCSDetected, snapshot))
	}
}

// Active returns copies of all currently tracked aircraft, most recent
// first.
func (t *Tracker) Active() []signal.HFGCSAircraft {
	t.mu.Lock()
	out := make([]signal.HFGCSAircraft, 0, len(t.aircraft))
	for _, a := range t.aircraft {
		out = append(out, *a)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Start launches the eviction loop.
func (t *Tracker) Start() {
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.cfg.EvictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.EvictStale(time.Now().UTC())
			}
		}
	}()
}

// Stop halts the eviction loop.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// EvictStale removes aircraft idle past the TTL, emitting lost events.
func (t *Tracker) EvictStale(now time.Time) int {
	var lost []signal.HFGCSAircraft

	t.mu.Lock()
	for id, a := range t.aircraft {
		if now.Sub(a.LastSeen) > t.cfg.TTL {
			lost = append(lost, *a)
			delete(t.aircraft, id)
		}
	}
	t.mu.Unlock()

	for i := range lost {
		t.logger.Info("watched aircraft lost", "id", lost[i].AircraftID, "type", lost[i].AircraftType)
		t.onEvent(events.New(events.TypeHFGCSLost, lost[i]))
	}
	return len(lost)
}

func (t *Tracker) persist(a *signal.HFGCSAircraft) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.SaveHFGCSAircraft(ctx, a); err != nil {
		t.logger.Warn("hfgcs persist failed", "id", a.AircraftID, "err", err)
	}
}
