// Package tracker maintains the hex → Track state for aircraft seen on
// position-bearing sources, evicts stale tracks, and serves the merged
// positions view.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"skysignal/internal/signal"
	"skysignal/internal/storage"
)

// LostFunc is called once per evicted track.
type LostFunc func(tr signal.Track)

// Config tunes the tracker.
type Config struct {
	TrackTTL       time.Duration
	EvictInterval  time.Duration
	MaxTrackPoints int
	// ACARSWindow bounds the persistence join in Positions.
	ACARSWindow time.Duration
}

// Tracker holds live tracks. All exported methods are safe for
// concurrent use; snapshots returned to callers are copies.
type Tracker struct {
	cfg    Config
	store  storage.Store
	onLost LostFunc
	logger *log.Logger

	mu     sync.RWMutex
	tracks map[string]*signal.Track

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New builds a tracker with defaults filled in.
func New(cfg Config, store storage.Store, onLost LostFunc, logger *log.Logger) *Tracker {
	if cfg.TrackTTL <= 0 {
		cfg.TrackTTL = time.Hour
	}
	if cfg.EvictInterval <= 0 {
		cfg.EvictInterval = 30 * time.Second
	}
	if cfg.MaxTrackPoints <= 0 {
		cfg.MaxTrackPoints = 1000
	}
	if cfg.ACARSWindow <= 0 {
		cfg.ACARSWindow = 6 * time.Hour
	}
	if onLost == nil {
		onLost = func(signal.Track) {}
	}
	return &Tracker{
		cfg:    cfg,
		store:  store,
		onLost: onLost,
		logger: logger.WithPrefix("tracker"),
		tracks: make(map[string]*signal.Track),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the eviction loop.
func (t *Tracker) Start() {
	go t.evictLoop()
}

// Stop halts eviction and waits for the loop to exit.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// Upsert folds one position-bearing message into the track state. A
// track point is appended only when the position actually moved.
func (t *Tracker) Upsert(msg *signal.Message) {
	if msg.Hex == "" || !msg.HasPosition() {
		return
	}

	pt := signal.TrackPoint{
		Timestamp:       msg.Timestamp,
		Lat:             msg.Position.Lat,
		Lon:             msg.Position.Lon,
		AltitudeFt:      msg.Position.AltitudeFt,
		GroundSpeedKt:   msg.GroundSpeedKt,
		HeadingDeg:      msg.HeadingDeg,
		VerticalRateFpm: msg.VerticalRateFpm,
		OnGround:        msg.OnGround,
	}

	t.mu.Lock()
	tr, ok := t.tracks[msg.Hex]
	if !ok {
		tr = &signal.Track{
			AircraftID: msg.ID,
			Hex:        msg.Hex,
			FirstSeen:  msg.Timestamp,
		}
		t.tracks[msg.Hex] = tr
	}

	if msg.Flight != "" {
		tr.Flight = msg.Flight
	}
	if msg.Tail != "" {
		tr.Tail = msg.Tail
	}
	if msg.AircraftType != "" {
		tr.AircraftType = msg.AircraftType
	}
	tr.Military = tr.Military || msg.Military

	moved := tr.PositionCount == 0 ||
		tr.CurrentPosition.Lat != pt.Lat || tr.CurrentPosition.Lon != pt.Lon
	if moved {
		tr.TrackPoints = append(tr.TrackPoints, pt)
		if len(tr.TrackPoints) > t.cfg.MaxTrackPoints {
			tr.TrackPoints = tr.TrackPoints[len(tr.TrackPoints)-t.cfg.MaxTrackPoints:]
		}
		tr.PositionCount++
	}
	tr.CurrentPosition = pt
	tr.LastSeen = msg.Timestamp
	t.mu.Unlock()
}

// Get returns a copy of one track, or nil.
func (t *Tracker) Get(hex string) *signal.Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[hex]
	if !ok {
		return nil
	}
	cp := cloneTrack(tr)
	return &cp
}

// Snapshot returns copies of every live track, newest last-seen first.
func (t *Tracker) Snapshot() []signal.Track {
	t.mu.RLock()
	out := make([]signal.Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		out = append(out, cloneTrack(tr))
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Count returns the number of live tracks.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Positions returns the union of current live-track positions and
// recent ACARS-derived positions from persistence, deduplicated by
// flight+tail+coordinates.
func (t *Tracker) Positions(ctx context.Context) []signal.PositionReport {
	var out []signal.PositionReport
	seen := make(map[string]struct{})

	t.mu.RLock()
	for _, tr := range t.tracks {
		r := signal.PositionReport{
			AircraftID: tr.AircraftID,
			Hex:        tr.Hex,
			Flight:     tr.Flight,
			Tail:       tr.Tail,
			Lat:        tr.CurrentPosition.Lat,
			Lon:        tr.CurrentPosition.Lon,
			AltitudeFt: tr.CurrentPosition.AltitudeFt,
			Source:     "adsb",
			Timestamp:  tr.LastSeen,
		}
		out = append(out, r)
		seen[posKey(r)] = struct{}{}
	}
	t.mu.RUnlock()

	acars, err := t.store.GetACARSPositions(ctx, t.cfg.ACARSWindow)
	if err != nil {
		t.logger.Warn("acars position join failed", "err", err)
		return out
	}
	for _, r := range acars {
		if _, dup := seen[posKey(r)]; dup {
			continue
		}
		seen[posKey(r)] = struct{}{}
		out = append(out, r)
	}
	return out
}

func posKey(r signal.PositionReport) string {
	return r.Flight + "|" + r.Tail + "|" + signal.FormatCoordinates(r.Lat, r.Lon)
}

func (t *Tracker) evictLoop() {
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
}

// EvictStale removes tracks not seen inside the TTL and announces each
// loss. Exposed for the eviction loop and tests.
func (t *Tracker) EvictStale(now time.Time) int {
	var lost []signal.Track

	t.mu.Lock()
	for hex, tr := range t.tracks {
		if now.Sub(tr.LastSeen) > t.cfg.TrackTTL {
			lost = append(lost, cloneTrack(tr))
			delete(t.tracks, hex)
		}
	}
	t.mu.Unlock()

	for i := range lost {
		tr := lost[i]
		t.logger.Debug("track lost", "hex", tr.Hex, "last_seen", tr.LastSeen)

		// Persist the final track shape before dropping it.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.store.SaveAircraftTrack(ctx, &tr); err != nil {
			t.logger.Warn("final track save failed", "hex", tr.Hex, "err", err)
		}
		cancel()

		t.onLost(tr)
	}
	return len(lost)
}

func cloneTrack(tr *signal.Track) signal.Track {
	cp := *tr
	cp.TrackPoints = append([]signal.TrackPoint(nil), tr.TrackPoints...)
	return cp
}
