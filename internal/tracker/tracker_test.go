package tracker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"skysignal/internal/signal"
	"skysignal/internal/storage"
)

func newTestTracker(t *testing.T, cfg Config) (*Tracker, *storage.StateDB, *[]signal.Track) {
	t.Helper()

	db, err := storage.OpenState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var lost []signal.Track
	tr := New(cfg, db, func(x signal.Track) { lost = append(lost, x) }, log.New(io.Discard))
	return tr, db, &lost
}

func posMsg(hex string, lat, lon float64, ts time.Time) *signal.Message {
	return &signal.Message{
		ID:        "adsb_" + hex + "_1",
		Timestamp: ts,
		Source:    signal.Source{Type: signal.SourceADSB},
		Hex:       hex,
		Flight:    "TEST01",
		Position:  &signal.Position{Lat: lat, Lon: lon, AltitudeFt: 30000},
	}
}

func TestUpsertAppendsOnlyOnMove(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})

	now := time.Now().UTC()
	tr.Upsert(posMsg("abc123", 40.0, -75.0, now))
	tr.Upsert(posMsg("abc123", 40.0, -75.0, now.Add(time.Second)))
	tr.Upsert(posMsg("abc123", 40.1, -75.0, now.Add(2*time.Second)))

	got := tr.Get("abc123")
	require.NotNil(t, got)
	require.Len(t, got.TrackPoints, 2, "stationary update must not append")
	require.Equal(t, int64(2), got.PositionCount)
	require.Equal(t, 40.1, got.CurrentPosition.Lat)
	require.Equal(t, now.Add(2*time.Second), got.LastSeen)
}

func TestUpsertIgnoresPositionless(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})

	tr.Upsert(&signal.Message{Hex: "abc123"})
	tr.Upsert(&signal.Message{Position: &signal.Position{Lat: 1, Lon: 1}})
	require.Equal(t, 0, tr.Count())
}

func TestTrackPointCap(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{MaxTrackPoints: 5})

	now := time.Now().UTC()
	for i := 0; i < 8; i++ {
		tr.Upsert(posMsg("abc123", 40.0+float64(i)*0.01, -75.0, now.Add(time.Duration(i)*time.Second)))
	}

	got := tr.Get("abc123")
	require.Len(t, got.TrackPoints, 5)
	// Oldest points fall off the front.
	require.Equal(t, 40.03, got.TrackPoints[0].Lat)
	require.Equal(t, 40.07, got.TrackPoints[4].Lat)
	require.Equal(t, int64(8), got.PositionCount, "the counter keeps the full history size")
}

func TestSnapshotIsACopy(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})

	now := time.Now().UTC()
	tr.Upsert(posMsg("abc123", 40.0, -75.0, now))

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	snap[0].TrackPoints[0].Lat = 99

	require.Equal(t, 40.0, tr.Get("abc123").TrackPoints[0].Lat)
}

func TestEvictStalePersistsAndAnnounces(t *testing.T) {
	tr, db, lost := newTestTracker(t, Config{TrackTTL: time.Minute})

	now := time.Now().UTC()
	tr.Upsert(posMsg("abc123", 40.0, -75.0, now))
	tr.Upsert(posMsg("def456", 41.0, -74.0, now.Add(50*time.Minute)))

	n := tr.EvictStale(now.Add(51 * time.Minute))
	require.Equal(t, 1, n)
	require.Len(t, *lost, 1)
	require.Equal(t, "abc123", (*lost)[0].Hex)
	require.Equal(t, 1, tr.Count())

	// The final shape reached persistence.
	saved, err := db.GetAircraftByIdentifier(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, "TEST01", saved.Flight)
	require.Equal(t, 40.0, saved.CurrentPosition.Lat)
}

func TestPositionsUnionAndDedupe(t *testing.T) {
	tr, db, _ := newTestTracker(t, Config{})

	now := time.Now().UTC()
	tr.Upsert(posMsg("abc123", 40.0, -75.0, now))

	// An ACARS fix for a different flight lands in persistence.
	acars := &signal.Message{
		ID:        "acars_1",
		Timestamp: now,
		Source:    signal.Source{Type: signal.SourceACARS},
		Flight:    "UAL100",
		Tail:      "N123AB",
		Position:  &signal.Position{Lat: 41.5, Lon: -73.2, AltitudeFt: 12000},
	}
	require.NoError(t, db.UpdateAircraftTracking(context.Background(), acars))

	got := tr.Positions(context.Background())
	require.Len(t, got, 2)

	bySource := map[string]signal.PositionReport{}
	for _, r := range got {
		bySource[r.Source] = r
	}
	require.Equal(t, "abc123", bySource["adsb"].Hex)
	require.Equal(t, "UAL100", bySource["acars"].Flight)

	// A live track with the same flight+tail+coordinates shadows the
	// persisted ACARS fix.
	live := posMsg("def456", 41.5, -73.2, now)
	live.Flight = "UAL100"
	live.Tail = "N123AB"
	tr.Upsert(live)

	got = tr.Positions(context.Background())
	require.Len(t, got, 2)
	for _, r := range got {
		require.Equal(t, "adsb", r.Source, fmt.Sprintf("unexpected %+v", r))
	}
}
