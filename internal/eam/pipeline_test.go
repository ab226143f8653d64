package eam

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skysignal/internal/events"
	"skysignal/internal/signal"
	"skysignal/internal/storage"
)

func newTestPipeline(t *testing.T) (*Pipeline, *storage.StateDB, *[]events.Event) {
	t.Helper()

	db, err := storage.OpenState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var got []events.Event
	p := New(Config{
		Window:             2 * time.Second,
		PromotionThreshold: 50,
		DedupeDepth:        20,
		DedupeWindow:       time.Hour,
	}, db, func(e events.Event) { got = append(got, e) }, testLogger())

	return p, db, &got
}

func TestPipelineSkykingPromotion(t *testing.T) {
	p, db, got := newTestPipeline(t)

	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-1",
		FeedID:     "hf-8992",
		Timestamp:  time.Now().UTC(),
		Text:       "Skyking, Skyking, do not answer. REDROCK time 12 authentication AB",
		Confidence: 0.9,
	})

	require.Len(t, *got, 1)
	require.Equal(t, events.TypeSkykingDetected, (*got)[0].Type)

	msg := (*got)[0].Data.(*signal.EAMMessage)
	require.Equal(t, signal.EAMTypeSkyking, msg.MessageType)
	require.Equal(t, "REDROCK", msg.Codeword)
	require.Equal(t, "12", msg.TimeCode)
	require.Equal(t, "AB", msg.Authentication)
	require.Equal(t, []string{"rec-1"}, msg.RecordingIDs)

	// The promoted message landed in persistence.
	stored, err := db.GetEAMMessages(context.Background(), storage.EAMQuery{
		MessageType: string(signal.EAMTypeSkyking),
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, msg.ID, stored[0].ID)
}

func TestPipelineMultiSegmentEAM(t *testing.T) {
	p, _, got := newTestPipeline(t)

	now := time.Now().UTC()

	// Opening announcement plus the first blocks.
	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-1",
		FeedID:     "hf-11175",
		Timestamp:  now,
		Text:       "All stations this is K9X2B standby ABCDE FGHIJ",
		Confidence: 0.85,
	})
	require.Empty(t, *got, "draft must stay open until terminated")

	// Continuation carrying the terminating sentinel: the header read
	// back twice.
	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-2",
		FeedID:     "hf-11175",
		Timestamp:  now.Add(20 * time.Second),
		Text:       "KLMNO PQRST K9X2B K9X2B out",
		Confidence: 0.8,
	})

	require.Len(t, *got, 1)
	require.Equal(t, events.TypeEAMDetected, (*got)[0].Type)

	msg := (*got)[0].Data.(*signal.EAMMessage)
	require.Equal(t, signal.EAMTypeEAM, msg.MessageType)
	require.Equal(t, "K9X2B", msg.Header)
	require.Equal(t, "ABCDE FGHIJ KLMNO PQRST", msg.MessageBody)
	require.True(t, msg.MultiSegment)
	require.Equal(t, 2, msg.SegmentCount)
	require.Equal(t, []string{"rec-1", "rec-2"}, msg.RecordingIDs)
	require.GreaterOrEqual(t, msg.ConfidenceScore, 50.0)
}

func TestPipelineThreeSegmentAggregation(t *testing.T) {
	p, _, got := newTestPipeline(t)

	now := time.Now().UTC()
	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-1",
		FeedID:     "hf-11175",
		Timestamp:  now,
		Text:       "All stations this is 8A8A8A standby ABCDE",
		Confidence: 0.9,
	})
	// A mid-message continuation mentions the header once: the draft
	// must stay open for more groups.
	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-2",
		FeedID:     "hf-11175",
		Timestamp:  now.Add(20 * time.Second),
		Text:       "8A8A8A FGHIJ",
		Confidence: 0.85,
	})
	require.Empty(t, *got)

	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-3",
		FeedID:     "hf-11175",
		Timestamp:  now.Add(40 * time.Second),
		Text:       "KLMNO 8A8A8A 8A8A8A",
		Confidence: 0.8,
	})

	require.Len(t, *got, 1)
	msg := (*got)[0].Data.(*signal.EAMMessage)
	require.Equal(t, "8A8A8A", msg.Header)
	require.Equal(t, "ABCDE FGHIJ KLMNO", msg.MessageBody)
	require.True(t, msg.MultiSegment)
	require.Equal(t, 3, msg.SegmentCount)
	require.Equal(t, []string{"rec-1", "rec-2", "rec-3"}, msg.RecordingIDs)
	require.GreaterOrEqual(t, msg.ConfidenceScore, 50.0)
}

func TestPipelineWindowExpiryCloses(t *testing.T) {
	p, _, got := newTestPipeline(t)

	now := time.Now().UTC()
	p.HandleSegment(signal.Segment{
		SegmentID:  "rec-1",
		FeedID:     "hf-11175",
		Timestamp:  now,
		Text:       "Message follows T5R8Q ABCDE FGHIJ KLMNO PQRST",
		Confidence: 0.9,
	})
	require.Empty(t, *got)

	// Idle past the window: the draft closes and scores.
	p.Sweep(now.Add(3 * time.Second))
	require.Len(t, *got, 1)
	require.Equal(t, events.TypeEAMDetected, (*got)[0].Type)
}

func TestPipelineRepeatDeduplication(t *testing.T) {
	p, db, got := newTestPipeline(t)

	broadcast := "Skyking, Skyking, do not answer. SNOWCAP time 55 authentication JX"

	p.HandleSegment(signal.Segment{
		SegmentID: "rec-1", FeedID: "hf-8992",
		Timestamp: time.Now().UTC(), Text: broadcast, Confidence: 0.9,
	})
	require.Len(t, *got, 1)
	firstID := (*got)[0].Data.(*signal.EAMMessage).ID

	// The same broadcast again, new recording: folded into the first.
	p.HandleSegment(signal.Segment{
		SegmentID: "rec-2", FeedID: "hf-8992",
		Timestamp: time.Now().UTC(), Text: broadcast, Confidence: 0.88,
	})
	require.Len(t, *got, 2)
	require.Equal(t, events.TypeEAMRepeatDetected, (*got)[1].Type)

	// The repeat broadcast carries the merged bookkeeping.
	data := (*got)[1].Data.(map[string]any)
	require.Equal(t, 2, data["repeat_count"])
	require.Equal(t, []string{"rec-1", "rec-2"}, data["recording_ids"])

	stored, err := db.GetEAMMessages(context.Background(), storage.EAMQuery{})
	require.NoError(t, err)
	require.Len(t, stored, 1, "repeat must not create a second row")
	require.Equal(t, firstID, stored[0].ID)
	require.Equal(t, 2, stored[0].RepeatCount)
	require.Equal(t, []string{"rec-1", "rec-2"}, stored[0].RecordingIDs)
}

func TestPipelineDropsStuckDrafts(t *testing.T) {
	p, _, got := newTestPipeline(t)

	now := time.Now().UTC()
	p.HandleSegment(signal.Segment{
		SegmentID: "rec-1", FeedID: "hf-11175", Timestamp: now,
		Text: "Message follows W2M9L ABCDE", Confidence: 0.3,
	})

	// Past twice the window the draft is discarded, not scored.
	p.Sweep(now.Add(5 * time.Second))
	require.Empty(t, *got)
	require.Equal(t, int64(1), p.DroppedDrafts())
}

func TestPipelineLowConfidenceNotPromoted(t *testing.T) {
	p, db, got := newTestPipeline(t)

	now := time.Now().UTC()
	// Ragged blocks and rock-bottom transcription confidence.
	p.HandleSegment(signal.Segment{
		SegmentID: "rec-1", FeedID: "hf-11175", Timestamp: now,
		Text: "Message follows ZZZZ a bb c ddd ee f", Confidence: 0.05,
	})
	p.Sweep(now.Add(3 * time.Second))

	require.Empty(t, *got)
	stored, err := db.GetEAMMessages(context.Background(), storage.EAMQuery{})
	require.NoError(t, err)
	require.Empty(t, stored)
}
