package eam

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"skysignal/internal/events"
	"skysignal/internal/signal"
	"skysignal/internal/storage"
)

// EventFunc receives detection events for dispatch to subscribers.
type EventFunc func(e events.Event)

// Config tunes the pipeline.
type Config struct {
	// Window is the draft time-to-live. Drafts idle past it are closed
	// and scored; drafts still open at twice the window are dropped.
	Window             time.Duration
	PromotionThreshold float64
	DedupeDepth        int
	DedupeWindow       time.Duration
	SweepInterval      time.Duration
}

// Pipeline aggregates transcription segments into scored messages.
type Pipeline struct {
	cfg      Config
	registry *Registry
	store    storage.Store
	onEvent  EventFunc
	logger   *log.Logger

	mu            sync.Mutex
	drafts        map[string]*draft
	recent        []recentEAM
	droppedDrafts int64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type draft struct {
	feedID   string
	header   string
	typ      signal.EAMType
	openedAt time.Time
	lastAt   time.Time
	det      *Detection
	segments []signal.Segment
	bodies   []string
	closed   bool
}

type recentEAM struct {
	id       string
	typ      signal.EAMType
	body     string
	detected time.Time
}

// New builds the pipeline with defaults filled in.
func New(cfg Config, store storage.Store, onEvent EventFunc, logger *log.Logger) *Pipeline {
	if cfg.Window <= 0 {
		cfg.Window = 120 * time.Second
	}
	if cfg.PromotionThreshold <= 0 {
		cfg.PromotionThreshold = 50
	}
	if cfg.DedupeDepth <= 0 {
		cfg.DedupeDepth = 20
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if onEvent == nil {
		onEvent = func(events.Event) {}
	}
	return &Pipeline{
		cfg:      cfg,
		registry: NewRegistry(),
		store:    store,
		onEvent:  onEvent,
		logger:   logger.WithPrefix("eam"),
		drafts:   make(map[string]*draft),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the draft sweeper.
func (p *Pipeline) Start() {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.Sweep(time.Now().UTC())
			}
		}
	}()
}

// Stop halts the sweeper and flushes open drafts.
func (p *Pipeline) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	p.Sweep(time.Now().UTC().Add(p.cfg.Window + time.Second))
}

// DroppedDrafts reports drafts that expired without closing cleanly.
func (p *Pipeline) DroppedDrafts() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.droppedDrafts
}

// HandleSegment feeds one transcription segment through the pipeline.
// Transcription errors never abort processing.
func (p *Pipeline) HandleSegment(seg signal.Segment) {
	norm := Normalize(seg.Text)
	if norm == "" {
		return
	}

	now := seg.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	det := p.registry.Detect(norm)

	var toClose []*draft

	p.mu.Lock()
	if det != nil {
		key := seg.FeedID + "|" + det.Header
		d, open := p.drafts[key]
		if open {
			// Re-announcement of an open draft's header terminates it.
			d.extend(seg, norm, det, now)
			delete(p.drafts, key)
			toClose = append(toClose, d)
		} else {
			d = &draft{
				feedID:   seg.FeedID,
				header:   det.Header,
				typ:      det.Type,
				openedAt: now,
				lastAt:   now,
			}
			d.extend(seg, norm, det, now)
			p.drafts[key] = d
			if det.HeaderRepeated {
				// Complete in a single segment.
				delete(p.drafts, key)
				toClose = append(toClose, d)
			}
		}
	} else {
		// No envelope: extend any open draft on the feed whose header
		// appears in the segment. The draft stays open until a segment
		// carries the terminating sentinel (header read back twice) or
		// the window expires.
		for key, d := range p.drafts {
			if d.feedID != seg.FeedID {
				continue
			}
			if strings.Contains(norm, d.header) {
				d.extend(seg, norm, nil, now)
				if strings.Count(norm, d.header) >= 2 {
					delete(p.drafts, key)
					toClose = append(toClose, d)
				}
			}
		}
	}
	p.mu.Unlock()

	for _, d := range toClose {
		p.close(d)
	}
}

func (d *draft) extend(seg signal.Segment, norm string, det *Detection, now time.Time) {
	d.segments = append(d.segments, seg)
	text := norm
	if det != nil {
		d.det = det
		text = det.Body
	}
	if d.typ == signal.EAMTypeEAM {
		// Stored bodies keep only the message groups; announcements of
		// the header and procedural words are read-back framing.
		text = stripProcedural(text, d.header)
	}
	if text != "" {
		d.bodies = append(d.bodies, text)
	}
	d.lastAt = now
}

// Sweep closes drafts idle past the window and drops drafts that have
// lived past twice the window without closing.
func (p *Pipeline) Sweep(now time.Time) {
	var toClose []*draft

	p.mu.Lock()
	for key, d := range p.drafts {
		switch {
		case now.Sub(d.openedAt) > 2*p.cfg.Window:
			delete(p.drafts, key)
			p.droppedDrafts++
		case now.Sub(d.lastAt) > p.cfg.Window:
			delete(p.drafts, key)
			toClose = append(toClose, d)
		}
	}
	p.mu.Unlock()

	for _, d := range toClose {
		p.close(d)
	}
}

// close scores a draft and promotes it when it clears the threshold.
func (p *Pipeline) close(d *draft) {
	if d.det == nil || d.closed {
		return
	}
	d.closed = true

	body := collapseBody(strings.Join(d.bodies, " "))
	score := p.score(d, body)
	if score < p.cfg.PromotionThreshold {
		p.logger.Debug("draft below threshold",
			"header", d.header, "score", score, "segments", len(d.segments))
		return
	}

	var recIDs []string
	var duration float64
	var raw []string
	for _, s := range d.segments {
		if s.SegmentID != "" {
			recIDs = append(recIDs, s.SegmentID)
		}
		duration += s.DurationS
		raw = append(raw, s.Text)
	}

	msg := &signal.EAMMessage{
		ID:               uuid.NewString(),
		MessageType:      d.typ,
		Header:           d.header,
		MessageBody:      body,
		MessageLength:    len(body),
		ConfidenceScore:  score,
		FirstDetected:    d.openedAt,
		LastDetected:     d.lastAt,
		RepeatCount:      1,
		RecordingIDs:     recIDs,
		RawTranscription: strings.Join(raw, " "),
		Codeword:         d.det.Codeword,
		TimeCode:         d.det.TimeCode,
		Authentication:   d.det.Authentication,
		MultiSegment:     len(d.segments) > 1,
		SegmentCount:     len(d.segments),
		DurationSeconds:  duration,
	}

	p.dedupe(msg)
}

// score blends header recognition (0..40), block grouping regularity
// (0..30), and mean segment confidence (0..30).
func (p *Pipeline) score(d *draft, body string) float64 {
	s := d.det.HeaderScore

	s += 30 * groupRegularity(body)

	if n := len(d.segments); n > 0 {
		var sum float64
		for _, seg := range d.segments {
			sum += seg.Confidence
		}
		s += 30 * (sum / float64(n))
	}

	if s > 100 {
		s = 100
	}
	return s
}

// dedupe checks the promoted message against recent messages of the
// same type and either folds it into an existing one or inserts it.
func (p *Pipeline) dedupe(msg *signal.EAMMessage) {
	now := msg.LastDetected
	key := collapseBody(msg.MessageBody)

	p.mu.Lock()
	var dupID string
	checked := 0
	for i := len(p.recent) - 1; i >= 0 && checked < p.cfg.DedupeDepth; i-- {
		r := &p.recent[i]
		if r.typ != msg.MessageType {
			continue
		}
		checked++
		if now.Sub(r.detected) > p.cfg.DedupeWindow {
			break
		}
		if r.body == key {
			dupID = r.id
			r.detected = now
			break
		}
	}
	if dupID == "" {
		p.recent = append(p.recent, recentEAM{
			id: msg.ID, typ: msg.MessageType, body: key, detected: now,
		})
		if len(p.recent) > p.cfg.DedupeDepth*2 {
			p.recent = p.recent[len(p.recent)-p.cfg.DedupeDepth:]
		}
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if dupID != "" {
		repeats, recIDs, err := p.store.UpdateEAMRepeat(ctx, dupID, msg.RecordingIDs)
		if err != nil {
			p.logger.Warn("repeat update failed", "id", dupID, "err", err)
		}
		p.logger.Info("repeat broadcast", "id", dupID, "type", msg.MessageType, "repeats", repeats)
		p.onEvent(events.New(events.TypeEAMRepeatDetected, map[string]any{
			"id":            dupID,
			"message_type":  msg.MessageType,
			"repeat_count":  repeats,
			"recording_ids": recIDs,
			"last_detected": now,
		}))
		return
	}

	if err := p.store.SaveEAMMessage(ctx, msg); err != nil {
		p.logger.Warn("eam save failed", "id", msg.ID, "err", err)
	}

	p.logger.Info("message promoted",
		"id", msg.ID, "type", msg.MessageType, "score", msg.ConfidenceScore,
		"length", msg.MessageLength, "segments", msg.SegmentCount)

	if msg.MessageType == signal.EAMTypeSkyking {
		p.onEvent(events.New(events.TypeSkykingDetected, msg))
	} else {
		p.onEvent(events.New(events.TypeEAMDetected, msg))
	}
}
